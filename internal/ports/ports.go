package ports

import (
	"context"

	"github.com/mikey-austin/botify/pkg/bp"
)

// Broker publishes commands and reads retained state/presence.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, nodeID string, cmd bp.CommandEnvelope) (bp.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]bp.Presence, error)
	GetPlayerState(ctx context.Context, nodeID string) (bp.PlayerState, error)
	WatchPlayer(ctx context.Context, nodeID string) (<-chan bp.PlayerState, <-chan error)
}
