package core

import (
	"encoding/json"

	"github.com/mikey-austin/botify/internal/catalog"
	"github.com/mikey-austin/botify/internal/jellyfin"
	"github.com/mikey-austin/botify/internal/session"
	"github.com/mikey-austin/botify/pkg/bp"
)

// LoginResult reports a completed authentication.
type LoginResult struct {
	Server string
	UserID string
}

// SessionResult describes the persisted session.
type SessionResult struct {
	Phase    string
	Server   string
	UserID   string
	DeviceID string
}

// TracksResult holds the track listing projection.
type TracksResult struct {
	Catalog *catalog.Catalog
}

// MarshalJSON emits the underlying track records.
func (r TracksResult) MarshalJSON() ([]byte, error) {
	var tracks []jellyfin.Track
	if r.Catalog != nil {
		tracks = r.Catalog.Tracks()
	}
	return json.Marshal(struct {
		Tracks []jellyfin.Track `json:"tracks"`
	}{Tracks: tracks})
}

// NodesResult holds a list of player presence records.
type NodesResult struct {
	Nodes []bp.Presence
}

// StatusResult holds the retained state of a player node.
type StatusResult struct {
	NodeID string
	State  bp.PlayerState
}

// PlayResult reports the track handed to a player node.
type PlayResult struct {
	NodeID   string
	Title    string
	Subtitle string
}

func sessionResult(state session.State) SessionResult {
	return SessionResult{
		Phase:    state.Phase.String(),
		Server:   state.Server,
		UserID:   state.UserID,
		DeviceID: state.DeviceID,
	}
}
