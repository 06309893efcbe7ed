package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/internal/jellyfin"
)

// PollInterval is the fixed Quick Connect poll interval.
const PollInterval = 5 * time.Second

// Re-initiating forever would mask a disabled Quick Connect feature as an
// endless code churn, so consecutive re-arms are capped.
const maxReinitiates = 5

// ErrQuickConnectDisabled indicates the server does not offer Quick Connect.
var ErrQuickConnectDisabled = errors.New("quick connect is disabled on this server")

// PairingClient is the subset of the API client the pairer drives.
type PairingClient interface {
	QuickConnectEnabled() (bool, error)
	QuickConnectInitiate() (jellyfin.QuickConnectSession, error)
	QuickConnectPoll(secret string) (jellyfin.QuickConnectState, error)
	QuickConnectExchange(secret string) (jellyfin.Credentials, error)
}

// Pairer drives the Quick Connect flow: initiate, poll at a fixed interval
// with at most one outstanding poll, exchange on approval, persist. All
// network calls run through the dispatcher worker pool.
type Pairer struct {
	Log        *zap.Logger
	Client     PairingClient
	Store      Store
	Dispatcher *dispatch.Dispatcher
	Interval   time.Duration
	// OnCode is invoked whenever a new pairing code is issued, so the caller
	// can present it to the user.
	OnCode func(code string)
}

// Run takes a state in Pairing (server set) and drives it to Authenticated.
// A poll reporting a terminal error re-arms the session with a fresh
// initiate rather than failing; network errors abandon the flow.
func (p *Pairer) Run(ctx context.Context, state State) (State, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = PollInterval
	}

	enabled, err := p.probeEnabled(ctx)
	if err != nil {
		return state, err
	}
	if !enabled {
		return state, ErrQuickConnectDisabled
	}

	state, err = p.initiate(ctx, state)
	if err != nil {
		return state, err
	}

	reinitiates := 0
	for {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(interval):
		}

		// The interval only re-arms after this delivery, so there is never
		// more than one outstanding poll.
		result, err := p.poll(ctx, state.Session.Secret)
		if err != nil {
			return state, err
		}

		next, outcome := state.ApplyPoll(result)
		state = next
		switch outcome {
		case KeepPolling:
			continue
		case Reinitiate:
			reinitiates++
			log.Warn("pairing session expired, re-initiating",
				zap.String("reason", result.Error),
				zap.Int("attempt", reinitiates),
			)
			if reinitiates >= maxReinitiates {
				return state, fmt.Errorf("pairing failed after %d sessions: %s", reinitiates, result.Error)
			}
			state, err = p.initiate(ctx, state)
			if err != nil {
				return state, err
			}
		case Exchange:
			creds, err := p.exchange(ctx, state.Session.Secret)
			if err != nil {
				var exchangeErr *jellyfin.AuthExchangeError
				if errors.As(err, &exchangeErr) {
					// Fatal to this pairing attempt; a fresh cycle is needed.
					reinitiates++
					log.Warn("exchange incomplete, re-initiating", zap.Error(err))
					if reinitiates >= maxReinitiates {
						return state, err
					}
					state, err = p.initiate(ctx, state)
					if err != nil {
						return state, err
					}
					continue
				}
				return state, err
			}

			state = state.CompleteAuth(creds.Token, creds.UserID)
			if err := p.persist(state); err != nil {
				return state, err
			}
			log.Info("quick connect authenticated", zap.String("user_id", state.UserID))
			return state, nil
		}
	}
}

func (p *Pairer) probeEnabled(ctx context.Context) (bool, error) {
	task := p.Dispatcher.Submit(func() (any, error) {
		return p.Client.QuickConnectEnabled()
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

func (p *Pairer) initiate(ctx context.Context, state State) (State, error) {
	task := p.Dispatcher.Submit(func() (any, error) {
		return p.Client.QuickConnectInitiate()
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return state, err
	}

	issued := value.(jellyfin.QuickConnectSession)
	state = state.StartPairing(issued.Code, issued.Secret)
	if p.OnCode != nil {
		p.OnCode(issued.Code)
	}
	return state, nil
}

func (p *Pairer) poll(ctx context.Context, secret string) (jellyfin.QuickConnectState, error) {
	task := p.Dispatcher.Submit(func() (any, error) {
		return p.Client.QuickConnectPoll(secret)
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return jellyfin.QuickConnectState{}, err
	}
	return value.(jellyfin.QuickConnectState), nil
}

func (p *Pairer) exchange(ctx context.Context, secret string) (jellyfin.Credentials, error) {
	task := p.Dispatcher.Submit(func() (any, error) {
		return p.Client.QuickConnectExchange(secret)
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return jellyfin.Credentials{}, err
	}
	return value.(jellyfin.Credentials), nil
}

func (p *Pairer) persist(state State) error {
	if err := p.Store.Save(KeyServer, state.Server); err != nil {
		return err
	}
	if err := p.Store.Save(KeyDeviceID, state.DeviceID); err != nil {
		return err
	}
	if err := p.Store.Save(KeyToken, state.Token); err != nil {
		return err
	}
	return p.Store.Save(KeyUserID, state.UserID)
}
