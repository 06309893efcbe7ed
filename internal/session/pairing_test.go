package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/internal/jellyfin"
)

type fakePairingClient struct {
	mu        sync.Mutex
	enabled   bool
	initiates int
	exchanges int
	polls     []jellyfin.QuickConnectState
	pollIdx   int
	exchange  func() (jellyfin.Credentials, error)
}

func (f *fakePairingClient) QuickConnectEnabled() (bool, error) {
	return f.enabled, nil
}

func (f *fakePairingClient) QuickConnectInitiate() (jellyfin.QuickConnectSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiates++
	return jellyfin.QuickConnectSession{
		Code:   fmt.Sprintf("CODE%d", f.initiates),
		Secret: fmt.Sprintf("secret-%d", f.initiates),
	}, nil
}

func (f *fakePairingClient) QuickConnectPoll(secret string) (jellyfin.QuickConnectState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollIdx >= len(f.polls) {
		return jellyfin.QuickConnectState{}, nil
	}
	state := f.polls[f.pollIdx]
	f.pollIdx++
	return state, nil
}

func (f *fakePairingClient) QuickConnectExchange(secret string) (jellyfin.Credentials, error) {
	f.mu.Lock()
	f.exchanges++
	f.mu.Unlock()
	if f.exchange != nil {
		return f.exchange()
	}
	return jellyfin.Credentials{Token: "tok", UserID: "user-1"}, nil
}

func newTestPairer(t *testing.T, client PairingClient) (*Pairer, *FileStore, context.CancelFunc) {
	t.Helper()
	dispatcher := dispatch.New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = dispatcher.Run(ctx) }()

	store := newTestStore(t)
	pairer := &Pairer{
		Log:        zap.NewNop(),
		Client:     client,
		Store:      store,
		Dispatcher: dispatcher,
		Interval:   time.Millisecond,
	}
	return pairer, store, cancel
}

func TestPairerHappyPath(t *testing.T) {
	client := &fakePairingClient{
		enabled: true,
		polls: []jellyfin.QuickConnectState{
			{Authenticated: false},
			{Authenticated: false},
			{Authenticated: true},
		},
	}
	pairer, store, cancel := newTestPairer(t, client)
	defer cancel()

	var codes []string
	pairer.OnCode = func(code string) { codes = append(codes, code) }

	start := State{DeviceID: "dev-1"}.WithServer("media.local")
	state, err := pairer.Run(context.Background(), start)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if state.Phase != Authenticated || state.Token != "tok" || state.UserID != "user-1" {
		t.Fatalf("unexpected state %+v", state)
	}
	if client.initiates != 1 {
		t.Fatalf("expected a single initiate, got %d", client.initiates)
	}
	if client.exchanges != 1 {
		t.Fatalf("expected exactly one exchange, got %d", client.exchanges)
	}
	if len(codes) != 1 || codes[0] != "CODE1" {
		t.Fatalf("unexpected codes %v", codes)
	}

	values, err := store.Load()
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if values[KeyToken] != "tok" || values[KeyUserID] != "user-1" || values[KeyDeviceID] != "dev-1" {
		t.Fatalf("expected persisted credentials, got %v", values)
	}
	if values[KeyServer] != "http://media.local" {
		t.Fatalf("expected persisted server, got %v", values)
	}
}

func TestPairerReinitiatesOnTerminalPollError(t *testing.T) {
	client := &fakePairingClient{
		enabled: true,
		polls: []jellyfin.QuickConnectState{
			{Authenticated: false, Error: "unknown quick connect secret"},
			{Authenticated: true},
		},
	}
	pairer, _, cancel := newTestPairer(t, client)
	defer cancel()

	var codes []string
	pairer.OnCode = func(code string) { codes = append(codes, code) }

	state, err := pairer.Run(context.Background(), State{}.WithServer("media.local"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.Phase != Authenticated {
		t.Fatalf("expected authenticated, got %s", state.Phase)
	}
	if client.initiates != 2 {
		t.Fatalf("expected re-initiate after terminal error, got %d initiates", client.initiates)
	}
	if len(codes) != 2 {
		t.Fatalf("expected a fresh code per session, got %v", codes)
	}
}

func TestPairerDisabledQuickConnect(t *testing.T) {
	client := &fakePairingClient{enabled: false}
	pairer, _, cancel := newTestPairer(t, client)
	defer cancel()

	_, err := pairer.Run(context.Background(), State{}.WithServer("media.local"))
	if !errors.Is(err, ErrQuickConnectDisabled) {
		t.Fatalf("expected ErrQuickConnectDisabled, got %v", err)
	}
	if client.initiates != 0 {
		t.Fatalf("expected no initiate when disabled")
	}
}

func TestPairerCapsReinitiates(t *testing.T) {
	expired := jellyfin.QuickConnectState{Authenticated: false, Error: "expired"}
	client := &fakePairingClient{
		enabled: true,
		polls: []jellyfin.QuickConnectState{
			expired, expired, expired, expired, expired, expired, expired,
		},
	}
	pairer, _, cancel := newTestPairer(t, client)
	defer cancel()

	_, err := pairer.Run(context.Background(), State{}.WithServer("media.local"))
	if err == nil {
		t.Fatalf("expected error after repeated expiries")
	}
}

func TestPairerIncompleteExchangeRetries(t *testing.T) {
	client := &fakePairingClient{
		enabled: true,
		polls: []jellyfin.QuickConnectState{
			{Authenticated: true},
			{Authenticated: true},
		},
	}
	first := true
	client.exchange = func() (jellyfin.Credentials, error) {
		if first {
			first = false
			return jellyfin.Credentials{}, &jellyfin.AuthExchangeError{Missing: "a token"}
		}
		return jellyfin.Credentials{Token: "tok", UserID: "user-1"}, nil
	}

	pairer, _, cancel := newTestPairer(t, client)
	defer cancel()

	state, err := pairer.Run(context.Background(), State{}.WithServer("media.local"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if state.Phase != Authenticated {
		t.Fatalf("expected authenticated after retry, got %s", state.Phase)
	}
	if client.initiates != 2 {
		t.Fatalf("expected fresh cycle after incomplete exchange, got %d", client.initiates)
	}
}
