package core

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/internal/jellyfin"
	"github.com/mikey-austin/botify/internal/session"
	"github.com/mikey-austin/botify/pkg/bp"
)

type fakeLibrary struct {
	server string
	token  string
	userID string
	tracks []jellyfin.Track
	creds  jellyfin.Credentials
}

func (f *fakeLibrary) Server() string { return f.server }

func (f *fakeLibrary) SetCredentials(token, userID string) {
	f.token = token
	f.userID = userID
}

func (f *fakeLibrary) QuickConnectEnabled() (bool, error) { return true, nil }

func (f *fakeLibrary) QuickConnectInitiate() (jellyfin.QuickConnectSession, error) {
	return jellyfin.QuickConnectSession{Code: "123456", Secret: "s3cret"}, nil
}

func (f *fakeLibrary) QuickConnectPoll(secret string) (jellyfin.QuickConnectState, error) {
	return jellyfin.QuickConnectState{Authenticated: true}, nil
}

func (f *fakeLibrary) QuickConnectExchange(secret string) (jellyfin.Credentials, error) {
	return f.creds, nil
}

func (f *fakeLibrary) AuthenticateByName(username, password string) (jellyfin.Credentials, error) {
	return f.creds, nil
}

func (f *fakeLibrary) ListTracks() ([]jellyfin.Track, error) { return f.tracks, nil }

func (f *fakeLibrary) StreamURL(itemID string) string {
	return f.server + "/Audio/" + itemID + "/stream"
}

func (f *fakeLibrary) ImageURL(itemID string, kind string, maxSide int) string {
	return f.server + "/Items/" + itemID + "/Images/" + kind
}

type publishedCommand struct {
	nodeID string
	cmd    bp.CommandEnvelope
}

type fakeBroker struct {
	published []publishedCommand
	reply     bp.ReplyEnvelope
	state     bp.PlayerState
	presence  []bp.Presence
}

func (f *fakeBroker) ReplyTopic() string { return "botify/v1/reply/test" }

func (f *fakeBroker) PublishCommand(ctx context.Context, nodeID string, cmd bp.CommandEnvelope) (bp.ReplyEnvelope, error) {
	f.published = append(f.published, publishedCommand{nodeID: nodeID, cmd: cmd})
	reply := f.reply
	if reply.ID == "" {
		reply = bp.ReplyEnvelope{ID: cmd.ID, Type: "ok", OK: true}
	}
	return reply, nil
}

func (f *fakeBroker) ListPresence(ctx context.Context) ([]bp.Presence, error) {
	return f.presence, nil
}

func (f *fakeBroker) GetPlayerState(ctx context.Context, nodeID string) (bp.PlayerState, error) {
	return f.state, nil
}

func (f *fakeBroker) WatchPlayer(ctx context.Context, nodeID string) (<-chan bp.PlayerState, <-chan error) {
	states := make(chan bp.PlayerState)
	errs := make(chan error)
	close(states)
	close(errs)
	return states, errs
}

func newTestService(t *testing.T, library *fakeLibrary, broker *fakeBroker) (*Service, *session.FileStore, context.Context) {
	t.Helper()

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.toml"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	dispatcher := dispatch.New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatcher.Run(ctx) }()

	service := &Service{
		Log:          zap.NewNop(),
		Broker:       broker,
		Store:        store,
		Dispatcher:   dispatcher,
		DeviceName:   "testhost",
		PollInterval: time.Millisecond,
		Config:       Config{Identity: "botify-test", Node: "livingroom"},
		NewLibrary: func(server string, identity jellyfin.Identity) Library {
			library.server = server
			return library
		},
	}
	return service, store, ctx
}

func seedAuthenticated(t *testing.T, store *session.FileStore) {
	t.Helper()
	for key, value := range map[string]string{
		session.KeyServer:   "http://jf.local",
		session.KeyDeviceID: "dev-1",
		session.KeyToken:    "tok-1",
		session.KeyUserID:   "user-1",
	} {
		if err := store.Save(key, value); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
}

func TestTracksRequiresLogin(t *testing.T) {
	service, _, ctx := newTestService(t, &fakeLibrary{}, &fakeBroker{})

	_, err := service.Tracks(ctx)
	if ExitCode(err) != ExitAuth {
		t.Fatalf("expected auth exit code, got %v", err)
	}
}

func TestTracksWithResumedSession(t *testing.T) {
	library := &fakeLibrary{tracks: []jellyfin.Track{
		{ID: "t1", Name: "Alpha", Album: "LP", Artists: []string{"A"}},
		{ID: "t2", Name: "Beta"},
	}}
	service, store, ctx := newTestService(t, library, &fakeBroker{})
	seedAuthenticated(t, store)

	result, err := service.Tracks(ctx)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if result.Catalog.Len() != 2 {
		t.Fatalf("expected 2 tracks, got %d", result.Catalog.Len())
	}
	if library.token != "tok-1" || library.userID != "user-1" {
		t.Fatalf("stored credentials not installed: %q %q", library.token, library.userID)
	}
}

func TestPlayResolvesRowAndPublishes(t *testing.T) {
	library := &fakeLibrary{tracks: []jellyfin.Track{
		{ID: "t1", Name: "Alpha"},
		{ID: "t2", Name: "Beta", Album: "LP", Artists: []string{"B"}, ParentID: "alb-1"},
	}}
	broker := &fakeBroker{}
	service, store, ctx := newTestService(t, library, broker)
	seedAuthenticated(t, store)

	result, err := service.Play(ctx, "", "2")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if result.NodeID != "livingroom" || result.Title != "Beta" || result.Subtitle != "B - LP" {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(broker.published) != 1 {
		t.Fatalf("expected 1 command, got %d", len(broker.published))
	}
	published := broker.published[0]
	if published.nodeID != "livingroom" || published.cmd.Type != "transport.play" {
		t.Fatalf("unexpected command %+v", published)
	}
	if err := bp.ValidateCommandEnvelope(published.cmd); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}

	var body bp.TransportPlayBody
	if err := json.Unmarshal(published.cmd.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.URL != "http://jf.local/Audio/t2/stream" {
		t.Fatalf("unexpected stream url %q", body.URL)
	}
	if body.CoverURL != "http://jf.local/Items/alb-1/Images/Primary" {
		t.Fatalf("expected album cover, got %q", body.CoverURL)
	}
}

func TestPlayUnknownSelector(t *testing.T) {
	library := &fakeLibrary{tracks: []jellyfin.Track{{ID: "t1", Name: "Alpha"}}}
	service, store, ctx := newTestService(t, library, &fakeBroker{})
	seedAuthenticated(t, store)

	_, err := service.Play(ctx, "", "9")
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginPasswordPersists(t *testing.T) {
	library := &fakeLibrary{creds: jellyfin.Credentials{Token: "tok-9", UserID: "user-9"}}
	service, store, ctx := newTestService(t, library, &fakeBroker{})

	result, err := service.LoginPassword(ctx, "jf.local", "mikey", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Server != "http://jf.local" || result.UserID != "user-9" {
		t.Fatalf("unexpected result %+v", result)
	}

	values, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if values[session.KeyToken] != "tok-9" || values[session.KeyUserID] != "user-9" {
		t.Fatalf("credentials not persisted: %v", values)
	}
	if values[session.KeyServer] != "http://jf.local" || values[session.KeyDeviceID] == "" {
		t.Fatalf("server or device id not persisted: %v", values)
	}
}

func TestLoginQuickConnect(t *testing.T) {
	library := &fakeLibrary{creds: jellyfin.Credentials{Token: "tok-7", UserID: "user-7"}}
	service, _, ctx := newTestService(t, library, &fakeBroker{})

	var code string
	result, err := service.Login(ctx, "jf.local", func(c string) { code = c })
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if code != "123456" {
		t.Fatalf("pairing code not surfaced, got %q", code)
	}
	if result.UserID != "user-7" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLogoutRetainsServer(t *testing.T) {
	service, store, ctx := newTestService(t, &fakeLibrary{}, &fakeBroker{})
	seedAuthenticated(t, store)

	result, err := service.Logout(ctx)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if result.Phase != "anonymous" || result.Server != "http://jf.local" {
		t.Fatalf("unexpected result %+v", result)
	}

	values, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if values[session.KeyToken] != "" || values[session.KeyUserID] != "" {
		t.Fatalf("credentials survived logout: %v", values)
	}
	if values[session.KeyServer] != "http://jf.local" || values[session.KeyDeviceID] != "dev-1" {
		t.Fatalf("server or device id lost: %v", values)
	}
}

func TestVolumeRangeChecked(t *testing.T) {
	broker := &fakeBroker{}
	service, _, ctx := newTestService(t, &fakeLibrary{}, broker)

	if err := service.Volume(ctx, "", 101); ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if len(broker.published) != 0 {
		t.Fatalf("out of range volume must not publish")
	}
	if err := service.Volume(ctx, "", 40); err != nil {
		t.Fatalf("volume: %v", err)
	}
}

func TestReplyErrorMapsToExitCode(t *testing.T) {
	broker := &fakeBroker{reply: bp.ReplyEnvelope{ID: "x", Type: "error", Err: &bp.ReplyError{Code: "INVALID", Message: "bad"}}}
	service, _, ctx := newTestService(t, &fakeLibrary{}, broker)

	err := service.Pause(ctx, "")
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage exit, got %v", err)
	}
}

func TestStatusUsesDefaultNode(t *testing.T) {
	broker := &fakeBroker{state: bp.PlayerState{Playing: true, Volume: 80}}
	service, _, ctx := newTestService(t, &fakeLibrary{}, broker)

	result, err := service.Status(ctx, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if result.NodeID != "livingroom" || !result.State.Playing {
		t.Fatalf("unexpected result %+v", result)
	}
}
