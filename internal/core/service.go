package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/catalog"
	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/internal/jellyfin"
	"github.com/mikey-austin/botify/internal/ports"
	"github.com/mikey-austin/botify/internal/session"
	"github.com/mikey-austin/botify/pkg/bp"
)

// Library is the media server surface the CLI needs: pairing, credential
// auth, and the audio catalog. *jellyfin.Client implements it.
type Library interface {
	session.PairingClient
	Server() string
	SetCredentials(token, userID string)
	AuthenticateByName(username, password string) (jellyfin.Credentials, error)
	ListTracks() ([]jellyfin.Track, error)
	StreamURL(itemID string) string
	ImageURL(itemID string, kind string, maxSide int) string
}

// LibraryFactory builds a Library for a server using the stored device
// identity.
type LibraryFactory func(server string, identity jellyfin.Identity) Library

const coverMaxSide = 300

// Service orchestrates botify CLI use cases.
type Service struct {
	Log        *zap.Logger
	Broker     ports.Broker
	Store      session.Store
	Dispatcher *dispatch.Dispatcher
	NewLibrary LibraryFactory
	DeviceName string
	// PollInterval overrides the Quick Connect poll cadence; zero uses the
	// session default.
	PollInterval time.Duration
	Config       Config
}

// Login drives the Quick Connect flow against server and persists the
// resulting credentials. With an empty server the previously stored one is
// reused. onCode is invoked for every pairing code the server issues.
func (s *Service) Login(ctx context.Context, server string, onCode func(code string)) (LoginResult, error) {
	state, err := s.loadState()
	if err != nil {
		return LoginResult{}, err
	}
	if server == "" {
		server = state.Server
	}
	if server == "" {
		return LoginResult{}, &CLIError{Code: ExitUsage, Msg: "no server configured; run botify login <server>"}
	}
	state = state.WithServer(server)

	library := s.NewLibrary(state.Server, s.identity(state))
	pairer := &session.Pairer{
		Log:        s.Log,
		Client:     library,
		Store:      s.Store,
		Dispatcher: s.Dispatcher,
		Interval:   s.PollInterval,
		OnCode:     onCode,
	}
	state, err = pairer.Run(ctx, state)
	if err != nil {
		return LoginResult{}, WrapError(ExitAuth, "quick connect login", err)
	}
	return LoginResult{Server: state.Server, UserID: state.UserID}, nil
}

// LoginPassword authenticates with a username and password and persists the
// resulting credentials.
func (s *Service) LoginPassword(ctx context.Context, server, username, password string) (LoginResult, error) {
	state, err := s.loadState()
	if err != nil {
		return LoginResult{}, err
	}
	if server == "" {
		server = state.Server
	}
	if server == "" {
		return LoginResult{}, &CLIError{Code: ExitUsage, Msg: "no server configured; run botify login <server>"}
	}
	state = state.WithServer(server)

	library := s.NewLibrary(state.Server, s.identity(state))
	task := s.Dispatcher.Submit(func() (any, error) {
		return library.AuthenticateByName(username, password)
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return LoginResult{}, WrapError(ExitAuth, "authenticate", err)
	}
	creds := value.(jellyfin.Credentials)
	state = state.CompleteAuth(creds.Token, creds.UserID)
	if err := s.persist(state); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Server: state.Server, UserID: state.UserID}, nil
}

// Logout discards credentials. Server and device identity are retained so a
// later login can skip re-entry.
func (s *Service) Logout(ctx context.Context) (SessionResult, error) {
	state, err := s.loadState()
	if err != nil {
		return SessionResult{}, err
	}
	state = state.Logout()
	if err := s.Store.Clear(session.KeyToken, session.KeyUserID); err != nil {
		return SessionResult{}, WrapError(ExitRuntime, "clear session", err)
	}
	return sessionResult(state), nil
}

// Session reports the persisted auth state.
func (s *Service) Session(ctx context.Context) (SessionResult, error) {
	state, err := s.loadState()
	if err != nil {
		return SessionResult{}, err
	}
	return sessionResult(state), nil
}

// Tracks fetches the audio catalog from the server.
func (s *Service) Tracks(ctx context.Context) (TracksResult, error) {
	_, library, err := s.authenticated()
	if err != nil {
		return TracksResult{}, err
	}
	task := s.Dispatcher.Submit(func() (any, error) {
		return library.ListTracks()
	}, nil)
	value, err := task.Wait(ctx)
	if err != nil {
		return TracksResult{}, WrapError(ExitRuntime, "list tracks", err)
	}
	return TracksResult{Catalog: catalog.New(value.([]jellyfin.Track))}, nil
}

// Play resolves a track selector against the catalog and hands its stream to
// the player node. The selector is a 1-based row number from the tracks
// listing, or a raw item id.
func (s *Service) Play(ctx context.Context, node, selector string) (PlayResult, error) {
	result, err := s.Tracks(ctx)
	if err != nil {
		return PlayResult{}, err
	}
	track, err := resolveTrack(result.Catalog, selector)
	if err != nil {
		return PlayResult{}, err
	}

	_, library, err := s.authenticated()
	if err != nil {
		return PlayResult{}, err
	}

	coverItem := track.ParentID
	if coverItem == "" {
		coverItem = track.ID
	}
	body := bp.TransportPlayBody{
		URL:      library.StreamURL(track.ID),
		Title:    track.Name,
		Subtitle: trackSubtitle(track),
		CoverURL: library.ImageURL(coverItem, "Primary", coverMaxSide),
	}
	if _, err := s.send(ctx, node, "transport.play", body); err != nil {
		return PlayResult{}, err
	}
	return PlayResult{NodeID: s.node(node), Title: track.Name, Subtitle: trackSubtitle(track)}, nil
}

// Pause pauses playback on a node.
func (s *Service) Pause(ctx context.Context, node string) error {
	_, err := s.send(ctx, node, "transport.pause", struct{}{})
	return err
}

// Toggle flips between playing and paused.
func (s *Service) Toggle(ctx context.Context, node string) error {
	_, err := s.send(ctx, node, "transport.toggle", struct{}{})
	return err
}

// Stop stops playback and clears the current track.
func (s *Service) Stop(ctx context.Context, node string) error {
	_, err := s.send(ctx, node, "transport.stop", struct{}{})
	return err
}

// Seek jumps to an absolute position.
func (s *Service) Seek(ctx context.Context, node string, positionMS int64) error {
	if positionMS < 0 {
		return &CLIError{Code: ExitUsage, Msg: "position must not be negative"}
	}
	_, err := s.send(ctx, node, "transport.seek", bp.TransportSeekBody{PositionMS: positionMS})
	return err
}

// Volume sets the playback volume, 0 to 100.
func (s *Service) Volume(ctx context.Context, node string, volume int) error {
	if volume < 0 || volume > 100 {
		return &CLIError{Code: ExitUsage, Msg: "volume must be between 0 and 100"}
	}
	_, err := s.send(ctx, node, "transport.setVolume", bp.TransportSetVolumeBody{Volume: volume})
	return err
}

// Status returns the retained state of a player node.
func (s *Service) Status(ctx context.Context, node string) (StatusResult, error) {
	nodeID := s.node(node)
	state, err := s.Broker.GetPlayerState(ctx, nodeID)
	if err != nil {
		return StatusResult{}, WrapError(ExitRuntime, "get player state", err)
	}
	return StatusResult{NodeID: nodeID, State: state}, nil
}

// Watch streams state updates for a player node until ctx is done.
func (s *Service) Watch(ctx context.Context, node string) (<-chan bp.PlayerState, <-chan error) {
	return s.Broker.WatchPlayer(ctx, s.node(node))
}

// Nodes lists player nodes seen on the bus.
func (s *Service) Nodes(ctx context.Context) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, WrapError(ExitRuntime, "list nodes", err)
	}
	return NodesResult{Nodes: nodes}, nil
}

func (s *Service) send(ctx context.Context, node, cmdType string, body any) (bp.ReplyEnvelope, error) {
	cmd, err := bp.NewCommand(cmdType, body)
	if err != nil {
		return bp.ReplyEnvelope{}, WrapError(ExitRuntime, "build command", err)
	}
	cmd.ID = uuid.NewString()
	cmd.TS = time.Now().Unix()
	cmd.From = s.Config.Identity
	cmd.ReplyTo = s.Broker.ReplyTopic()

	reply, err := s.Broker.PublishCommand(ctx, s.node(node), cmd)
	if err != nil {
		return bp.ReplyEnvelope{}, WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return bp.ReplyEnvelope{}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	return reply, nil
}

func (s *Service) node(node string) string {
	if node != "" {
		return node
	}
	return s.Config.Node
}

func (s *Service) loadState() (session.State, error) {
	values, err := s.Store.Load()
	if err != nil {
		return session.State{}, WrapError(ExitRuntime, "load session", err)
	}
	state := session.Resume(values)
	if state.DeviceID == "" {
		id, err := session.EnsureDeviceID(s.Store)
		if err != nil {
			return session.State{}, WrapError(ExitRuntime, "device identity", err)
		}
		state.DeviceID = id
	}
	return state, nil
}

func (s *Service) authenticated() (session.State, Library, error) {
	state, err := s.loadState()
	if err != nil {
		return session.State{}, nil, err
	}
	if state.Phase != session.Authenticated {
		return session.State{}, nil, &CLIError{Code: ExitAuth, Msg: "not logged in; run botify login"}
	}
	library := s.NewLibrary(state.Server, s.identity(state))
	library.SetCredentials(state.Token, state.UserID)
	return state, library, nil
}

func (s *Service) identity(state session.State) jellyfin.Identity {
	return jellyfin.Identity{DeviceID: state.DeviceID, DeviceName: s.DeviceName}
}

func (s *Service) persist(state session.State) error {
	pairs := map[string]string{
		session.KeyServer:   state.Server,
		session.KeyDeviceID: state.DeviceID,
		session.KeyToken:    state.Token,
		session.KeyUserID:   state.UserID,
	}
	for key, value := range pairs {
		if err := s.Store.Save(key, value); err != nil {
			return WrapError(ExitRuntime, "persist session", err)
		}
	}
	return nil
}

func trackSubtitle(track jellyfin.Track) string {
	artists := strings.Join(track.Artists, ", ")
	switch {
	case artists != "" && track.Album != "":
		return artists + " - " + track.Album
	case artists != "":
		return artists
	default:
		return track.Album
	}
}
