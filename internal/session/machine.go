// Package session owns the device identity, persisted auth state, and the
// Quick Connect pairing flow.
package session

import (
	"github.com/mikey-austin/botify/internal/jellyfin"
)

// Phase is the auth state machine phase.
type Phase int

const (
	// Anonymous means no usable credentials, with or without a known server.
	Anonymous Phase = iota
	// Pairing means a Quick Connect session is in flight.
	Pairing
	// Authenticated means token and user id are both set.
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Pairing:
		return "pairing"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// PairingSession is the Quick Connect session held while in Pairing.
type PairingSession struct {
	Code   string
	Secret string
}

// State is the auth state machine value. Transitions are pure functions;
// the pairer performs the I/O each transition implies. Token and UserID are
// always both set or both empty.
type State struct {
	Phase    Phase
	Server   string
	DeviceID string
	Token    string
	UserID   string
	Session  *PairingSession
}

// Resume builds the startup state from persisted values. A complete
// {server, token, user_id} triple resumes directly into Authenticated
// without re-validating the token; staleness surfaces on the first API call.
func Resume(values map[string]string) State {
	state := State{
		Phase:    Anonymous,
		Server:   values[KeyServer],
		DeviceID: values[KeyDeviceID],
	}
	token, userID := values[KeyToken], values[KeyUserID]
	if state.Server != "" && token != "" && userID != "" {
		state.Phase = Authenticated
		state.Token = token
		state.UserID = userID
	}
	return state
}

// WithServer normalizes and records a user-supplied server string and enters
// Pairing. The pairing session itself is installed by StartPairing once the
// server has issued one.
func (s State) WithServer(raw string) State {
	s.Server = jellyfin.NormalizeServer(raw)
	s.Phase = Pairing
	s.Session = nil
	return s
}

// StartPairing installs a freshly initiated pairing session.
func (s State) StartPairing(code, secret string) State {
	s.Phase = Pairing
	s.Session = &PairingSession{Code: code, Secret: secret}
	return s
}

// PollOutcome tells the pairer what a poll result requires.
type PollOutcome int

const (
	// KeepPolling continues at the next interval with the same secret.
	KeepPolling PollOutcome = iota
	// Reinitiate discards the session and starts a fresh one. This is a
	// re-arm, not a failure exit.
	Reinitiate
	// Exchange trades the approved secret for credentials.
	Exchange
)

// ApplyPoll folds a Quick Connect poll result into the state.
func (s State) ApplyPoll(result jellyfin.QuickConnectState) (State, PollOutcome) {
	if result.Authenticated {
		return s, Exchange
	}
	if result.Error != "" {
		s.Session = nil
		return s, Reinitiate
	}
	return s, KeepPolling
}

// CompleteAuth installs credentials and enters Authenticated.
func (s State) CompleteAuth(token, userID string) State {
	s.Phase = Authenticated
	s.Token = token
	s.UserID = userID
	s.Session = nil
	return s
}

// Logout clears credentials and returns to Anonymous. Server and device id
// are retained.
func (s State) Logout() State {
	s.Phase = Anonymous
	s.Token = ""
	s.UserID = ""
	s.Session = nil
	return s
}
