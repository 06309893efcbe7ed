// Package player bridges user transport intents to a media engine and keeps
// the UI-facing transport state consistent with it.
package player

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/dispatch"
)

// CoverFetcher downloads cover art bytes.
type CoverFetcher func(url string) ([]byte, error)

// State is the UI-facing transport state. Volume is on the 0-100 display
// scale.
type State struct {
	Playing    bool
	PositionMS int64
	DurationMS int64
	Volume     int
}

// NowPlaying carries current track metadata. Cover is populated
// asynchronously once the art has been fetched.
type NowPlaying struct {
	Title    string
	Subtitle string
	CoverURL string
	Cover    []byte
}

// Transport owns transport state and drives a Driver. All mutation happens
// behind its lock; engine callbacks and user intents may arrive from
// different goroutines.
type Transport struct {
	log        *zap.Logger
	driver     Driver
	dispatcher *dispatch.Dispatcher
	fetchCover CoverFetcher

	mu        sync.Mutex
	state     State
	now       NowPlaying
	hasSource bool
	seeking   bool
}

// NewTransport creates a transport over driver. fetchCover may be nil, in
// which case cover art is skipped.
func NewTransport(log *zap.Logger, driver Driver, dispatcher *dispatch.Dispatcher, fetchCover CoverFetcher) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		log:        log,
		driver:     driver,
		dispatcher: dispatcher,
		fetchCover: fetchCover,
		state:      State{Volume: 100},
	}
}

// Play sets the playback source, replaces now-playing metadata, and fetches
// cover art in the background. The cover lands whenever the fetch completes,
// independent of playback state. On driver failure prior state is unchanged.
func (t *Transport) Play(streamURL, title, subtitle, coverURL string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.driver.Play(streamURL, 0); err != nil {
		return err
	}

	t.hasSource = true
	t.seeking = false
	t.state.Playing = true
	t.state.PositionMS = 0
	t.state.DurationMS = 0
	t.now = NowPlaying{Title: title, Subtitle: subtitle, CoverURL: coverURL}

	if coverURL != "" && t.fetchCover != nil && t.dispatcher != nil {
		t.fetchCoverAsync(coverURL)
	}
	return nil
}

func (t *Transport) fetchCoverAsync(coverURL string) {
	t.dispatcher.Submit(func() (any, error) {
		return t.fetchCover(coverURL)
	}, func(value any, err error) {
		if err != nil {
			t.log.Warn("cover fetch failed", zap.String("url", coverURL), zap.Error(err))
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		// A newer track may have started while the fetch was in flight.
		if t.now.CoverURL == coverURL {
			t.now.Cover = value.([]byte)
		}
	})
}

// TogglePlayPause pauses when playing, resumes otherwise. Without a source
// it is a no-op.
func (t *Transport) TogglePlayPause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasSource {
		return nil
	}
	if t.state.Playing {
		if err := t.driver.Pause(); err != nil {
			return err
		}
		t.state.Playing = false
		return nil
	}
	if err := t.driver.Resume(); err != nil {
		return err
	}
	t.state.Playing = true
	return nil
}

// Stop halts playback and clears the source.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.driver.Stop(); err != nil {
		return err
	}
	t.hasSource = false
	t.seeking = false
	t.state.Playing = false
	t.state.PositionMS = 0
	t.state.DurationMS = 0
	t.now = NowPlaying{}
	return nil
}

// BeginSeek marks the start of a user seek gesture. While the gesture is in
// progress the displayed position follows SeekTo and engine position
// callbacks are ignored; the engine itself is untouched until EndSeek.
func (t *Transport) BeginSeek() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seeking = true
}

// SeekTo updates the displayed position mid-gesture.
func (t *Transport) SeekTo(positionMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeking {
		return
	}
	t.state.PositionMS = positionMS
}

// EndSeek releases the gesture and applies exactly the released position to
// the engine.
func (t *Transport) EndSeek(positionMS int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seeking = false
	if !t.hasSource {
		return nil
	}
	if err := t.driver.Seek(positionMS); err != nil {
		return err
	}
	t.state.PositionMS = positionMS
	return nil
}

// Seek applies an absolute position directly, outside any drag gesture.
func (t *Transport) Seek(positionMS int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasSource {
		return errors.New("nothing playing")
	}
	if t.seeking {
		return nil
	}
	if err := t.driver.Seek(positionMS); err != nil {
		return err
	}
	t.state.PositionMS = positionMS
	return nil
}

// SetVolume maps a 0-100 display volume linearly onto the engine's 0.0-1.0
// scale.
func (t *Transport) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.driver.SetVolume(float64(volume) / 100.0); err != nil {
		return err
	}
	t.state.Volume = volume
	return nil
}

// OnPosition folds an asynchronous position/duration callback from the
// engine into the state. Ignored mid-drag so the displayed seek value is
// never overwritten by a racing callback.
func (t *Transport) OnPosition(positionMS, durationMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seeking {
		return
	}
	t.state.PositionMS = positionMS
	if durationMS > 0 {
		t.state.DurationMS = durationMS
	}
}

// Snapshot returns the current transport state and now-playing metadata.
func (t *Transport) Snapshot() (State, NowPlaying) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.now
}
