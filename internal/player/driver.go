package player

// Driver executes playback actions on the underlying media engine. Volume is
// on the engine's 0.0-1.0 scale.
type Driver interface {
	Play(url string, positionMS int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionMS int64) error
	SetVolume(volume float64) error
	Position() (positionMS int64, durationMS int64, ok bool)
}
