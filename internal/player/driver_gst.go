//go:build gstreamer

package player

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// GstDriver implements Driver with a GStreamer pipeline built from a
// template. The template may reference {url}, {device} and {volume}.
type GstDriver struct {
	mu       sync.Mutex
	pipeline string
	device   string
	volume   float64
	current  *gst.Element
}

var gstInitOnce sync.Once

// NewGstDriver creates a GStreamer driver using a pipeline template.
func NewGstDriver(pipeline string, device string) (*GstDriver, error) {
	if strings.TrimSpace(pipeline) == "" {
		return nil, errors.New("pipeline template required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
	return &GstDriver{pipeline: pipeline, device: device, volume: 1.0}, nil
}

// Play starts playback for the URL.
func (d *GstDriver) Play(url string, positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline, err := d.buildPipeline(url)
	if err != nil {
		return err
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return err
	}
	if positionMS > 0 {
		_ = d.seekLocked(pipeline, positionMS)
	}

	d.stopCurrentLocked()
	d.current = pipeline
	return nil
}

// Pause pauses playback.
func (d *GstDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePaused)
}

// Resume resumes playback.
func (d *GstDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePlaying)
}

// Stop stops playback.
func (d *GstDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopCurrentLocked()
	return nil
}

// Seek seeks within the current pipeline.
func (d *GstDriver) Seek(positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.seekLocked(d.current, positionMS)
}

// SetVolume sets volume (0..1).
func (d *GstDriver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.volume = volume
	if d.current != nil {
		_ = d.current.SetProperty("volume", volume)
	}
	return nil
}

// Position reports the current position and duration in milliseconds.
func (d *GstDriver) Position() (int64, int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return 0, 0, false
	}
	position, ok := d.current.QueryPosition(gst.FormatTime)
	if !ok {
		return 0, 0, false
	}
	duration, _ := d.current.QueryDuration(gst.FormatTime)
	return position / int64(time.Millisecond), duration / int64(time.Millisecond), true
}

func (d *GstDriver) buildPipeline(url string) (*gst.Element, error) {
	pipeline := d.pipeline
	pipeline = strings.ReplaceAll(pipeline, "{url}", url)
	pipeline = strings.ReplaceAll(pipeline, "{device}", d.device)
	pipeline = strings.ReplaceAll(pipeline, "{volume}", fmt.Sprintf("%0.2f", d.volume))
	return gst.ParseLaunch(pipeline)
}

func (d *GstDriver) stopCurrentLocked() {
	if d.current == nil {
		return
	}
	_ = d.current.SetState(gst.StateNull)
	d.current = nil
}

func (d *GstDriver) seekLocked(pipeline *gst.Element, positionMS int64) error {
	positionNS := positionMS * int64(time.Millisecond)
	return pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit, positionNS)
}
