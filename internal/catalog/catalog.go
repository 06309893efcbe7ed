// Package catalog projects fetched track records into a row-indexed tabular
// view. A projection is read-only; a new fetch replaces it wholesale.
package catalog

import (
	"fmt"
	"strings"

	"github.com/mikey-austin/botify/internal/jellyfin"
)

// Columns are the display columns, in order. Id is carried in the data but
// hidden from default rendering.
var Columns = []string{"Title", "Artists", "Album", "Duration", "Id"}

// ColumnID is the index of the hidden Id column.
const ColumnID = 4

// Catalog is an ordered, row-indexed view over fetched tracks. Row order is
// the server's response order (server-sorted by name).
type Catalog struct {
	tracks []jellyfin.Track
}

// New builds a projection over tracks.
func New(tracks []jellyfin.Track) *Catalog {
	return &Catalog{tracks: tracks}
}

// Len returns the number of rows.
func (c *Catalog) Len() int { return len(c.tracks) }

// Track returns the underlying record at row, or false when out of range.
func (c *Catalog) Track(row int) (jellyfin.Track, bool) {
	if row < 0 || row >= len(c.tracks) {
		return jellyfin.Track{}, false
	}
	return c.tracks[row], true
}

// Tracks returns the underlying records in row order.
func (c *Catalog) Tracks() []jellyfin.Track { return c.tracks }

// TrackID returns the item id at row, or false when out of range.
func (c *Catalog) TrackID(row int) (string, bool) {
	track, ok := c.Track(row)
	if !ok {
		return "", false
	}
	return track.ID, true
}

// Row returns the display cells for row, in Columns order.
func (c *Catalog) Row(row int) ([]string, bool) {
	track, ok := c.Track(row)
	if !ok {
		return nil, false
	}
	return []string{
		track.Name,
		strings.Join(track.Artists, ", "),
		track.Album,
		FormatTicks(track.RunTimeTicks),
		track.ID,
	}, true
}

// FormatTicks renders a tick duration (100ns units) as M:SS.
func FormatTicks(ticks int64) string {
	if ticks < 0 {
		ticks = 0
	}
	seconds := ticks / 10_000_000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
