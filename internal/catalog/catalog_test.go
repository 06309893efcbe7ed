package catalog

import (
	"testing"

	"github.com/mikey-austin/botify/internal/jellyfin"
)

func TestFormatTicks(t *testing.T) {
	cases := map[int64]string{
		0:             "0:00",
		1_230_000_000: "2:03",
		9_000_000:     "0:00",
		10_000_000:    "0:01",
		600_000_000:   "1:00",
		-5:            "0:00",
	}
	for ticks, want := range cases {
		if got := FormatTicks(ticks); got != want {
			t.Fatalf("FormatTicks(%d) = %q, want %q", ticks, got, want)
		}
	}
}

func TestRowProjection(t *testing.T) {
	c := New([]jellyfin.Track{
		{ID: "t1", Name: "Alpha", Album: "LP", Artists: []string{"A", "B"}, RunTimeTicks: 1_230_000_000},
	})

	row, ok := c.Row(0)
	if !ok {
		t.Fatalf("expected row 0")
	}
	if len(row) != len(Columns) {
		t.Fatalf("expected %d cells, got %d", len(Columns), len(row))
	}
	if row[0] != "Alpha" || row[1] != "A, B" || row[2] != "LP" || row[3] != "2:03" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[ColumnID] != "t1" {
		t.Fatalf("expected id cell, got %q", row[ColumnID])
	}
}

func TestOutOfRangeLookups(t *testing.T) {
	c := New([]jellyfin.Track{{ID: "t1", Name: "Alpha"}})

	if _, ok := c.Track(-1); ok {
		t.Fatalf("expected not found for negative row")
	}
	if _, ok := c.Track(1); ok {
		t.Fatalf("expected not found past end")
	}
	if _, ok := c.Row(5); ok {
		t.Fatalf("expected not found row")
	}
	if id, ok := c.TrackID(0); !ok || id != "t1" {
		t.Fatalf("expected id lookup, got %q %v", id, ok)
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	tracks := []jellyfin.Track{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	c := New(tracks)

	for i, want := range []string{"b", "a", "c"} {
		if id, _ := c.TrackID(i); id != want {
			t.Fatalf("row %d: got %q, want %q", i, id, want)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("unexpected length %d", c.Len())
	}
}
