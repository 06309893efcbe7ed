package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey-austin/botify/internal/catalog"
	"github.com/mikey-austin/botify/internal/jellyfin"
)

// resolveTrack maps a selector to a catalog entry. A selector is a 1-based
// row number from the tracks listing, or a raw item id.
func resolveTrack(cat *catalog.Catalog, selector string) (jellyfin.Track, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return jellyfin.Track{}, &CLIError{Code: ExitUsage, Msg: "track selector required"}
	}

	if n, err := strconv.Atoi(selector); err == nil {
		track, ok := cat.Track(n - 1)
		if !ok {
			return jellyfin.Track{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no track at position %d", n)}
		}
		return track, nil
	}

	for i := 0; i < cat.Len(); i++ {
		track, _ := cat.Track(i)
		if track.ID == selector {
			return track, nil
		}
	}
	return jellyfin.Track{}, &CLIError{Code: ExitNotFound, Msg: "track not found: " + selector}
}
