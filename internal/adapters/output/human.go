package output

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/botify/internal/catalog"
	"github.com/mikey-austin/botify/internal/core"
	"github.com/mikey-austin/botify/pkg/bp"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.LoginResult:
		pterm.Success.Printfln("logged in to %s as user %s", data.Server, data.UserID)
		return nil
	case core.SessionResult:
		return printSession(data)
	case core.TracksResult:
		return printTracks(data)
	case core.NodesResult:
		return printNodes(data)
	case core.StatusResult:
		return printStatus(data)
	case core.PlayResult:
		_, err := fmt.Fprintf(os.Stdout, "playing %s on %s\n", formatTrackLabel(data.Title, data.Subtitle), data.NodeID)
		return err
	case bp.PlayerState:
		_, err := fmt.Fprintln(os.Stdout, formatState("", data))
		return err
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

// PairingCode shows the Quick Connect code prominently.
func (HumanPrinter) PairingCode(code string) {
	pterm.DefaultBox.WithTitle("quick connect").Println(code)
	pterm.Info.Println("enter this code in the server dashboard, waiting for approval")
}

func printSession(result core.SessionResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "phase\t%s\n", result.Phase)
	if result.Server != "" {
		fmt.Fprintf(tw, "server\t%s\n", result.Server)
	}
	if result.UserID != "" {
		fmt.Fprintf(tw, "user\t%s\n", result.UserID)
	}
	if result.DeviceID != "" {
		fmt.Fprintf(tw, "device\t%s\n", result.DeviceID)
	}
	return tw.Flush()
}

func printTracks(result core.TracksResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, tracksHeader()); err != nil {
		return err
	}
	for i := 0; i < result.Catalog.Len(); i++ {
		cells, _ := result.Catalog.Row(i)
		_, err := fmt.Fprintf(tw, "%d\t%s\n", i+1, strings.Join(cells[:catalog.ColumnID], "\t"))
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

// tracksHeader derives the header from the catalog's display columns; the
// item id column stays data-only.
func tracksHeader() string {
	header := []string{"#"}
	for _, column := range catalog.Columns[:catalog.ColumnID] {
		header = append(header, strings.ToUpper(column))
	}
	return strings.Join(header, "\t")
}

func printNodes(result core.NodesResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tKIND\tNODE_ID"); err != nil {
		return err
	}
	for _, node := range result.Nodes {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", node.Name, node.Kind, node.NodeID); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printStatus(result core.StatusResult) error {
	_, err := fmt.Fprintln(os.Stdout, formatState(result.NodeID, result.State))
	return err
}

func formatState(nodeID string, state bp.PlayerState) string {
	status := "stopped"
	if state.Track != nil {
		status = "paused"
	}
	if state.Playing {
		status = "playing"
	}

	line := fmt.Sprintf("[%s]", status)
	if nodeID != "" {
		line = nodeID + "  " + line
	}
	if state.Track != nil {
		line += "  " + formatTrackLabel(state.Track.Title, state.Track.Subtitle)
		line += "  " + formatPosition(state.PositionMS, state.DurationMS)
	}
	return fmt.Sprintf("%s  vol %d%%", line, state.Volume)
}

func formatTrackLabel(title, subtitle string) string {
	if subtitle == "" {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, subtitle)
}

func formatPosition(positionMS, durationMS int64) string {
	if durationMS <= 0 {
		return formatMS(positionMS)
	}
	return formatMS(positionMS) + "/" + formatMS(durationMS)
}

func formatMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
