package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play <track>",
		Short: "Play a track on a node",
		Long:  "The track is a row number from `botify tracks`, or an item id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), tracksTimeout)
			defer cancel()

			result, err := app.service.Play(ctx, "", args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func pauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			return app.service.Pause(ctx, "")
		},
	}
}

func toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle between playing and paused",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			return app.service.Toggle(ctx, "")
		},
	}
}

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			return app.service.Stop(ctx, "")
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <position>",
		Short: "Seek to a position",
		Long:  "Position is a duration such as 1m30s, or a plain millisecond count.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			positionMS, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			return app.service.Seek(ctx, "", positionMS)
		},
	}
}

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0-100>",
		Short: "Set playback volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			volume, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("volume must be a number: %w", err)
			}
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			return app.service.Volume(ctx, "", volume)
		},
	}
}

func parsePosition(arg string) (int64, error) {
	if d, err := time.ParseDuration(arg); err == nil {
		return d.Milliseconds(), nil
	}
	ms, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("position must be a duration or milliseconds: %q", arg)
	}
	return ms, nil
}
