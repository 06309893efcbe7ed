package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// Catalog fetches can be slow on big libraries, so they get their own
// ceiling instead of the transport command timeout.
const tracksTimeout = 30 * time.Second

func tracksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks",
		Short: "List audio tracks from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), tracksTimeout)
			defer cancel()

			result, err := app.service.Tracks(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func nodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List player nodes on the bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()

			result, err := app.service.Nodes(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
