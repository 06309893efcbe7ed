package main

import (
	"github.com/spf13/cobra"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show player status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if watch {
				return watchStatus(cmd, app)
			}
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()
			result, err := app.service.Status(ctx, "")
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "watch status updates")

	return cmd
}

func watchStatus(cmd *cobra.Command, app *app) error {
	ctx := cmd.Context()

	initial, err := app.service.Status(ctx, "")
	if err != nil {
		return err
	}
	if err := app.printer.Print(initial); err != nil {
		return err
	}

	states, errs := app.service.Watch(ctx, "")
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if err := app.printer.Print(state); err != nil {
				return err
			}
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
