package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func loginCommand() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login [server]",
		Short: "Authenticate with a Jellyfin server",
		Long: "Authenticate via Quick Connect by default: a short code is shown\n" +
			"which you approve in the server dashboard. With --username the\n" +
			"password flow is used instead.",
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			server := ""
			if len(args) == 1 {
				server = args[0]
			}

			if username != "" {
				if password == "" {
					return errors.New("--password is required with --username")
				}
				result, err := app.service.LoginPassword(cmd.Context(), server, username, password)
				if err != nil {
					return err
				}
				return app.printer.Print(result)
			}

			result, err := app.service.Login(cmd.Context(), server, app.printer.PairingCode)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "authenticate with a username instead of quick connect")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password for --username")

	return cmd
}

func logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.Logout(cmd.Context())
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func sessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.Session(cmd.Context())
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
