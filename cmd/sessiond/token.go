package main

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-session-keeper/notify"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the stored access token, renewing it first if it has expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, release, err := newAuthenticator(cmd.Context(), cfg, notify.NewConsole(os.Stderr))
		if err != nil {
			return err
		}
		defer release()

		if err := app.Start(cmd.Context()); err != nil {
			return err
		}
		access, err := app.GetToken(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), access)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
