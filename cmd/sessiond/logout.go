package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove every stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer release()

		if err := store.ClearAll(); err != nil {
			return fmt.Errorf("clearing tokens: %w", err)
		}
		log.Info().Msg("Signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
