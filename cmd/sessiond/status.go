package main

import (
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/token"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how long each stored token remains valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, release, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer release()

		calc := token.NewCalculator(store)
		for _, kind := range token.Kinds {
			raw, err := store.Get(kind)
			switch {
			case errors.Is(err, apperrors.ErrTokenNotFound) || raw == "":
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s absent\n", kind)
			case err != nil:
				return err
			case calc.Remaining(kind) <= 0:
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s expired\n", kind)
			default:
				minutes, seconds := calc.Components(kind)
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d minutes and %d seconds\n", kind, minutes, seconds)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
