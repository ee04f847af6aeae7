package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/jrsteele09/go-session-keeper/notify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sign in if needed and keep the session alive until interrupted",
	Long: `Restores the stored session or signs in, then watches it. While a warning is
shown, type "extend" to sign in again or "dismiss" to close it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(parent context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	displayAppname(cfg.GetAppName())

	console := notify.NewConsole(os.Stdout)
	app, release, err := newAuthenticator(ctx, cfg, console)
	if err != nil {
		return err
	}
	defer release()

	if err := app.Start(ctx); err != nil {
		return err
	}
	if !app.Authenticated() {
		if err := app.TriggerLogin(ctx); err != nil {
			return err
		}
	}
	log.Info().Str("mode", app.State().Mode.String()).Msg("Session active")

	go func() {
		if err := console.ReadIntents(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			log.Err(err).Msg("Stopped reading intents")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}
