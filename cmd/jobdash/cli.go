package main

import (
	"log/slog"
	"os"

	"github.com/nixpig/jobdash/internal/config"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "jobdash",
		Short:        "Embeddable dashboard for running and inspecting jobs",
		Version:      version,
		SilenceUsage: true,
	}

	c.AddCommand(serveCmd())

	c.CompletionOptions.HiddenDefaultCmd = true

	return c
}

func serveCmd() *cobra.Command {
	cfg := config.Default()

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Example: "  jobdash serve --debug\n" +
			"  jobdash serve --config jobdash.yaml --http-addr :8080",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(cmd.Flags()); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return newServer(cfg, newLogger(cfg.Debug)).run(cmd.Context())
		},
	}

	cfg.BindFlags(c.Flags())

	return c
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
