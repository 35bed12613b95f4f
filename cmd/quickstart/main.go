// Command quickstart walks through the basic client operations against the
// account named by DOCDB_ENDPOINT and DOCDB_KEY, or against an in-process
// emulator when no endpoint is configured.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/fivetwenty-io/docdb-client/internal/logging"
	"github.com/fivetwenty-io/docdb-client/internal/quickstart"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func main() {
	os.Exit(run())
}

func run() int {
	v := quickstart.NewViper()
	settings, err := quickstart.LoadSettings(v)

	logger := logging.Configure(logging.Options{
		Level:  v.GetString("log_level"),
		Format: logFormat(v.GetString("log_format")),
		Output: os.Stdout,
	})

	if err != nil {
		logger.Error().Err(err).Msg("loading settings")

		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, release, err := quickstart.Connect(ctx, settings, logger)
	if err != nil {
		logger.Error().Err(err).Msg("creating client")

		return 1
	}

	defer release()

	return walkthrough(ctx, client, logger)
}

func walkthrough(ctx context.Context, client docdb.Client, logger zerolog.Logger) int {
	opts := quickstart.DefaultOptions()
	opts.Logger = logger

	_, err := quickstart.Run(ctx, client, opts)
	if err != nil {
		logger.Error().Err(err).Msg("quickstart failed")

		return 1
	}

	logger.Info().Msg("demo complete, please hold while resources are released")

	return 0
}

func logFormat(format string) string {
	if format == "" {
		return logging.FormatConsole
	}

	return format
}
