package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kirillkom/culture-relevance/internal/bootstrap"
	"github.com/kirillkom/culture-relevance/internal/config"
	"github.com/kirillkom/culture-relevance/internal/observability/logging"
)

// Run executes the offline tooling: batch scoring and catalog import. Logs
// go to stderr, results to stdout or --output.
func Run(ctx context.Context, args []string) error {
	var logLevel string

	app := &cli.Command{
		Name:  "culture-batch",
		Usage: "Offline cultural relevance scoring and catalog import",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Destination: &logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "batch", logLevel))
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdScore(),
			cmdImportCatalog(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		slog.Error("batch_command_failed", "error", err)
		return err
	}
	return nil
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, config.Load(), bootstrap.Options{Service: "batch"})
}
