package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cadence/internal"
	pkgconfig "github.com/starford/cadence/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunImport(ctx, cmd.Args().First(), os.Stdout, opts...)
}

func runContext(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	at, err := atFlag(cmd)
	if err != nil {
		return err
	}
	return internal.RunContext(ctx, at, os.Stdout, opts...)
}

func runThresholdPace(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	at, err := atFlag(cmd)
	if err != nil {
		return err
	}
	return internal.RunThresholdPace(ctx, at, os.Stdout, opts...)
}

func atFlag(cmd *cli.Command) (time.Time, error) {
	v := cmd.String("at")
	if v == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be an RFC 3339 time: %w", err)
	}
	return at, nil
}

func runArchive(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunArchive(ctx, cmd.Bool("session"), os.Stdout, opts...)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "cadence",
		Usage:   "Activity memory for a training assistant: FIT import, training metrics, horizons and beliefs",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import new and changed recordings once and print the report",
				ArgsUsage: "[dir]",
				Action:    runImport,
			},
			{
				Name:  "context",
				Usage: "Print the session, 7-day and 28-day summaries",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "at", Usage: "RFC 3339 reference time (default now)"},
				},
				Action: runContext,
			},
			{
				Name:  "threshold-pace",
				Usage: "Estimate threshold pace from the hard runs of the last 28 days",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "at", Usage: "RFC 3339 reference time (default now)"},
				},
				Action: runThresholdPace,
			},
			{
				Name:  "archive",
				Usage: "Archive stale beliefs",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "session", Usage: "Also archive session-scoped beliefs"},
				},
				Action: runArchive,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
