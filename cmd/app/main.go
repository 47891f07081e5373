package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/taskservice"
	pkgconfig "github.com/starford/raido/pkg/config"
)

// version is set at build time via -ldflags.
var version = "dev"

// loadConfig reads the --config file, keeping defaults when it does not exist,
// and applies the global flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("repo") {
		cfg.Repo.Path = cmd.String("repo")
	}
	if cmd.IsSet("identity") {
		cfg.Identity.Name = cmd.String("identity")
		if err := cfg.Identity.Validate(); err != nil {
			return nil, fmt.Errorf("identity: %w", err)
		}
	}
	return cfg, nil
}

// cliLogger writes human-readable logs to stderr, keeping stdout for output.
func cliLogger(cfg *internal.Config, verbose bool) *slog.Logger {
	level := log.Level(cfg.App.LogLevel)
	if !verbose && level < log.WarnLevel {
		level = log.WarnLevel
	}
	return slog.New(log.NewWithOptions(os.Stderr, log.Options{
		Level:  level,
		Prefix: "raido",
	}))
}

// openService loads the config and opens the repository for a one-shot command.
func openService(ctx context.Context, cmd *cli.Command) (*taskservice.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(ctx, cfg, cliLogger(cfg, cmd.Bool("verbose")))
}

// withService runs fn against an opened service and closes it afterwards.
func withService(fn func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		svc, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer svc.System().Close()
		return fn(ctx, cmd, svc)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("watch") {
		cfg.Watch.Enabled = cmd.Bool("watch")
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	svc, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.System().Close()
	return mcpserver.New(svc, version).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:    "raido",
		Usage:   "Local task tracker with Markdown tasks, signed change history and a SQLite index",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"C"},
				Usage:   "Repository directory (searched upwards for .raido)",
				Sources: cli.EnvVars("RAIDO_REPO"),
			},
			&cli.StringFlag{
				Name:    "identity",
				Usage:   "Identity profile name",
				Sources: cli.EnvVars("RAIDO_IDENTITY"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at the configured level instead of warnings only",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			identityCommand(),
			createCommand(),
			showCommand(),
			listCommand(),
			editCommand(),
			bulkEditCommand(),
			historyCommand(),
			reindexCommand(),
			syncCommand(),
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and the SSE event stream",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "Reindex tasks edited outside raido"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
