package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	if configPath != "" {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runExecute(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: ansuz run <notebook-id>")
	}
	if server := cmd.String("server"); server != "" {
		cfg.Remote.BaseURL = server
	}
	return internal.ExecuteNotebook(ctx, cfg, id)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Sources: cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "ansuz",
		Usage: "Notebook client runtime: execute remote notebooks and keep them saved",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Execute every code cell of a remote notebook and save it",
				Action: runExecute,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "server",
						Usage: "Document store base URL (overrides config)",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the local lab server (documents + echo kernel)",
				Action: runServe,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
