package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lazytree/internal"
	pkgconfig "github.com/starford/lazytree/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func printTree(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithStateFile(cmd.String("state")),
		internal.WithFilter(cmd.String("filter")),
		internal.WithExpandAll(cmd.Bool("expand-all")),
		internal.WithWatch(cmd.Bool("watch")),
		internal.WithIDs(cmd.Bool("ids")),
	}
	if err := internal.RunPrint(ctx, opts...); err != nil {
		return fmt.Errorf("print error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "lazytree",
		Usage:  "Lazily loaded tree store with a REST API, a text view and MCP tools",
		Action: serve,
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
				Name:   "serve",
				Usage:  "Run the tree HTTP server",
				Action: serve,
			},
			{
				Name:   "print",
				Usage:  "Print the tree",
				Action: printTree,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "File that keeps expanded nodes between runs",
					},
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Only print nodes whose label matches",
					},
					&cli.BoolFlag{
						Name:  "expand-all",
						Usage: "Expand every loaded node",
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Print again whenever the server reports a change",
					},
					&cli.BoolFlag{
						Name:  "ids",
						Usage: "Print node ids",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the tree as MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
