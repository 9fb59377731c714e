package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/elaborate"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/store"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadIfExists(cmd.String("config"), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// runMCP serves the note tools over MCP stdio instead of HTTP.
func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	var (
		captioner noteservice.Captioner
		elabSvc   *elaborate.Service
	)
	if cfg.LLM.APIKey != "" {
		capt, err := llm.NewCaptioner(llm.Config{
			APIKey:       cfg.LLM.APIKey,
			CaptionModel: cfg.LLM.CaptionModel,
			BaseURL:      cfg.LLM.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("init captioner: %w", err)
		}
		captioner = capt

		modelClient, err := llm.New(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("init llm client: %w", err)
		}
		elabSvc = elaborate.NewService(
			db,
			elaborate.NewQueryBuilder(modelClient),
			search.New(cfg.Search.APIKey, cfg.Search.Endpoint, cfg.Search.Timeout()),
			elaborate.NewRanker(modelClient),
			elaborate.NewGenerator(modelClient),
			nil,
			elaborate.Config{
				TTL:           cfg.Elaborate.TTL(),
				MaxSources:    cfg.Elaborate.MaxSources,
				SearchResults: cfg.Elaborate.SearchResults,
				Region:        cfg.Elaborate.Region,
			},
		)
	}

	svc := noteservice.NewService(db, captioner)
	return mcpserver.New(svc, elabSvc).ServeStdio()
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "ansuz",
		Usage:  "Note-taking backend with AI elaboration, web-sourced citations, and image captions",
		Action: run,
		Flags:  []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve note tools over MCP stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
