// Copyright 2026 The Kraken Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/krakenhq/kraken"
	"github.com/krakenhq/kraken/config"
	"github.com/krakenhq/kraken/ingestion"
)

func main() {
	app := &cli.App{
		Name:  "kraken",
		Usage: "Sync channel history into a searchable vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with credentials and settings",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run one sync pass and exit",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "channel",
						Aliases: []string{"c"},
						Usage:   "Sync only this channel (default: all configured channels)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after processing this many items (0 = unlimited)",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the sync scheduler until interrupted",
				Action: serveCommand,
			},
			{
				Name:   "search",
				Usage:  "Search stored items by semantic similarity",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity a match must exceed",
						Value: -1, // sentinel: use configured default
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of matches",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func syncCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(slog.Default())
	if err != nil {
		return err
	}

	svc, err := kraken.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	channels := cfg.Channels
	if only := c.String("channel"); only != "" {
		if !config.ValidChannelID(only) {
			return fmt.Errorf("invalid channel ID %q", only)
		}
		channels = []string{only}
	}

	opts := &ingestion.RunOptions{MaxItems: c.Int("limit")}
	var failed int
	for _, channel := range channels {
		report, err := svc.Pipeline().RunSync(ctx, channel, opts)
		if err != nil {
			slog.Error("sync failed", "channel", channel, "err", err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: %s (fetched %d, embedded %d, stored %d, skipped %d, errors %d)\n",
			channel, report.Status, report.Fetched, report.Embedded,
			report.Stored, report.Skipped, report.Errors)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d channels failed", failed, len(channels))
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(slog.Default())
	if err != nil {
		return err
	}

	svc, err := kraken.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Scheduler().Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down, waiting for in-flight syncs")
	svc.Scheduler().Stop()
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(slog.Default())
	if err != nil {
		return err
	}

	svc, err := kraken.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	threshold := float32(cfg.SearchThreshold)
	if t := c.Float64("threshold"); t >= 0 {
		threshold = float32(t)
	}
	limit := cfg.SearchLimit
	if l := c.Int("limit"); l > 0 {
		limit = l
	}

	results, err := svc.Searcher().Search(ctx, c.String("query"), threshold, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stdout, "no matches")
		return nil
	}
	for i, result := range results {
		fmt.Fprintf(os.Stdout, "%d. [%.3f] %s (%s, %s)\n",
			i+1, result.Similarity, result.Item.Content,
			result.Item.Author, result.Item.CreatedAt.Format("2006-01-02 15:04"))
		if result.Item.Permalink != "" {
			fmt.Fprintf(os.Stdout, "   %s\n", result.Item.Permalink)
		}
	}
	return nil
}

// setup configures logging and loads the optional .env file before any
// command runs.
func setup(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Missing .env is fine: settings may come from the real environment.
	if err := godotenv.Load(c.String("env-file")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}
