// Copyright 2025 Poiesic Systems
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
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML configuration file",
	}

	return &cli.App{
		Name:  "threatgraph",
		Usage: "Build a threat-intelligence knowledge graph from chunked reports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Process every uncommitted document in the archive into the graph",
				Action: runCommand,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "archive",
						Aliases: []string{"a"},
						Usage:   "Chunk archive (JSON array, optionally gzipped)",
					},
					&cli.StringFlag{
						Name:  "checkpoint",
						Usage: "Checkpoint file of committed document ids",
					},
					&cli.StringFlag{
						Name:    "graph",
						Aliases: []string{"g"},
						Usage:   "Path to BadgerDB graph directory",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Documents processed concurrently",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Run the stages without writing the graph or checkpoint",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address, e.g. :9090",
					},
				},
			},
			{
				Name:   "reconstruct",
				Usage:  "Reconstruct documents from an archive and report statistics",
				Action: reconstructCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "archive",
						Aliases:  []string{"a"},
						Usage:    "Chunk archive (JSON array, optionally gzipped)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "min-length",
						Usage: "Shortest chunk text kept",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "max-length",
						Usage: "Longest chunk text kept",
						Value: 2048,
					},
					&cli.StringFlag{
						Name:  "duplicates",
						Usage: "Duplicate position policy (keep_all, keep_first)",
						Value: "keep_all",
					},
					&cli.BoolFlag{
						Name:  "print",
						Usage: "Print reconstructed documents as JSON lines",
					},
				},
			},
			{
				Name:   "chunk",
				Usage:  "Split raw threat records into a chunk archive",
				Action: chunkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "JSON array of raw records",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Archive to write; a .gz suffix enables compression",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum characters per chunk",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Characters shared by adjacent chunks",
						Value: 200,
					},
					&cli.IntFlag{
						Name:  "min-length",
						Usage: "Shortest chunk kept",
						Value: 50,
					},
				},
			},
			{
				Name:   "runs",
				Usage:  "List recent run summaries",
				Action: runsCommand,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "graph",
						Aliases: []string{"g"},
						Usage:   "Path to BadgerDB graph directory",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
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

	return nil
}
