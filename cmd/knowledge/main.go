// Copyright 2026 Aperture OSS Authors
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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/aperture-oss/knowledge"
	"github.com/aperture-oss/knowledge/ai"
	"github.com/aperture-oss/knowledge/ai/openai"
	"github.com/aperture-oss/knowledge/index"
	"github.com/aperture-oss/knowledge/pkg/version"
	"github.com/aperture-oss/knowledge/query"
	"github.com/aperture-oss/knowledge/reembed"
	"github.com/aperture-oss/knowledge/server"
	"github.com/aperture-oss/knowledge/storage/badger"
)

func main() {
	app := &cli.App{
		Name:  "knowledge",
		Usage: "Semantic retrieval and answer composition over embedded text",
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
				Name:      "index",
				Usage:     "Embed and store the text fields of a collection",
				ArgsUsage: "COLLECTION_ID",
				Action:    indexCommand,
				Flags: append(storageFlags(), append(embeddingFlags(),
					&cli.StringSliceFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Text field to index as CATEGORY=TEXT (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "attr",
						Usage: "Attribute attached to every record as KEY=VALUE (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "Delete the collection's existing records before indexing",
					},
				)...),
			},
			{
				Name:      "search",
				Usage:     "Rank stored records by similarity to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: append(storageFlags(), append(embeddingFlags(),
					&cli.StringFlag{
						Name:    "collection",
						Aliases: []string{"c"},
						Usage:   "Restrict retrieval to one collection",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Restrict retrieval to one category label",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
						Value:   10,
					},
				)...),
			},
			{
				Name:      "ask",
				Usage:     "Retrieve relevant records and compose an answer",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: append(storageFlags(), append(embeddingFlags(),
					&cli.StringFlag{
						Name:  "generation-host",
						Usage: "Generation service host URL (defaults to embedding-host)",
					},
					&cli.StringFlag{
						Name:  "generation-model",
						Usage: "Generation model name",
						Value: "qwen2.5:3b",
					},
					&cli.StringFlag{
						Name:    "collection",
						Aliases: []string{"c"},
						Usage:   "Restrict retrieval to one collection",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Restrict retrieval to one category label",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of records to ground the answer on",
						Value:   5,
					},
				)...),
			},
			{
				Name:      "delete",
				Usage:     "Delete all records of a collection",
				ArgsUsage: "COLLECTION_ID",
				Action:    deleteCommand,
				Flags:     storageFlags(),
			},
			{
				Name:   "reembed",
				Usage:  "Reembed stored records with new embeddings",
				Action: reembedCommand,
				Flags: append(storageFlags(), append(embeddingFlags(),
					&cli.StringFlag{
						Name:    "collection",
						Aliases: []string{"c"},
						Usage:   "Reembed only this collection (default: all records)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				)...),
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serveCommand,
				Flags: append(storageFlags(), append(embeddingFlags(),
					&cli.StringFlag{
						Name:  "generation-host",
						Usage: "Generation service host URL (defaults to embedding-host)",
					},
					&cli.StringFlag{
						Name:  "generation-model",
						Usage: "Generation model name",
						Value: "qwen2.5:3b",
					},
					&cli.StringFlag{
						Name:  "host",
						Usage: "Address to bind to",
						Value: "127.0.0.1",
					},
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "TCP port to listen on",
						Value:   8080,
					},
					&cli.Float64Flag{
						Name:  "rate-limit",
						Usage: "Sustained requests per second allowed per client IP",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "rate-burst",
						Usage: "Maximum instantaneous burst per client IP",
						Value: 20,
					},
				)...),
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.Get().String())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// storageFlags are shared by every command that opens the database.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
	}
}

// embeddingFlags are shared by every command that calls the embedding service.
func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "api-key",
			Usage: "API key for the embedding and generation services",
		},
		&cli.IntFlag{
			Name:  "dimensions",
			Usage: "Embedding vector dimensions",
			Value: 1536,
		},
	}
}

// aiConfigFromFlags builds the provider configuration common to commands
// that talk to the embedding or generation services.
func aiConfigFromFlags(c *cli.Context) *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithDimensions(c.Int("dimensions")),
	}
	if c.String("api-key") != "" {
		opts = append(opts, ai.WithAPIKey(c.String("api-key")))
	}
	if c.String("generation-model") != "" {
		host := c.String("generation-host")
		if host == "" {
			host = c.String("embedding-host")
		}
		opts = append(opts,
			ai.WithGenerationHost(host),
			ai.WithGenerationModel(c.String("generation-model")),
		)
	}
	return ai.NewConfig(opts...)
}

func openKnowledgeBase(c *cli.Context, extra ...knowledge.Option) (*knowledge.KnowledgeBase, error) {
	opts := append([]knowledge.Option{
		knowledge.WithAIConfig(aiConfigFromFlags(c)),
	}, extra...)
	kb, err := knowledge.New(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return kb, nil
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	collectionID := c.Args().First()
	if collectionID == "" {
		return fmt.Errorf("collection id argument is required")
	}

	fields, err := parsePairs(c.StringSlice("field"))
	if err != nil {
		return fmt.Errorf("invalid --field: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("at least one --field CATEGORY=TEXT is required")
	}
	attrs, err := parsePairs(c.StringSlice("attr"))
	if err != nil {
		return fmt.Errorf("invalid --attr: %w", err)
	}

	var extra []knowledge.Option
	if c.Bool("replace") {
		extra = append(extra, knowledge.WithReplaceExisting())
	}
	kb, err := openKnowledgeBase(c, extra...)
	if err != nil {
		return err
	}
	defer kb.Close()

	indexed, err := kb.Index(ctx, collectionID, fields, &index.IndexOptions{Attributes: attrs})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Indexed %d fields into collection %s\n", indexed, collectionID)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	text := c.Args().First()
	if text == "" {
		return fmt.Errorf("query argument is required")
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	resp, err := kb.Search(ctx, query.Query{
		Text:         text,
		CollectionId: c.String("collection"),
		Category:     c.String("category"),
		TopK:         c.Int("top-k"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if resp.Total == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. [%s/%s] similarity=%.4f\n", i+1, r.Record.CollectionId, r.Record.Category, r.Similarity)
		fmt.Printf("   %s\n", r.Record.Text)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := context.Background()

	text := c.Args().First()
	if text == "" {
		return fmt.Errorf("question argument is required")
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	resp, err := kb.Answer(ctx, query.Query{
		Text:         text,
		CollectionId: c.String("collection"),
		Category:     c.String("category"),
		TopK:         c.Int("top-k"),
	})
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Println()
	fmt.Printf("Confidence: %.2f\n", resp.Confidence)
	for _, src := range resp.Sources {
		fmt.Printf("  - [%s/%s] similarity=%.4f\n", src.CollectionId, src.Category, src.Similarity)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	ctx := context.Background()

	collectionID := c.Args().First()
	if collectionID == "" {
		return fmt.Errorf("collection id argument is required")
	}

	// Deletion never calls the embedding service; open storage directly.
	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	// Dimensions only gate writes; any positive value works for deletion.
	repo, err := badger.NewEmbeddingRepository(backend, ai.DefaultConfig().Dimensions)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer repo.Close()

	deleted, err := repo.DeleteCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("Deleted %d records from collection %s\n", deleted, collectionID)
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()

	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	repo, err := badger.NewEmbeddingRepository(backend, c.Int("dimensions"))
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer repo.Close()

	aiConfig := aiConfigFromFlags(c)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reembedder := reembed.NewReembedder(repo, embedder, reembedConfig, os.Stderr)

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	var processed int
	if collection := c.String("collection"); collection != "" {
		processed, err = reembedder.RunCollection(ctx, collection)
	} else {
		processed, err = reembedder.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Reembedded %d records\n", processed)
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	srv, err := server.New(kb, &server.Config{
		Host:      c.String("host"),
		Port:      c.Int("port"),
		RateLimit: c.Float64("rate-limit"),
		RateBurst: c.Int("rate-burst"),
	}, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// parsePairs turns KEY=VALUE strings into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q is not KEY=VALUE", pair)
		}
		out[key] = value
	}
	return out, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
