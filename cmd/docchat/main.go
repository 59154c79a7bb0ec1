package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"docchat/internal/chat"
	"docchat/internal/citation"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/engine"
	"docchat/internal/failure"
	"docchat/internal/metrics"
	"docchat/internal/provider"
	"docchat/internal/queryopt"
	"docchat/internal/storage"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "docchat",
		Short:   "docchat: ask questions about your documents with verified citations",
		Long:    "docchat stores documents compressed and content-addressed, answers questions about them through an LLM, and verifies every citation against the source text.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.docchat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(docsCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config to ~/.docchat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// openStore builds the configured document store backend.
func openStore(cfg *config.Config) (domain.DocumentStore, error) {
	storeCfg := storage.Config{
		TTLDays:      cfg.Storage.TTLDays,
		ChunkSize:    cfg.Storage.ChunkSize,
		ChunkOverlap: cfg.Storage.ChunkOverlap,
		Logger:       logger,
	}
	if cfg.Storage.Backend == "sqlite" {
		return storage.NewSQLiteStore(cfg.Storage.DBPath, storeCfg)
	}
	return storage.NewManager(storeCfg), nil
}

func buildProvider(cfg *config.Config) (domain.Provider, error) {
	specs := make([]provider.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, provider.Spec{
			Name:    p.Name,
			APIBase: p.APIBase,
			APIKey:  p.APIKey,
			Model:   p.Model,
		})
	}
	return provider.NewChain(specs, logger)
}

func buildEngine(cfg *config.Config, store domain.DocumentStore, prov domain.Provider) (*engine.Engine, error) {
	lexicon, err := queryopt.LoadLexicon(cfg.Query.LexiconPath, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Config{
		Optimizer: queryopt.New(queryopt.Config{Lexicon: &lexicon, Logger: logger}),
		Chat: chat.NewManager(chat.Config{
			MaxHistory:    cfg.Conversation.MaxHistory,
			MaxTokens:     cfg.Conversation.MaxTokens,
			CacheCapacity: cfg.Conversation.CacheCapacity,
			EvictBatch:    cfg.Conversation.EvictBatch,
			Logger:        logger,
		}),
		Citations: citation.NewEngine(citation.EngineConfig{
			FuzzyThreshold: cfg.Citations.FuzzyThreshold,
			Logger:         logger,
		}),
		Store:              store,
		Provider:           prov,
		Advisor:            failure.NewAdvisor(failure.AdvisorConfig{Logger: logger}),
		Logger:             logger,
		DuplicateThreshold: cfg.Query.DuplicateThreshold,
		ContextBudget:      cfg.Query.ContextBudget,
	}), nil
}

func chatCmd() *cobra.Command {
	var docPath string
	var docID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question-answering session against a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			prov, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			if err := prov.Healthy(ctx); err != nil {
				logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
			}

			eng, err := buildEngine(cfg, store, prov)
			if err != nil {
				return err
			}

			if cfg.Metrics.Enabled {
				go serveMetrics(cfg.Metrics.Listen)
			}

			id, err := resolveDocument(ctx, store, docPath, docID)
			if err != nil {
				return err
			}

			if n, err := eng.Resume(ctx, id); err == nil && n > 0 {
				fmt.Printf("Resumed conversation with %d messages.\n", n)
			}

			return runREPL(ctx, eng, id)
		},
	}
	cmd.Flags().StringVarP(&docPath, "file", "f", "", "document file to ingest and chat about")
	cmd.Flags().StringVarP(&docID, "doc", "d", "", "id of an already stored document")
	return cmd
}

// resolveDocument ingests --file or looks up --doc; with neither it falls
// back to the most recently accessed stored document.
func resolveDocument(ctx context.Context, store domain.DocumentStore, docPath, docID string) (string, error) {
	if docPath != "" {
		data, err := os.ReadFile(docPath)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		res, err := store.StoreDocument(ctx, filepath.Base(docPath), string(data), nil)
		if err != nil {
			return "", err
		}
		if res.Duplicate {
			fmt.Printf("Identical content already stored as %s; continuing with it.\n", res.ID)
		} else {
			fmt.Printf("Stored %s as %s.\n", filepath.Base(docPath), res.ID)
		}
		return res.ID, nil
	}

	if docID != "" {
		doc, err := store.GetDocument(ctx, docID)
		if err != nil {
			return "", err
		}
		if doc == nil {
			return "", fmt.Errorf("no document with id %s", docID)
		}
		return docID, nil
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no documents stored; run with --file to ingest one")
	}
	fmt.Printf("Using most recent document %s (%s).\n", docs[0].Filename, docs[0].ID)
	return docs[0].ID, nil
}

func runREPL(ctx context.Context, eng *engine.Engine, docID string) error {
	fmt.Println("Ask questions about the document. Commands: /suggest, /stats, /quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/stats":
			printStats(eng.Stats())
			continue
		case strings.HasPrefix(line, "/suggest"):
			question := strings.TrimSpace(strings.TrimPrefix(line, "/suggest"))
			for _, s := range eng.Suggestions(question, "") {
				fmt.Println("  •", s)
			}
			continue
		}

		answer, err := eng.Ask(ctx, docID, line)
		if err != nil {
			return err
		}
		printAnswer(answer)
	}
}

func printAnswer(a *engine.Answer) {
	if a.Duplicate != nil {
		fmt.Printf("(similar to an earlier question: %q, %.0f%% match)\n",
			a.Duplicate.PreviousQuestion, a.Duplicate.Similarity*100)
	}
	if a.Quality.Quality != queryopt.QualityOptimal && len(a.Quality.Suggestions) > 0 {
		fmt.Printf("(question quality: %s. %s)\n", a.Quality.Quality, a.Quality.Suggestions[0])
	}

	if a.Advice != nil {
		fmt.Println()
		fmt.Println(a.Advice.Title)
		fmt.Println(a.Advice.Message)
		if a.Advice.RetryDelay != nil {
			fmt.Printf("Retry in about %d seconds.\n", *a.Advice.RetryDelay)
		}
		return
	}

	fmt.Println()
	fmt.Println(a.Response)
	if a.Verification != nil {
		fmt.Println()
		fmt.Println(citation.FormatDisplay(a.Citation, a.Verification))
	}
	if a.FromCache {
		fmt.Println("(served from cache)")
	}
}

func printStats(s chat.ConversationStats) {
	fmt.Printf("messages: %d (user %d, assistant %d)\n", s.TotalMessages, s.UserMessages, s.AssistantMessages)
	fmt.Printf("cache hits: %d, feedback: %d\n", s.CacheHits, s.FeedbackCount)
	fmt.Printf("avg length: user %d, assistant %d\n", s.AvgUserMessageLength, s.AvgAIMessageLength)
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	logger.Info("metrics listening", "addr", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error("metrics server", "err", err)
	}
}
