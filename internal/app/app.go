// Package app wires the memory subsystem together from configuration:
// LLM client, vector store backend, knowledge graph, conversation log
// and the memory manager on top of them.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/config"
	"github.com/utakata/mnemosyne/internal/convlog"
	"github.com/utakata/mnemosyne/internal/fetcher"
	"github.com/utakata/mnemosyne/internal/graph"
	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/internal/memory"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/internal/vector/pgvec"
	"github.com/utakata/mnemosyne/internal/vector/sqlitevec"
)

// App holds every wired component. Close releases them in reverse
// order.
type App struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Client       *llm.Client
	Store        vector.Store
	Graph        *graph.Retriever
	Watcher      *graph.Watcher
	Profile      *memory.UserProfile
	Manager      *memory.Manager
	Conversation *convlog.Conversation
}

// Options selects which optional components New starts.
type Options struct {
	// WatchGraph reloads the knowledge graph when another process
	// rewrites it. The chat binary wants this; ingest does not.
	WatchGraph bool
	// WithConversation opens the sharded conversation log and its
	// summarizer. Ingest-style tools leave it off.
	WithConversation bool
}

// New wires an App from configuration.
func New(cfg *config.Config, opts Options, logger *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data := cfg.Storage.DataPath

	client := llm.NewClient(llm.ClientConfig{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		EmbeddingDims:     cfg.LLM.EmbeddingDims,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           cfg.LLM.Timeout.Std(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)

	store, err := openStore(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	g := graph.OpenRetriever(
		filepath.Join(data, "knowledge_graph.json"),
		filepath.Join(data, "alias.json"),
		graph.RetrieverOptions{
			MaxPathDepth: cfg.Memory.MaxPathDepth,
			MaxPaths:     cfg.Memory.MaxPaths,
			MaxNeighbors: cfg.Memory.MaxGraphHits,
		}, logger)

	a := &App{
		Config: cfg,
		Logger: logger,
		Client: client,
		Store:  store,
		Graph:  g,
	}

	if opts.WatchGraph {
		a.Watcher = graph.NewWatcher(g, logger)
		if err := a.Watcher.Start(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("app: start graph watcher: %w", err)
		}
	}

	var f fetcher.Fetcher = fetcher.Disabled{}
	if cfg.Fetcher.WikiBaseURL != "" {
		f = fetcher.NewWikiFetcher(fetcher.WikiOptions{
			BaseURL:  cfg.Fetcher.WikiBaseURL,
			CacheTTL: cfg.Fetcher.CacheTTL.Std(),
		}, logger)
	}

	a.Profile = memory.OpenUserProfile(filepath.Join(data, "user_profile.json"), logger)
	searcher := memory.NewSearcher(store, g, f, client, memory.SearcherOptions{
		MaxVectorHits: cfg.Memory.MaxVectorHits,
		MaxGraphHits:  cfg.Memory.MaxGraphHits,
	}, logger)
	writer := memory.NewWriter(store, a.Profile,
		filepath.Join(data, "recent_update.json"), client, logger)
	a.Manager = memory.NewManager(searcher, writer, logger)

	if opts.WithConversation {
		conv, err := convlog.Open(
			filepath.Join(data, "history"),
			filepath.Join(data, "context.json"),
			convlog.Options{
				Log: convlog.LogOptions{
					MaxFileLines: cfg.Memory.MaxFileLines,
					RecentLimit:  cfg.Memory.RecentLimit,
				},
				Summarizer: convlog.SummarizerOptions{
					RawContextLimit: cfg.Memory.RawContextLimit,
					RetainCount:     cfg.Memory.RetainCount,
					ForgetDays:      cfg.Memory.ForgetDays,
				},
			}, client, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Conversation = conv
	}
	return a, nil
}

func openStore(cfg *config.Config, client *llm.Client, logger *logrus.Logger) (vector.Store, error) {
	data := cfg.Storage.DataPath
	switch cfg.Storage.VectorBackend {
	case "columnar":
		return vector.OpenColumnarStore(filepath.Join(data, "vectors"), vector.ColumnarOptions{
			SearchIterations: cfg.Memory.SearchIterations,
			TagFanout:        cfg.Memory.TagFanout,
		}, client, logger)
	case "chromem":
		return vector.OpenChromemStore(filepath.Join(data, "chromem"), cfg.Storage.Collection, client, logger)
	case "sqlite":
		return sqlitevec.Open(filepath.Join(data, "vectors.db"), client, logger)
	case "postgres":
		return pgvec.Open(cfg.Storage.PostgresDSN, client, logger)
	default:
		return nil, fmt.Errorf("app: unknown vector backend %q", cfg.Storage.VectorBackend)
	}
}

// Close waits for in-flight memory writes and releases resources.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Wait()
	}
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WithError(err).Warn("app: closing vector store")
		}
	}
}
