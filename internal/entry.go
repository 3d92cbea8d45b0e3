// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cadence/internal/api"
	"github.com/starford/cadence/internal/athleteservice"
	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/embedding"
	"github.com/starford/cadence/internal/events"
	"github.com/starford/cadence/internal/horizon"
	"github.com/starford/cadence/internal/ingest"
	"github.com/starford/cadence/internal/mcpserver"
	"github.com/starford/cadence/internal/retrieval"
	"github.com/starford/cadence/internal/sse"
	"github.com/starford/cadence/internal/storage"
	"github.com/starford/cadence/internal/store"
)

// components is the wired core shared by every command.
type components struct {
	version  string
	logger   *slog.Logger
	db       *store.DB
	importer *ingest.Importer
	svc      *athleteservice.Service
	broker   *sse.Broker
	kafka    *events.Kafka
	outbox   *events.Outbox
}

func (c *components) Close() {
	if c.outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.outbox.Close(ctx); err != nil {
			c.logger.Warn("event outbox not drained", slog.String("error", err.Error()))
		}
		cancel()
	}
	if c.broker != nil {
		c.broker.Close()
	}
	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			c.logger.Warn("kafka close failed", slog.String("error", err.Error()))
		}
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("db close failed", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(app *application) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func newEmbedder(cfg EmbeddingConfig, logger *slog.Logger) embedding.Embedder {
	if cfg.Provider != EmbeddingOpenAI {
		return embedding.NewHash(cfg.Dimensions)
	}
	client := embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	})
	return embedding.WithRetry(client, cfg.MaxRetries, cfg.BaseDelay, logger)
}

// build opens storage and wires the service. withFeed adds the SSE broker
// as an event sink.
func build(cfg *Config, logger *slog.Logger, withFeed bool) (*components, error) {
	if err := os.MkdirAll(cfg.Ingest.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create ingest dir: %w", err)
	}
	src, err := storage.NewFS(cfg.Ingest.Directory, cfg.Ingest.Pattern)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c := &components{logger: logger, db: db}

	var sinks events.Fanout
	if withFeed {
		c.broker = sse.NewBroker(cfg.Events.SSEThrottle)
		sinks = append(sinks, events.Sink{Name: "sse", Publisher: c.broker})
	}
	if cfg.Events.Kafka.Enabled {
		c.kafka = events.NewKafka(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: c.kafka})
	}
	var pub events.Publisher = events.Noop{}
	if len(sinks) > 0 {
		c.outbox = events.NewOutbox(sinks, cfg.Events.OutboxSize, cfg.Events.PublishTimeout, logger)
		pub = c.outbox
	}

	hcfg, err := cfg.Horizon.Engine()
	if err != nil {
		c.Close()
		return nil, err
	}
	params := cfg.Metrics.Params()
	engine := horizon.New(db, cfg.Athlete.Baseline(), params, hcfg, logger)
	c.importer = ingest.New(src, db, logger,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithParams(params),
		ingest.WithPublisher(pub),
		ingest.WithInvalidator(engine),
	)
	bm := cfg.Beliefs.BM25()
	if store.FTSEnabled && bm != retrieval.DefaultBM25() {
		logger.Warn("bm25_k1 and bm25_b are ignored with FTS5, which ranks with k1=1.2 b=0.75",
			slog.Float64("bm25_k1", bm.K1),
			slog.Float64("bm25_b", bm.B))
	}
	beliefs := belief.New(db, newEmbedder(cfg.Embedding, logger), cfg.Beliefs.Store(), logger,
		belief.WithLexicalScorer(db.BeliefScorer(bm)))
	c.svc = athleteservice.NewService(athleteservice.Deps{
		Source:    src,
		DB:        db,
		Importer:  c.importer,
		Horizon:   engine,
		Beliefs:   beliefs,
		Publisher: pub,
		Params:    params,
		Logger:    logger,
	})
	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(app)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("ingest_directory", cfg.Ingest.Directory),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.Bool("kafka_enabled", cfg.Events.Kafka.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	if n, err := c.svc.RefreshSummaries(ctx); err != nil {
		logger.Warn("summary refresh failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("stale summaries refreshed", slog.Int("count", n))
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Ingest.ImportOnStart {
		g.Go(func() error {
			rep, err := c.svc.ImportNewFiles(gCtx, "")
			if err != nil {
				logger.Warn("initial import failed", slog.String("error", err.Error()))
				return nil
			}
			logger.Info("initial import finished",
				slog.Int("imported", rep.Imported),
				slog.Int("skipped", rep.Skipped),
				slog.Int("failed", len(rep.Failed)))
			return nil
		})
	}

	// Start file watcher.
	if cfg.Ingest.Watch {
		g.Go(func() error {
			return c.importer.Watch(gCtx, func(res ingest.FileResult) {
				logger.Debug("watcher import",
					slog.String("path", res.Path),
					slog.String("outcome", string(res.Outcome)))
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// withComponents runs fn against a wired core without the SSE feed.
func withComponents(ctx context.Context, opts []Option, fn func(context.Context, *components) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app)
	c, err := build(app.config, logger, false)
	if err != nil {
		return err
	}
	defer c.Close()
	c.version = app.version
	return fn(ctx, c)
}

func writeResult(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunImport imports new and changed recordings under dir once and writes
// the report to out.
func RunImport(ctx context.Context, dir string, out io.Writer, opts ...Option) error {
	return withComponents(ctx, opts, func(ctx context.Context, c *components) error {
		rep, err := c.svc.ImportNewFiles(ctx, dir)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		return writeResult(out, rep)
	})
}

// RunContext writes the horizon summaries for at (zero means now) to out.
func RunContext(ctx context.Context, at time.Time, out io.Writer, opts ...Option) error {
	return withComponents(ctx, opts, func(ctx context.Context, c *components) error {
		hc, err := c.svc.GetContext(ctx, at)
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		return writeResult(out, hc)
	})
}

// RunThresholdPace writes the threshold pace estimate for at (zero means
// now) to out.
func RunThresholdPace(ctx context.Context, at time.Time, out io.Writer, opts ...Option) error {
	return withComponents(ctx, opts, func(ctx context.Context, c *components) error {
		est, err := c.svc.GetThresholdPace(ctx, at)
		if err != nil {
			return fmt.Errorf("threshold pace: %w", err)
		}
		return writeResult(out, est)
	})
}

// RunArchive archives stale beliefs, and session beliefs when session is
// set, and writes the archived ids to out.
func RunArchive(ctx context.Context, session bool, out io.Writer, opts ...Option) error {
	return withComponents(ctx, opts, func(ctx context.Context, c *components) error {
		stale, err := c.svc.BeliefArchiveStale(ctx, time.Time{})
		if err != nil {
			return fmt.Errorf("archive stale: %w", err)
		}
		res := map[string][]string{"stale": stale}
		if session {
			ids, err := c.svc.BeliefArchiveSession(ctx)
			if err != nil {
				return fmt.Errorf("archive session: %w", err)
			}
			res["session"] = ids
		}
		return writeResult(out, res)
	})
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr unless another
// output was chosen.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	return withComponents(ctx, opts, func(_ context.Context, c *components) error {
		return mcpserver.New(c.svc, c.version).ServeStdio()
	})
}
