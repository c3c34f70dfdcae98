// Package app wires all ZenZone subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithHistoryStore,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/zenzone/internal/analysis"
	"github.com/MrWong99/zenzone/internal/config"
	"github.com/MrWong99/zenzone/internal/emotion"
	"github.com/MrWong99/zenzone/internal/health"
	"github.com/MrWong99/zenzone/internal/resilience"
	"github.com/MrWong99/zenzone/internal/server"
	"github.com/MrWong99/zenzone/pkg/audio"
	"github.com/MrWong99/zenzone/pkg/history"
	"github.com/MrWong99/zenzone/pkg/history/postgres"
	"github.com/MrWong99/zenzone/pkg/provider/embeddings"
	"github.com/MrWong99/zenzone/pkg/provider/llm"
	"github.com/MrWong99/zenzone/pkg/provider/stt"
)

// defaultListenAddr is used when server.listen_addr is empty.
const defaultListenAddr = ":8080"

// defaultEmbeddingDims matches OpenAI text-embedding-3-small.
const defaultEmbeddingDims = 1536

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM         llm.Provider
	STT         stt.Transcriber
	STTFallback stt.Transcriber
	Embeddings  embeddings.Provider
}

// App owns all subsystem lifetimes for the ZenZone analysis service.
type App struct {
	cfg       *config.Config
	providers *Providers

	store    history.Store
	pipeline *analysis.Pipeline
	server   *server.Server
	httpSrv  *http.Server
	watcher  *config.Watcher

	// logLevel, when set, is adjusted live on config reload.
	logLevel *slog.LevelVar

	// watchPath enables config hot reload when non-empty.
	watchPath string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a session store instead of connecting to Postgres.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// log_level changes in the config file apply without a restart.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigWatch starts a file watcher on path and hot-reloads the
// analysis tuning block and log level when the file changes.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Session history ───────────────────────────────────────────────
	var checkers []health.Checker
	if a.store == nil && cfg.History.PostgresDSN != "" {
		dims := cfg.History.EmbeddingDimensions
		if dims <= 0 {
			dims = defaultEmbeddingDims
		}
		pg, err := postgres.NewStore(ctx, cfg.History.PostgresDSN, dims)
		if err != nil {
			return nil, fmt.Errorf("app: init history: %w", err)
		}
		a.store = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		checkers = append(checkers, health.Checker{Name: "database", Check: pg.Ping})
	}

	// ── 2. Analysis pipeline ─────────────────────────────────────────────
	a.pipeline = analysis.New(
		a.buildTranscriber(),
		a.buildAnalyzer(),
		pipelineOptions(a.store, providers.Embeddings)...,
	)

	// ── 3. HTTP server ───────────────────────────────────────────────────
	srvOpts := []server.Option{server.WithHealth(health.New(checkers...))}
	if a.store != nil {
		srvOpts = append(srvOpts, server.WithStore(a.store))
	}
	if providers.Embeddings != nil {
		srvOpts = append(srvOpts, server.WithEmbeddings(providers.Embeddings))
	}
	if cfg.Analysis.MaxConcurrent > 0 {
		srvOpts = append(srvOpts, server.WithMaxConcurrent(cfg.Analysis.MaxConcurrent))
	}
	if cfg.Analysis.MaxUploadMB > 0 {
		srvOpts = append(srvOpts, server.WithMaxUploadBytes(cfg.Analysis.MaxUploadMB<<20))
	}
	a.server = server.New(a.pipeline, srvOpts...)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// buildTranscriber wraps the configured transcribers in a fallback chain.
// Without an STT provider every recording transcribes to the empty string
// and scoring relies on acoustic features alone.
func (a *App) buildTranscriber() stt.Transcriber {
	if a.providers.STT == nil {
		return silentTranscriber{}
	}
	if a.providers.STTFallback == nil {
		return a.providers.STT
	}
	fb := resilience.NewTranscriberFallback(a.providers.STT, a.cfg.Providers.STT.Name, resilience.FallbackConfig{})
	fb.AddFallback(a.cfg.Providers.STTFallback.Name, a.providers.STTFallback)
	return fb
}

// buildAnalyzer prefers LLM classification with the lexicon analyzer as the
// terminal fallback; without an LLM the lexicon runs alone.
func (a *App) buildAnalyzer() emotion.Analyzer {
	lexicon := emotion.NewLexiconAnalyzer()
	if a.providers.LLM == nil {
		return lexicon
	}
	fb := resilience.NewAnalyzerFallback(emotion.NewLLMAnalyzer(a.providers.LLM), a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	fb.AddFallback("lexicon", lexicon)
	return fb
}

func pipelineOptions(store history.Store, embedder embeddings.Provider) []analysis.Option {
	var opts []analysis.Option
	if store != nil {
		opts = append(opts, analysis.WithStore(store))
	}
	if embedder != nil {
		opts = append(opts, analysis.WithEmbeddings(embedder))
	}
	return opts
}

// silentTranscriber is used when no STT provider is configured. Every
// recording transcribes to the empty string, which downstream scoring
// treats like silence.
type silentTranscriber struct{}

var _ stt.Transcriber = silentTranscriber{}

func (silentTranscriber) Transcribe(context.Context, *audio.Buffer) (stt.Result, error) {
	return stt.Result{}, nil
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// onConfigChange applies hot-reloadable settings from a changed config file.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}

	if d.AnalysisChanged {
		a.server.ApplyLimits(d.NewAnalysis.MaxConcurrent, d.NewAnalysis.MaxUploadMB<<20)
		slog.Info("analysis tuning updated",
			"language", d.NewAnalysis.Language,
			"max_concurrent", d.NewAnalysis.MaxConcurrent,
			"max_upload_mb", d.NewAnalysis.MaxUploadMB,
		)
	}

	if d.RestartRequired {
		slog.Warn("config change affects providers, history, or server wiring — restart to apply")
	}
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails. On context
// cancellation it returns ctx.Err(); callers treat context.Canceled as a
// normal shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening with TLS", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the fully wired HTTP handler. Used by tests to drive the
// app without a real listener.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then tears down subsystems in init order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
