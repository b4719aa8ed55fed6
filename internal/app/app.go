// Package app wires all Memoira subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order. ApplyConfig pushes a reloaded configuration into
// the running subsystems.
//
// For testing, inject stores via functional options (WithRecordStore,
// WithBlobStore). When an option is not provided, New creates real backends
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/memoira/internal/api"
	"github.com/MrWong99/memoira/internal/config"
	"github.com/MrWong99/memoira/internal/health"
	"github.com/MrWong99/memoira/internal/observe"
	"github.com/MrWong99/memoira/internal/recording"
	"github.com/MrWong99/memoira/internal/resilience"
	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/internal/store/fsblob"
	"github.com/MrWong99/memoira/internal/store/memstore"
	"github.com/MrWong99/memoira/internal/store/postgres"
	"github.com/MrWong99/memoira/internal/store/supabase"
	"github.com/MrWong99/memoira/internal/transcript"
	"github.com/MrWong99/memoira/internal/transcript/phonetic"
	"github.com/MrWong99/memoira/pkg/provider/stt"
)

// NamedSTT is one speech-to-text backend with the name used for its circuit
// breaker, metrics and logs.
type NamedSTT struct {
	Name     string
	Provider stt.Provider
}

// Providers holds the provider instances built by main.go via the config
// registry. An empty STT list disables transcription.
type Providers struct {
	// STT is tried in order; later entries are fallbacks.
	STT []NamedSTT
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	records store.RecordStore
	blobs   store.BlobStore
	stt     *resilience.STTFallback
	svc     *recording.Service
	handler http.Handler
	server  *http.Server

	// mu guards cfg after New returns.
	mu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecordStore injects a record store instead of creating one from config.
func WithRecordStore(s store.RecordStore) Option {
	return func(a *App) { a.records = s }
}

// WithBlobStore injects a blob store instead of creating one from config.
func WithBlobStore(s store.BlobStore) Option {
	return func(a *App) { a.blobs = s }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets ApplyConfig change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for the stores.
//
// New connects to the configured store backend synchronously; a database that
// cannot be reached or migrated is an error.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Stores ────────────────────────────────────────────────────────
	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	// ── 2. Speech-to-text failover ───────────────────────────────────────
	a.initSTT()

	// ── 3. Recording service ─────────────────────────────────────────────
	svcOpts := []recording.Option{
		recording.WithMetrics(a.metrics),
		recording.WithSettings(SettingsFromConfig(cfg)),
		recording.WithSTTTimeout(cfg.STT.Timeout),
	}
	if cfg.Server.ListDebounce > 0 {
		svcOpts = append(svcOpts, recording.WithListDebounce(cfg.Server.ListDebounce))
	}
	if a.stt != nil {
		svcOpts = append(svcOpts, recording.WithSTT(a.stt))
	}
	a.svc = recording.New(a.records, a.blobs, svcOpts...)

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	checkers := []health.Checker{health.PingChecker("records", a.records)}
	if a.stt != nil {
		checkers = append(checkers, health.ProvidersChecker("stt", a.stt))
	}
	apiOpts := []api.Option{
		api.WithHealth(health.New(checkers...)),
		api.WithMetrics(a.metrics),
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	}
	if a.metricsHandler != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.metricsHandler))
	}
	a.handler = api.New(a.svc, apiOpts...)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStores creates the configured backends unless they were injected.
func (a *App) initStores(ctx context.Context) error {
	sc := a.cfg.Store

	if a.records == nil {
		switch sc.Backend {
		case config.StorePostgres:
			pg, err := postgres.NewStore(ctx, sc.PostgresDSN)
			if err != nil {
				return err
			}
			a.records = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
		case config.StoreSupabase:
			r, err := supabase.NewRecords(sc.Supabase.URL, sc.Supabase.ServiceKey, sc.Supabase.Table)
			if err != nil {
				return err
			}
			a.records = r
		default:
			a.records = memstore.NewRecords(nil)
		}
		slog.Info("record store ready", "backend", backendName(sc.Backend))
	}

	if a.blobs == nil {
		switch {
		case sc.Backend == config.StoreSupabase:
			b, err := supabase.NewBlobs(sc.Supabase.URL, sc.Supabase.ServiceKey, sc.Supabase.Bucket)
			if err != nil {
				return err
			}
			a.blobs = b
			slog.Info("blob store ready", "backend", "supabase", "bucket", sc.Supabase.Bucket)
		case sc.BlobDir != "":
			b, err := fsblob.New(sc.BlobDir)
			if err != nil {
				return err
			}
			a.blobs = b
			slog.Info("blob store ready", "backend", "filesystem", "dir", sc.BlobDir)
		default:
			a.blobs = memstore.NewBlobs()
			slog.Warn("no blob_dir configured, audio is kept in memory and lost on restart")
		}
	}
	return nil
}

// initSTT builds the failover chain over the configured providers. Each
// provider gets its own circuit breaker; transitions are counted.
func (a *App) initSTT() {
	if len(a.providers.STT) == 0 {
		slog.Warn("no speech-to-text provider configured, transcription disabled")
		return
	}
	bc := a.cfg.STT.Breaker
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			HalfOpenMax:  bc.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("stt circuit breaker state changed", "provider", name, "from", from, "to", to)
				a.metrics.RecordBreakerTransition(name, to.String())
			},
		},
	}

	first := a.providers.STT[0]
	a.stt = resilience.NewSTTFallback(a.instrument(first), first.Name, fcfg)
	for _, p := range a.providers.STT[1:] {
		a.stt.AddFallback(p.Name, a.instrument(p))
	}
	for _, p := range a.providers.STT {
		if c, ok := p.Provider.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
}

func (a *App) instrument(p NamedSTT) stt.Provider {
	return &instrumentedSTT{name: p.Name, next: p.Provider, metrics: a.metrics}
}

// ─── Settings ────────────────────────────────────────────────────────────────

// SettingsFromConfig builds the recording service settings from cfg.
// Threshold corrections are applied silently here; the recording service
// logs them when the settings are installed.
func SettingsFromConfig(cfg *config.Config) recording.Settings {
	th, _ := cfg.Quality.Thresholds()
	tc := cfg.Transcript

	var filter *transcript.Filter
	if len(tc.Phrases) > 0 {
		filter = transcript.NewFilterWithPhrases(append(append([]string{}, tc.Phrases...), tc.ExtraPhrases...))
	} else {
		filter = transcript.NewFilter(tc.ExtraPhrases...)
	}

	opts := []transcript.Option{
		transcript.WithFilter(filter),
		transcript.WithParagraphSize(tc.ParagraphSize),
	}
	if len(tc.FamilyNames) > 0 {
		opts = append(opts,
			transcript.WithNameMatcher(phonetic.New()),
			transcript.WithFamilyNames(tc.FamilyNames...),
		)
	}
	return recording.Settings{
		Thresholds: th,
		Pipeline:   transcript.NewPipeline(opts...),
		Language:   tc.Language,
	}
}

// TelemetryFromConfig maps the telemetry section onto the OTel provider
// settings for a build of the given version.
func TelemetryFromConfig(cfg *config.Config, version string) observe.ProviderConfig {
	tc := cfg.Telemetry
	pc := observe.ProviderConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: version,
		Traces:         string(tc.Traces),
	}
	if tc.SampleRatio != nil {
		pc.SampleRatio = *tc.SampleRatio
	}
	return pc
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig pushes the hot-reloadable parts of next into the running
// subsystems and logs the sections that need a restart. It is the callback
// for [config.Watcher].
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.QualityChanged || d.TranscriptChanged {
		a.svc.UpdateSettings(SettingsFromConfig(next))
		slog.Info("recording settings reloaded", "quality", d.QualityChanged, "transcript", d.TranscriptChanged)
	}
	if d.ListDebounceChanged {
		a.svc.SetListDebounce(next.Server.ListDebounce)
		slog.Info("list debounce changed", "debounce", next.Server.ListDebounce)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}

	// Keep the startup-only sections so the next diff still reports them.
	merged := *next
	merged.Server.ListenAddr = a.cfg.Server.ListenAddr
	merged.Server.MaxUploadBytes = a.cfg.Server.MaxUploadBytes
	merged.Server.TLS = a.cfg.Server.TLS
	merged.Server.LogFile = a.cfg.Server.LogFile
	merged.STT = a.cfg.STT
	merged.Store = a.cfg.Store
	merged.Telemetry = a.cfg.Telemetry
	a.cfg = &merged
}

// SlogLevel converts a config log level to a slog level.
func SlogLevel(level config.LogLevel) slog.Level {
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

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the recording service.
func (a *App) Service() *recording.Service { return a.svc }

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails. On cancellation Run returns ctx.Err();
// call Shutdown afterwards to drain connections.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.mu.Lock()
	tls := a.cfg.Server.TLS
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		errCh <- err
	}()

	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", tls != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones, and then
// closes all subsystems in init order. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
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

// ─── Helpers ─────────────────────────────────────────────────────────────────

func backendName(b config.StoreBackend) string {
	if b == "" {
		return string(config.StoreMemory)
	}
	return string(b)
}
