// Package draftgo wires the expense draft subsystem together: the session
// state machine, the credit ledger, the analysis backend, the records store
// and the durable draft storage, each chosen from configuration.
package draftgo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	tracing "github.com/draftgo-dev/draftgo/internal/observability"
	"github.com/draftgo-dev/draftgo/pkg/analysis"
	"github.com/draftgo-dev/draftgo/pkg/config"
	"github.com/draftgo-dev/draftgo/pkg/credit"
	"github.com/draftgo-dev/draftgo/pkg/observability"
	"github.com/draftgo-dev/draftgo/pkg/records"
	"github.com/draftgo-dev/draftgo/pkg/session"
)

// App is a fully wired draft subsystem for a single user identity.
type App struct {
	Machine  *session.Machine
	Resolver *session.Resolver
	Guard    *session.Guard
	Ledger   *credit.Ledger
	Records  records.Store

	cfg         *config.Config
	draftKV     session.KV
	creditStore credit.BalanceStore
	adapter     *session.Adapter
	analyzer    analysis.Analyzer

	server *observability.Server
	cron   *cron.Cron
}

// pinger is implemented by backends that can probe their remote store.
type pinger interface {
	Ping(ctx context.Context) error
}

// Option customizes an App beyond what configuration covers.
type Option func(*options)

type options struct {
	confirmer session.Confirmer
}

// WithConfirmer routes discard confirmation prompts through c instead of
// auto-confirming. Interactive frontends use this to ask the user.
func WithConfirmer(c session.Confirmer) Option {
	return func(o *options) {
		o.confirmer = c
	}
}

// Open wires an App from the given configuration. Storage backends degrade
// gracefully: an unreachable Redis falls back to file storage, an unusable
// file store to memory, each with a logged warning. The records store does
// not degrade; a misconfigured one is a hard error.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	observability.InitMetrics()
	if err := tracing.InitFromEnv(); err != nil {
		log.Printf("Warning: Failed to initialize tracing: %v", err)
	}

	draftKV := openDraftKV(cfg)
	adapter := session.NewAdapter(draftKV, cfg.Storage.AttachmentCeiling)

	creditStore := openCreditStore(cfg)
	ledger := credit.NewLedger(creditStore)

	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		closeQuietly(draftKV, creditStore)
		return nil, fmt.Errorf("failed to build analyzer: %w", err)
	}

	recordStore, err := openRecords(ctx, cfg)
	if err != nil {
		closeQuietly(draftKV, creditStore)
		return nil, fmt.Errorf("failed to open records store: %w", err)
	}

	machine, err := session.NewMachine(session.MachineConfig{
		UserID:          cfg.UserID,
		AnalysisTimeout: cfg.Analysis.Timeout,
		Hints:           cfg.Analysis.Hints,
		Confirmer:       o.confirmer,
	}, ledger, analyzer, adapter)
	if err != nil {
		closeQuietly(draftKV, creditStore, recordStore)
		return nil, err
	}

	app := &App{
		Machine:     machine,
		Resolver:    session.NewResolver(machine),
		Guard:       session.NewGuard(machine),
		Ledger:      ledger,
		Records:     recordStore,
		cfg:         cfg,
		draftKV:     draftKV,
		creditStore: creditStore,
		adapter:     adapter,
		analyzer:    analyzer,
	}
	app.registerHealthChecks()

	return app, nil
}

// SaveCurrent persists the active session's record through the records store.
func (a *App) SaveCurrent(ctx context.Context) error {
	return a.Machine.Save(ctx, records.SaveFunc(a.Records))
}

// Resume restores a persisted draft from a previous process, if any.
func (a *App) Resume(ctx context.Context) (*session.Session, bool, error) {
	return a.Machine.Resume(ctx)
}

// Run serves metrics and health endpoints when enabled and runs the
// abandoned-draft sweeper on its cron schedule. It blocks until ctx is
// canceled and returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Observability.Enabled {
		srv := observability.NewServer(a.cfg.Observability.Addr)
		a.server = srv
		g.Go(func() error {
			log.Printf("Serving metrics and health on %s", a.cfg.Observability.Addr)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.Sweeper.Schedule, a.sweepAbandoned); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", a.cfg.Sweeper.Schedule, err)
	}
	c.Start()
	a.cron = c
	g.Go(func() error {
		<-ctx.Done()
		<-c.Stop().Done()
		return ctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweepAbandoned clears the persisted draft once it has outlived the
// configured age. A live session is never touched: its persisted copy is
// refreshed on every transition, so only truly orphaned drafts qualify.
func (a *App) sweepAbandoned() {
	if a.Machine.IsActive() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := a.adapter.Load(ctx, a.cfg.UserID)
	if s == nil {
		return
	}
	age := time.Since(s.UpdatedAt)
	if age < a.cfg.Sweeper.MaxAge {
		return
	}

	if err := a.adapter.Clear(ctx, a.cfg.UserID); err != nil {
		log.Printf("Warning: Failed to clear abandoned draft for user %s: %v", a.cfg.UserID, err)
		return
	}
	log.Printf("Cleared abandoned draft for user %s (untouched for %s)", a.cfg.UserID, age.Round(time.Minute))
}

// Close releases all storage backends. Safe to call after Run returns.
func (a *App) Close() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.cron = nil
	}

	var errs []error
	if err := a.Records.Close(); err != nil {
		errs = append(errs, fmt.Errorf("records store: %w", err))
	}
	if err := a.draftKV.Close(); err != nil {
		errs = append(errs, fmt.Errorf("draft store: %w", err))
	}
	if err := a.creditStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("credit store: %w", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: Failed to shut down tracing: %v", err)
	}

	return errors.Join(errs...)
}

func (a *App) registerHealthChecks() {
	checker := observability.InitHealthChecker()
	checker.RegisterCheck(observability.PingCheck())

	if p, ok := a.draftKV.(pinger); ok {
		checker.RegisterCheck(observability.DraftStoreCheck(p.Ping))
	}
	if p, ok := a.creditStore.(pinger); ok {
		checker.RegisterCheck(observability.CreditStoreCheck(p.Ping))
	}
	if g, ok := a.analyzer.(*analysis.Guarded); ok {
		checker.RegisterCheck(observability.AnalyzerCheck(a.analyzer.Name(), func(context.Context) error {
			return g.Healthy()
		}))
	}
}

// openDraftKV selects the draft storage backend, degrading redis -> file ->
// memory with a warning at each step.
func openDraftKV(cfg *config.Config) session.KV {
	provider := cfg.Storage.Provider

	if provider == "redis" {
		kv, err := session.NewRedisKV(session.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			DraftTTL: cfg.Sweeper.MaxAge,
		})
		if err == nil {
			return kv
		}
		log.Printf("Warning: Redis draft storage unavailable, falling back to file storage: %v", err)
		provider = "file"
	}

	if provider == "file" {
		dir := ""
		if cfg.Storage.Dir != "" {
			dir = filepath.Join(cfg.Storage.Dir, "drafts")
		}
		kv, err := session.NewFileKV(dir)
		if err == nil {
			return kv
		}
		log.Printf("Warning: File draft storage unavailable, falling back to in-memory storage: %v", err)
	}

	return session.NewMemoryKV()
}

// openCreditStore selects the credit balance backend with the same
// redis -> file -> memory degradation as the draft store.
func openCreditStore(cfg *config.Config) credit.BalanceStore {
	provider := cfg.Storage.Provider

	if provider == "redis" {
		store, err := credit.NewRedisStore(credit.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err == nil {
			return store
		}
		log.Printf("Warning: Redis credit storage unavailable, falling back to file storage: %v", err)
		provider = "file"
	}

	if provider == "file" {
		path := ""
		if cfg.Storage.Dir != "" {
			path = filepath.Join(cfg.Storage.Dir, "credits.json")
		}
		store, err := credit.NewFileStore(path)
		if err == nil {
			return store
		}
		log.Printf("Warning: File credit storage unavailable, falling back to in-memory storage: %v", err)
	}

	return credit.NewMemoryStore()
}

// buildAnalyzer constructs the configured backend and wraps it with the
// timeout, rate limit and circuit breaker guard.
func buildAnalyzer(cfg *config.Config) (analysis.Analyzer, error) {
	backendCfg := map[string]any{}
	if cfg.Analysis.Model != "" {
		backendCfg["model"] = cfg.Analysis.Model
	}
	switch cfg.Analysis.Backend {
	case "openai":
		backendCfg["api_key"] = cfg.OpenAIKey
	case "gemini":
		backendCfg["api_key"] = cfg.GoogleKey
	}

	inner, err := analysis.New(cfg.Analysis.Backend, backendCfg)
	if err != nil {
		return nil, err
	}

	return analysis.NewGuarded(inner, analysis.GuardedConfig{
		Timeout:           cfg.Analysis.Timeout,
		RequestsPerMinute: cfg.Analysis.RequestsPerMinute,
	}), nil
}

// openRecords constructs the saved-records store for the configured provider.
func openRecords(ctx context.Context, cfg *config.Config) (records.Store, error) {
	switch cfg.RecordsProvider {
	case "", "memory":
		return records.NewMemoryStore(), nil
	case "redis":
		return records.NewRedisStore(records.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
	case "firestore":
		opts := []records.FirestoreOption{records.WithProjectID(cfg.GCPProject)}
		if cfg.GCPCredentials != "" {
			opts = append(opts, records.WithCredentialsFile(cfg.GCPCredentials))
		}
		return records.NewFirestoreStore(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown records provider %q", cfg.RecordsProvider)
	}
}

func closeQuietly(closers ...interface{ Close() error }) {
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			log.Printf("Warning: Failed to close backend: %v", err)
		}
	}
}
