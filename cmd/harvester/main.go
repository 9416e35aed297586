package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/config"
	"go-portal-harvester/internal/database"
	"go-portal-harvester/internal/dedup"
	"go-portal-harvester/internal/discovery"
	"go-portal-harvester/internal/extractor"
	"go-portal-harvester/internal/filter"
	"go-portal-harvester/internal/harvest"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/scheduler"
	"go-portal-harvester/internal/session"
	"go-portal-harvester/internal/state"
	"go-portal-harvester/internal/store"
	"go-portal-harvester/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	once := flag.Bool("once", false, "run a single cycle and exit")
	dryRun := flag.Bool("dry-run", false, "keep postings in memory instead of the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, os.Getenv("APP_ENV") == "development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *once, *dryRun); err != nil {
		log.Error("Harvester stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, once, dryRun bool) error {
	stateStore, closeState, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeState()

	jobs, closeJobs, err := openJobs(ctx, cfg, dryRun, log)
	if err != nil {
		return err
	}
	defer closeJobs()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	launcher := browser.NewPlaywrightLauncher(browser.Options{
		Headless:             cfg.Browser.Headless,
		UserAgent:            cfg.Browser.UserAgent,
		NavigationTimeout:    cfg.Timing.NavigationTimeout,
		SettleDelay:          cfg.Timing.SettleDelay,
		RateLimitInterval:    cfg.Timing.RateLimitInterval,
		MaxJitter:            cfg.Timing.MaxJitter,
		ScreenshotDir:        cfg.Browser.ScreenshotDir,
		ScrollForLazyContent: true,
	}, log)

	h := harvest.New(harvest.OptionsFromConfig(cfg), harvest.Deps{
		Launcher:   launcher,
		Sessions:   session.NewManager(session.OptionsFromConfig(cfg), stateStore, log, metrics),
		Scheduler:  scheduler.New(scheduler.OptionsFromConfig(cfg), stateStore, log),
		Discoverer: discovery.New(log),
		Extractor:  extractor.New(extractor.DefaultOptions(), log),
		Validator:  filter.NewValidator(cfg.Validation, log),
		Dedup:      dedup.NewEngine(jobs, cfg.Portal.SourceTag, cfg.Validation.SimilarityThreshold, log),
		Store:      jobs,
		Metrics:    metrics,
		Tracer:     telemetry.NewTracer(),
		Log:        log,
	})

	if once {
		return runOnce(ctx, h, log)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Serving metrics", logger.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("Harvester started", logger.String("schedule", cfg.Schedule), logger.String("portal", cfg.Portal.BaseURL))
	return runScheduled(ctx, cfg.Schedule, func() { cycle(ctx, h, log) }, log)
}

// runScheduled runs job once right away and then on every tick of schedule.
// It returns after ctx is done and every started run has finished.
func runScheduled(ctx context.Context, schedule string, job func(), log logger.Logger) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		job()
	}()

	<-ctx.Done()
	log.Info("Shutting down, waiting for the running cycle")
	<-c.Stop().Done()
	first.Wait()
	return nil
}

func cycle(ctx context.Context, h *harvest.Harvester, log logger.Logger) {
	summary, err := h.RunHarvestCycle(ctx)
	switch {
	case errors.Is(err, harvest.ErrAlreadyRunning):
		log.Warn("Previous cycle still running, skipping tick")
	case err != nil:
		log.Error("Harvest cycle failed", logger.Error(err))
	default:
		log.Info("Harvest cycle done",
			logger.Int("jobs_found", summary.JobsFound),
			logger.Int("employer_signals", summary.EmployerSignalsFound),
			logger.Strings("errors", summary.Errors))
	}
}

func runOnce(ctx context.Context, h *harvest.Harvester, log logger.Logger) error {
	summary, err := h.RunHarvestCycle(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	fmt.Println(string(out))
	log.Info("Single cycle finished", logger.Int("jobs_found", summary.JobsFound))
	return nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func openState(ctx context.Context, cfg *config.Config) (state.Store, func(), error) {
	switch cfg.State.Backend {
	case "redis":
		client, err := state.NewRedisClient(ctx, cfg.State.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return state.NewRedisStore(client, cfg.Portal.SourceTag), func() { _ = client.Close() }, nil
	default:
		fs, err := state.NewFileStore(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func openJobs(ctx context.Context, cfg *config.Config, dryRun bool, log logger.Logger) (store.Store, func(), error) {
	if dryRun || cfg.DatabaseURL == "" {
		log.Warn("Postings are kept in memory only", logger.Bool("dry_run", dryRun))
		return store.NewMemoryStore(), func() {}, nil
	}
	repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
