// The pipeline daemon watches investor folders, runs every discovered
// document through parsing, extraction, and persistence, and keeps the
// vector index and reconciliation findings current.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/classify"
	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/index"
	"fundpipe/pkg/core/ledger"
	"fundpipe/pkg/core/llm"
	"fundpipe/pkg/core/normalize"
	"fundpipe/pkg/core/parse"
	"fundpipe/pkg/core/pipeline"
	"fundpipe/pkg/core/queue"
	"fundpipe/pkg/core/reconcile"
	"fundpipe/pkg/core/store"
	"fundpipe/pkg/core/watch"
)

// reconcileSweepWindow is how far back the scheduled reconciliation sweep
// looks for active fund periods.
const reconcileSweepWindow = 90 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	httpAddr := flag.String("http", ":9090", "listen address for /metrics and /status")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, relying on the environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logrus.WithError(err).Fatal("schema migration failed")
	}

	led, err := ledger.New(cfg.LedgerPath, cfg.MaxAttempts)
	if err != nil {
		logrus.WithError(err).Fatal("ledger load failed")
	}

	var oracle llm.Client
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := llm.NewGemini(ctx, key, cfg.LLM.Model)
		if err != nil {
			logrus.WithError(err).Fatal("llm client init failed")
		}
		oracle = llm.NewLimited(gemini, cfg.LLM)
	} else {
		logrus.Warn("GEMINI_API_KEY not set, running deterministic extraction only")
	}

	reader := store.NewReader(db)
	findings := store.NewFindingsRepo(db)
	writer := store.NewWriter(db, cfg.PersistTimeout.D())

	indexer := index.NewWorker(index.NewMemoryIndex(), led, cfg.IndexerWorkers, cfg.IndexTimeout.D())
	indexer.Start(ctx)
	defer indexer.Stop()

	engine := reconcile.NewEngine(reader, findings, cfg.Tolerances)

	orch := pipeline.New(pipeline.Deps{
		Config:     cfg,
		Ledger:     led,
		Watcher:    watch.New(cfg),
		Debouncer:  queue.New(cfg.DebounceWindow(), cfg.WorkQueueCapacity, led),
		Parser:     parse.New(cfg),
		Classifier: classify.New(oracle),
		Extractor:  extract.New(oracle),
		Resolver:   normalize.NewResolver(reader),
		Writer:     writer,
		Indexer:    indexer,
		Reconciler: engine,
	})
	orch.Start(ctx)
	defer orch.Stop()

	sweeper := cron.New()
	if cfg.RescanCron != "" {
		if _, err := sweeper.AddFunc(cfg.RescanCron, func() {
			if err := engine.Sweep(ctx, time.Now().UTC().Add(-reconcileSweepWindow)); err != nil {
				logrus.WithError(err).Warn("reconciliation sweep failed")
			}
		}); err != nil {
			logrus.WithError(err).Error("invalid rescan cron, reconciliation sweeps disabled")
		} else {
			sweeper.Start()
			defer sweeper.Stop()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orch.GetStatus()); err != nil {
			logrus.WithError(err).Warn("status encode failed")
		}
	})
	srv := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("http server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"roots": len(cfg.Roots),
		"http":  *httpAddr,
	}).Info("pipeline running")

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown failed")
	}
}
