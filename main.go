package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"

	"propcast/config"
	"propcast/db"
	qhttp "propcast/http"
	"propcast/inference"
	"propcast/logger"
	"propcast/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (empty for defaults)")
	flag.Parse()

	// 1. Load config
	if _, err := os.Stat(*configPath); *configPath != "" && os.IsNotExist(err) {
		log.Printf("config %s not found, using defaults", *configPath)
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	zl, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Models and reference datasets; the service must not start without them
	assets, err := inference.LoadAssets(ctx, cfg, zl)
	if err != nil {
		err := xerrors.New(err)
		zl.Fatal("failed to load models", zap.Error(err))
	}

	// 4. Classification rules
	rules, err := inference.LoadRuleSet(cfg.Rules.Path, zl)
	if err != nil {
		err := xerrors.New(err)
		zl.Fatal("failed to load rules", zap.String("path", cfg.Rules.Path), zap.Error(err))
	}
	if cfg.Rules.Path != "" && cfg.Rules.Watch {
		if err := rules.Watch(ctx, cfg.Rules.Path); err != nil {
			zl.Warn("rules hot reload disabled", zap.Error(err))
		}
	}

	// 5. Prediction log sink
	sink, err := db.Open(ctx, cfg.Sink)
	if err != nil {
		err := xerrors.New(err)
		zl.Fatal("failed to open prediction sink", zap.String("driver", cfg.Sink.Driver), zap.Error(err))
	}
	defer sink.Close()
	zl.Info("prediction sink ready", zap.String("driver", cfg.Sink.Driver), zap.String("table", cfg.Sink.Table))

	// 6. Engine and observers
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(zl)
	go hub.Run(ctx)

	opts := []inference.Option{
		inference.WithLogger(zl),
		inference.WithSinkTimeout(cfg.Sink.Timeout),
		inference.WithObserver(metrics),
		inference.WithObserver(hub),
	}
	if cfg.Matcher.CacheSize > 0 {
		matcher, err := inference.NewCachedMatcher(cfg.Matcher.CacheSize)
		if err != nil {
			zl.Fatal("failed to build match cache", zap.Error(err))
		}
		opts = append(opts, inference.WithMatcher(matcher))
	}
	engine := inference.NewEngine(assets, rules, sink, opts...)

	handlers := &qhttp.Handlers{
		Predictor:      engine,
		ExperimentPath: cfg.Resolve(cfg.Data.Experiment),
		GeometryPath:   cfg.Resolve(cfg.Data.Geometry),
		PreviewLimit:   cfg.Data.PreviewLimit,
		Metrics:        metrics,
		Log:            zl,
	}
	if history, ok := sink.(db.RecentLister); ok {
		handlers.History = history
	}

	// 7. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, handlers, hub, zl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 8. Graceful shutdown
	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			zl.Error("http server failed", zap.Error(err))
		}
	}

	if err := server.Stop(); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	zl.Info("exiting")
}
