package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MindFlavor/nas-gallery/internal/access/cache"
	"github.com/MindFlavor/nas-gallery/internal/audit"
	"github.com/MindFlavor/nas-gallery/internal/config"
	"github.com/MindFlavor/nas-gallery/internal/gallery"
	"github.com/MindFlavor/nas-gallery/internal/logging"
	"github.com/MindFlavor/nas-gallery/internal/metrics"
	"github.com/MindFlavor/nas-gallery/internal/server"
	"github.com/MindFlavor/nas-gallery/internal/thumbs"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to the gallery configuration file")
		envPrefix  = flag.String("env-prefix", "NAS_GALLERY", "environment variable prefix")
	)
	flag.Parse()

	configPath := resolveConfigPath(*configFile, flag.Args())
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nas-gallery <config-file>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, configPath)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "log file close failed: %v\n", err)
		}
	}()

	auditSink := audit.New(cfg.AuditLogPath, logger)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := auditSink.Close(drainCtx); err != nil {
			logger.Error("audit drain incomplete", slog.Any("error", err))
		}
	}()

	// Counters only exist when the metrics listener does; a nil recorder
	// turns every increment into a no-op.
	var recorder *metrics.Recorder
	if cfg.Metrics.Port > 0 {
		recorder = metrics.NewRecorder(nil)
	}

	thumbCache := thumbs.New(logger, thumbs.Options{
		Root:        cfg.ThumbRootPath,
		PlayOverlay: cfg.PlayOverlayPath,
		MaxSize:     cfg.Thumbs.MaxSize,
		Tools: thumbs.Tools{
			Convert:   cfg.Thumbs.ConvertPath,
			Ffmpeg:    cfg.Thumbs.FfmpegPath,
			Composite: cfg.Thumbs.CompositePath,
		},
		Metrics: recorder,
	})

	decisionCache := buildDecisionCache(logger.With(slog.String("component", "cache_factory")), cfg.DecisionCache)

	g := gallery.New(logger, gallery.Options{
		StaticRoot:        cfg.StaticSitePath,
		CORSOrigin:        cfg.HTTP.CORSOrigin,
		SegmentBoundaries: cfg.Access.SegmentBoundaries,
		Thumbs:            thumbCache,
		Audit:             auditSink,
		Metrics:           recorder,
		DecisionCache:     decisionCache,
		CacheTTL:          time.Duration(cfg.DecisionCache.TTLSeconds) * time.Second,
	}, cfg.Groups, cfg.Folders)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := g.Close(shutdownCtx); err != nil {
			logger.Error("decision cache shutdown failed", slog.Any("error", err))
		}
	}()

	// Only the access rules are live-reloadable; listener and log settings
	// need a restart.
	watcher, err := loader.Watch(ctx, func(next config.Config) {
		g.Reload(ctx, next.Groups, next.Folders)
	}, func(err error) {
		logger.Error("config watcher error", slog.Any("error", err))
	})
	if err != nil {
		logger.Error("config watcher setup failed", slog.Any("error", err))
	} else {
		defer watcher.Stop()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	gallerySrv, err := server.New("gallery", cfg.Listen.Address, cfg.Listen.Port, logger, server.NewGalleryHandler(g))
	if err != nil {
		logger.Error("unable to construct gallery server", slog.Any("error", err))
		os.Exit(1)
	}
	group.Go(func() error { return gallerySrv.Run(groupCtx) })

	if cfg.Metrics.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		metricsSrv, err := server.New("metrics", cfg.Listen.Address, cfg.Metrics.Port, logger, mux)
		if err != nil {
			logger.Error("unable to construct metrics server", slog.Any("error", err))
			os.Exit(1)
		}
		group.Go(func() error { return metricsSrv.Run(groupCtx) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// resolveConfigPath lets the config file arrive as the first positional
// argument or via -config, with the flag taking precedence.
func resolveConfigPath(flagValue string, args []string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// buildDecisionCache maps the configured backend onto a cache instance. A
// valkey connection failure degrades to the memory backend so a cache
// outage never blocks startup.
func buildDecisionCache(logger *slog.Logger, cfg config.DecisionCacheConfig) cache.DecisionCache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "off":
		return nil
	case "memory":
		if logger != nil {
			logger.Info("using memory decision cache", slog.Duration("ttl", ttl))
		}
		return cache.NewMemory(ttl)
	case "valkey":
		valkeyCache, err := cache.NewValkey(cache.ValkeyConfig{
			Address:  cfg.Valkey.Address,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS: cache.ValkeyTLSConfig{
				Enabled: cfg.Valkey.TLS.Enabled,
				CAFile:  cfg.Valkey.TLS.CAFile,
			},
		})
		if err != nil {
			if logger != nil {
				logger.Error("valkey cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache")
			}
			return cache.NewMemory(ttl)
		}
		if logger != nil {
			logger.Info("using valkey decision cache", slog.String("address", cfg.Valkey.Address))
		}
		return valkeyCache
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, decision cache disabled", slog.String("backend", cfg.Backend))
		}
		return nil
	}
}
