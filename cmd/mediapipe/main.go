// Command mediapipe boots the probe → rules → actions → HLS precompute →
// cache → segment-server pipeline spec.md describes, plus the admin API and
// worker pool that drive it. Grounded on the teacher's cmd/viewra/main.go:
// load config, open the database, wire every module, start the HTTP
// listener, and shut everything down on SIGINT/SIGTERM within a grace
// period.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidecast/mediapipe/internal/actions"
	"github.com/tidecast/mediapipe/internal/api"
	"github.com/tidecast/mediapipe/internal/config"
	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/events"
	"github.com/tidecast/mediapipe/internal/hls"
	"github.com/tidecast/mediapipe/internal/hlscache"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/mediafiles"
	"github.com/tidecast/mediapipe/internal/probe"
	"github.com/tidecast/mediapipe/internal/queue"
	"github.com/tidecast/mediapipe/internal/rules"
	"github.com/tidecast/mediapipe/internal/stream"
	"github.com/tidecast/mediapipe/internal/tools"
	"github.com/tidecast/mediapipe/internal/worker"
)

func main() {
	log := logger.Named("main")

	configPath := os.Getenv("MEDIAPIPE_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load configuration, using defaults", "error", err)
		cfg = config.Default()
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry(cfg.Tools)

	jobStore := queue.New(db)
	ruleStore := rules.NewStore(db)
	mediaFileStore := mediafiles.New(db)
	bus := events.New()

	engine, decodeErrs := ruleStore.LoadEngine()
	for _, e := range decodeErrs {
		log.Warn("skipped malformed rule on load", "error", e)
	}

	prober := probe.NewChain(
		probe.NewNativeProber(),
		probe.NewFFProber(registry.Path(tools.FFprobe)),
		probe.NewMediaInfoProber(registry.Path(tools.Mediainfo)),
	)

	executor := &actions.Executor{
		Remux: &actions.Remux{
			Registry: registry,
			Timeout:  cfg.Tools.DefaultTimeout,
		},
		DvConvert: &actions.DvConvert{
			Registry: registry,
			Timeout:  cfg.Tools.DefaultTimeout,
		},
		ProfileB: &actions.ProfileBEncode{
			Registry:      registry,
			Timeout:       cfg.Tools.EncodeTimeout,
			HardwareAccel: cfg.Tools.HardwareAccel,
			AdaptiveCRF:   true,
			ProgressEvery: 2 * time.Second,
		},
		AddCompatAudio: &actions.AddCompatAudio{
			Registry: registry,
			Timeout:  cfg.Tools.DefaultTimeout,
		},
	}

	pool := &worker.Pool{
		Store:               jobStore,
		Prober:              prober,
		Engine:              engine,
		Executor:            executor,
		Events:              bus,
		MediaFiles:          mediaFileStore,
		Count:               cfg.Workers.Count,
		WorkspaceRoot:       cfg.Workspace.RootDir,
		ShutdownGracePeriod: cfg.Workers.ShutdownGracePeriod,
	}

	populate := func(id string) (*hls.PreparedMedia, error) {
		mf, err := mediaFileStore.Get(id)
		if err != nil {
			return nil, err
		}
		return hls.Precompute(mf.Path, cfg.HLS.TargetSegmentSeconds, fmt.Sprintf("/api/stream/%s", id))
	}
	cache := hlscache.New(cfg.HLS.CacheCapacity, cfg.HLS.PopulateMaxRetries, populate)

	router := gin.Default()

	api.RegisterRoutes(router, jobStore, ruleStore, bus)
	stream.NewHandler(cache).RegisterRoutes(router, "/api")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", "error", err)
		}
		pool.Shutdown()
		cancel()
	}()

	log.Info("mediapipe listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutdown complete")
}
