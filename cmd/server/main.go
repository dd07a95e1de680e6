package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ipcam-hls/internal/api"
	"ipcam-hls/internal/camera"
	"ipcam-hls/internal/hls"
	"ipcam-hls/internal/platform/config"
	"ipcam-hls/internal/platform/logger"
	"ipcam-hls/internal/platform/metrics"
	"ipcam-hls/internal/snapshot"
	"ipcam-hls/internal/stream"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := stream.ResetOutputRoot(cfg.HLSRoot); err != nil {
		log.Error("output root unusable", "root", cfg.HLSRoot, "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	sup := stream.NewSupervisor(stream.Config{
		Root:        cfg.HLSRoot,
		EnginePath:  cfg.FFmpegPath,
		IdleTimeout: cfg.IdleTimeout,
	}, log, stream.WithObserver(met))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopReaper := stream.StartReaper(ctx, log, sup, cfg.ReapInterval)

	media := hls.NewHandler(hls.Config{
		Root:         sup.Root(),
		WaitTimeout:  cfg.FileWaitTimeout,
		PollInterval: cfg.FilePollInterval,
	}, log, met)
	snaps := snapshot.New(cfg.FFmpegPath, cfg.SnapshotTimeout, log)
	cam := camera.New(cfg.CameraTimeout)
	h := api.NewHandler(sup, snaps, cam, log, met)

	r := chi.NewRouter()
	r.Use(api.CORS())
	r.Use(logger.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(sup.ActiveCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Health)
	r.Get("/streams", h.ListStreams)
	r.Method(http.MethodGet, "/hls/*", media)
	r.Method(http.MethodHead, "/hls/*", media)
	r.Get("/streamStart", h.StreamStart)
	r.Get("/streamStop", h.StreamStop)
	r.Get("/streamHeartbeat", h.StreamHeartbeat)
	r.Get("/captureSnapshot", h.CaptureSnapshot)
	r.Get("/getDeviceInfo", h.GetDeviceInfo)
	r.Get("/getIpcChannels", h.GetIpcChannels)
	r.Get("/getIpcChannelsName", h.GetIpcChannelsName)
	r.Get("/getDevicePorts", h.GetDevicePorts)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"hls_root", sup.Root(),
		"engine", cfg.FFmpegPath,
		"idle_timeout", cfg.IdleTimeout.String(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopReaper()
	sup.Close()

	log.Info("server stopped")
}
