package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"metabattery/api"
	"metabattery/config"
	"metabattery/handlers"
	"metabattery/internal/database"
	"metabattery/internal/ipc"
	"metabattery/services/metadata"
	"metabattery/services/provider"
	"metabattery/services/scheduler"
	"metabattery/utils"
)

func main() {
	configPath := os.Getenv("METABATTERY_CONFIG")
	if configPath == "" {
		configPath = "config/settings.json"
	}

	manager := config.NewManager(configPath)
	settings, err := manager.Load()
	if err != nil {
		log.Fatalf("[main] load config: %v", err)
	}

	if settings.LogPath != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   settings.LogPath,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}))
	}

	db, err := database.NewDB(database.Config{DatabasePath: settings.DatabasePath})
	if err != nil {
		log.Fatalf("[main] open database: %v", err)
	}
	defer db.Close()

	trakt := provider.NewTraktClient(settings.Trakt, settings.RequestTimeout())
	svc := metadata.NewService(db.Repository, trakt, settings.StalenessThreshold())

	sched := scheduler.NewService(svc, settings.UpdateFrequency())
	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[main] start scheduler: %v", err)
	}

	router := utils.NewRouter()
	router.Use(api.RequestIDMiddleware())
	router.Use(api.LoggingMiddleware())
	limiter := api.NewIPRateLimiter(rate.Every(time.Second/10), 30)
	router.Use(api.RateLimitMiddleware(limiter))
	handlers.NewMetadataHandler(svc).RegisterRoutes(router)
	handlers.NewSettingsHandler(manager).RegisterRoutes(router)
	router.HandleFunc("/api/version", handlers.NewVersionHandler().GetVersion).Methods(http.MethodGet)

	ipcServer, err := ipc.NewServer(ctx, settings.RPCSocketPath, svc)
	if err != nil {
		log.Fatalf("[main] start rpc server: %v", err)
	}
	ipcServer.Serve()

	httpServer := &http.Server{
		Addr:         settings.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[main] http server listening addr=%s", settings.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("[main] shutting down signal=%s", sig)
	case err := <-errCh:
		log.Printf("[main] http server failed err=%v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown err=%v", err)
	}
	ipcServer.Close()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Printf("[main] scheduler stop err=%v", err)
	}
	log.Printf("[main] shutdown complete")
}
