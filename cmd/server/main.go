package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/klyp/klyp-go/api"
	"github.com/klyp/klyp-go/internal/eventbus"
	"github.com/klyp/klyp-go/internal/history"
	"github.com/klyp/klyp-go/internal/infrastructure"
	"github.com/klyp/klyp-go/internal/pool"
	"github.com/klyp/klyp-go/internal/queue"
	"github.com/klyp/klyp-go/internal/service"
	"github.com/klyp/klyp-go/internal/settings"
	"github.com/klyp/klyp-go/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var (
	host      = flag.String("host", "localhost", "HTTP listen host")
	port      = flag.Int("port", 8571, "HTTP listen port")
	configDir = flag.String("config-dir", "", "Config directory (default: user config dir)")
	logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat = flag.String("log-format", "console", "Log format: console, json")
)

func main() {
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:      *logLevel,
		Format:     *logFormat,
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	baseDir := *configDir
	if baseDir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			log.Fatal("Failed to resolve config directory", zap.Error(err))
		}
		baseDir = filepath.Join(userDir, "klyp")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		log.Fatal("Failed to create config directory", zap.Error(err))
	}

	settingsPath := filepath.Join(baseDir, "settings.json")
	pendingPath := filepath.Join(baseDir, "pending_downloads.json")
	historyDBPath := filepath.Join(baseDir, "history.db")
	historyExportPath := filepath.Join(baseDir, "download_history.json")

	log.Info("Starting klyp server",
		zap.String("version", "1.0.0"),
		zap.String("host", *host),
		zap.Int("port", *port),
		zap.String("config_dir", baseDir))

	// Event bus carries everything workers need to tell the frontend
	bus := eventbus.New(log.Named("eventbus"))
	bus.Start()

	settingsStore, err := settings.NewStore(settingsPath, bus, log.Named("settings"))
	if err != nil {
		log.Fatal("Failed to load settings", zap.Error(err))
	}

	historyStore, err := history.NewStore(historyDBPath)
	if err != nil {
		log.Fatal("Failed to open history store", zap.Error(err))
	}
	defer historyStore.Close()

	queueStore := queue.NewStore(bus, log.Named("queue"))
	pools := pool.NewRegistry(log.Named("pool"))

	fetcher := infrastructure.NewYTDLPFetcher(infrastructure.FetcherConfig{
		Binary:       settingsStore.GetString(settings.KeyYTDLPBinary),
		CookiesFile:  settingsStore.GetString(settings.KeyCookiesPath),
		ExtractAudio: settingsStore.GetBool(settings.KeyExtractAudio),
		AudioFormat:  settingsStore.GetString(settings.KeyAudioFormat),
	}, log.Named("fetcher"))

	downloadService := service.NewDownloadService(
		queueStore, historyStore, fetcher, pools, bus, log.Named("downloads"))

	searchBackend := infrastructure.NewYTDLPSearchBackend(
		settingsStore.GetString(settings.KeyYTDLPBinary), log.Named("search"))
	searchService := service.NewSearchService(searchBackend, pools, bus, log.Named("searches"))

	notifier := infrastructure.NewDesktopNotifier(settingsStore, log.Named("notifier"))
	notifier.AttachToBus(bus)

	// Resume tasks left over from the previous run
	if tasks, err := queueStore.LoadPending(pendingPath); err != nil {
		log.Warn("Failed to load pending downloads", zap.Error(err))
	} else if len(tasks) > 0 {
		restored := queueStore.Restore(tasks)
		log.Info("Restored pending downloads", zap.Int("count", restored))
		if settingsStore.GetBool(settings.KeyAutoResume) {
			downloadService.StartAllQueued()
		}
	}

	router := api.SetupRouter(api.Services{
		Store:     queueStore,
		Downloads: downloadService,
		Searches:  searchService,
		Settings:  settingsStore,
		History:   historyStore,
		Bus:       bus,
	}, log.Named("http"))

	addr := fmt.Sprintf("%s:%d", *host, *port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Snapshot first, while interrupted tasks still read as downloading:
	// they normalize to queued on the next start. Then signal workers and
	// give them the shutdown window.
	if err := queueStore.SnapshotPending(pendingPath); err != nil {
		log.Error("Failed to snapshot pending downloads", zap.Error(err))
	}
	downloadService.StopAll()
	if !pools.Shutdown(shutdownTimeout) {
		log.Warn("Some workers did not exit before the shutdown timeout")
	}
	if err := historyStore.Export(historyExportPath); err != nil {
		log.Error("Failed to export history", zap.Error(err))
	}

	bus.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
