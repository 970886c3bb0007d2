package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asquebay/pautabot/internal/app"
	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/lib/logger"
	httptransport "github.com/asquebay/pautabot/internal/transport/http"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()
	if *configPath == "" {
		*configPath = "config/config.yaml"
	}

	// 1. Инициализация конфигурации
	cfg := config.MustLoad(*configPath)

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting pautabot status api", slog.String("log_level", cfg.Logger.Level))

	// 3. Инициализация хранилища (только чтение)
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := app.OpenStore(initCtx, cfg.Storage, log)
	initCancel()
	if err != nil {
		log.Error("failed to open state store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	// 4. Инициализация и запуск HTTP-сервера
	handler := httptransport.NewHandler(store, log)
	httpServer := httptransport.NewServer(cfg.HTTPServer, handler)
	log.Info("starting http server", slog.String("port", cfg.HTTPServer.Port))

	go func() {
		if err := httpServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// 5. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down status api")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("status api stopped")
}
