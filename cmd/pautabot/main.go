package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/asquebay/pautabot/internal/app"
	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/lib/logger"
	"github.com/asquebay/pautabot/internal/lib/metrics"
)

func main() {
	os.Exit(run())
}

// run выполняет ровно один запуск и возвращает код выхода
// ошибки доставки отдельных заказов не делают запуск неуспешным
func run() int {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to config file")
	flag.Parse()

	// 1. Инициализация конфигурации
	cfg := config.MustLoad(*configPath)

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting pautabot",
		slog.String("log_level", cfg.Logger.Level),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("notifier", cfg.Notifier.Driver),
	)

	// весь запуск ограничен run.timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Run.Timeout)
	defer cancel()

	// 3. Инициализация хранилища состояния
	store, closeStore, err := app.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("failed to open state store", slog.String("error", err.Error()))
		return 1
	}
	defer closeStore()

	// 4. Инициализация notifier-а
	notifier, closeNotifier, err := app.NewNotifier(cfg, log)
	if err != nil {
		log.Error("failed to create notifier", slog.String("error", err.Error()))
		return 1
	}
	defer closeNotifier()

	// 5. Запуск
	started := time.Now()
	coordinator := app.NewCoordinator(cfg, store, notifier, log, started)
	res, runErr := coordinator.Run(ctx)
	finished := time.Now()

	// 6. Метрики
	if cfg.Metrics.PushgatewayURL != "" {
		m := metrics.NewRunMetrics()
		m.Observe(res, finished.Sub(started).Seconds(), finished.Unix())

		pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pushCancel()
		if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			// метрики не влияют на код выхода
			log.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		log.Error("run failed", slog.String("run_id", res.RunID), slog.String("error", runErr.Error()))
		return 1
	}

	for _, f := range res.Failures {
		log.Warn("order left pending", slog.String("order_key", f.OrderKey), slog.String("error", f.Error))
	}
	log.Info("pautabot finished",
		slog.String("run_id", res.RunID),
		slog.Int("notified", len(res.Notified)),
		slog.Int("failures", len(res.Failures)),
	)
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
