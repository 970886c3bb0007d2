package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/matcher"
	"github.com/asquebay/pautabot/internal/notify"
	"github.com/asquebay/pautabot/internal/repository/postgres"
	"github.com/asquebay/pautabot/internal/repository/sqlite"
	"github.com/asquebay/pautabot/internal/service"
	httptransport "github.com/asquebay/pautabot/internal/transport/http"
	"github.com/asquebay/pautabot/internal/transport/kafka"
)

// Store - хранилище, которое нужно и запуску, и API статуса
type Store interface {
	service.StateStore
	httptransport.StatusReader
}

// OpenStore открывает хранилище, выбранное в storage.driver
// возвращённую функцию нужно вызвать при завершении
func OpenStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (Store, func(), error) {
	const op = "app.OpenStore"

	switch cfg.Driver {
	case "postgres":
		dbpool, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := postgres.Migrate(ctx, dbpool); err != nil {
			dbpool.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("successfully connected to postgres", slog.String("host", cfg.Postgres.Host))
		return postgres.NewStateRepository(dbpool), dbpool.Close, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("opened sqlite state file", slog.String("path", cfg.SQLite.Path))
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error("failed to close sqlite state file", slog.String("error", err.Error()))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}

// NewNotifier собирает notifier, выбранный в notifier.driver
func NewNotifier(cfg *config.Config, log *slog.Logger) (service.Notifier, func(), error) {
	builder := notify.NewBuilder(cfg.Feeds.DetailURL)

	switch cfg.Notifier.Driver {
	case "kafka":
		n := kafka.NewNotifier(cfg.Kafka, cfg.Retry, builder, log)
		return n, func() {
			if err := n.Close(); err != nil {
				log.Error("error closing kafka notifier", slog.String("error", err.Error()))
			}
		}, nil
	case "webhook":
		client := httptransport.NewClient(cfg.Notifier.Timeout, cfg.Retry, log, "webhook")
		return httptransport.NewWebhookNotifier(client, cfg.Notifier.WebhookURL, cfg.Notifier.WebhookToken, builder), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("app.NewNotifier: unknown notifier driver %q", cfg.Notifier.Driver)
	}
}

// NewCoordinator собирает координатор запуска из конфигурации
func NewCoordinator(cfg *config.Config, store service.StateStore, notifier service.Notifier, log *slog.Logger, now time.Time) *service.RunCoordinator {
	year := cfg.Feeds.FiscalYearAt(now)
	client := httptransport.NewClient(cfg.Feeds.Timeout, cfg.Retry, log, "feeds")

	aggregates := httptransport.NewAggregateFeed(client, cfg.Feeds.AggregateURL, year)
	orders := httptransport.NewOrderFeed(client, cfg.Feeds.OrdersURL, cfg.Feeds.DetailURL, log)
	m := matcher.New(cfg.Matcher.Keywords, cfg.Matcher.ToleranceDecimal(), cfg.Matcher.MaxCandidates)

	return service.NewRunCoordinator(aggregates, orders, notifier, store, m, log, service.WithFiscalYear(year))
}
