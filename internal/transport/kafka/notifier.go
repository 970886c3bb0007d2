package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/lib/retry"
	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/notify"

	"github.com/failsafe-go/failsafe-go"
	"github.com/segmentio/kafka-go"
)

// messageWriter - часть kafka.Writer, нужная notifier-у
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier публикует уведомления о заказах в топик Kafka
// ключ сообщения - ключ заказа, поэтому все повторы одного заказа
// попадают в одну партицию
type Notifier struct {
	writer  messageWriter
	builder *notify.Builder
	exec    failsafe.Executor[any]
	log     *slog.Logger
}

// NewNotifier создает продюсер, который ждёт подтверждения от всех реплик
func NewNotifier(cfg config.Kafka, retryCfg config.Retry, builder *notify.Builder, log *slog.Logger) *Notifier {
	return newNotifier(newWriter(cfg), builder, retry.New[any](retryCfg, log, "kafka.notify"), log)
}

// newWriter настраивает продюсер под отправку по одному сообщению:
// пакет из одного сообщения уходит сразу, без ожидания окна BatchTimeout
func newWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

func newNotifier(w messageWriter, builder *notify.Builder, exec failsafe.Executor[any], log *slog.Logger) *Notifier {
	return &Notifier{
		writer:  w,
		builder: builder,
		exec:    exec,
		log:     log.With(slog.String("component", "kafka_notifier")),
	}
}

// Send публикует одно уведомление; nil означает, что брокер подтвердил запись
func (n *Notifier) Send(ctx context.Context, order model.PurchaseOrder, vendor model.VendorTotal) error {
	const op = "transport.kafka.Notifier.Send"

	msg, err := n.builder.Build(order, vendor)
	if err != nil {
		return fmt.Errorf("%s: failed to build message: %w", op, err)
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal message: %w", op, err)
	}

	err = n.exec.WithContext(ctx).Run(func() error {
		err := n.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(msg.OrderKey),
			Value: value,
		})
		var kerr kafka.Error
		if errors.As(err, &kerr) && !kerr.Temporary() {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n.log.Debug("notification published", slog.String("order_key", msg.OrderKey))
	return nil
}

// Close закрывает продюсер, дожидаясь отправки буфера
func (n *Notifier) Close() error {
	n.log.Info("closing kafka notifier")
	return n.writer.Close()
}
