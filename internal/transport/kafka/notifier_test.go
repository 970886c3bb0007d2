package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/lib/logger"
	"github.com/asquebay/pautabot/internal/lib/retry"
	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/notify"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	errs     []error
	calls    int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestNotifier(w *fakeWriter) *Notifier {
	log := logger.Discard()
	cfg := config.Retry{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return newNotifier(w, notify.NewBuilder("https://example.org/oc/{year}/{order}"), retry.New[any](cfg, log, "test"), log)
}

func order() model.PurchaseOrder {
	return model.PurchaseOrder{
		OrderID:    "1234",
		VendorID:   "V1",
		Amount:     decimal.NewFromInt(500),
		FiscalYear: 2026,
		IssueDate:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotifier_Send(t *testing.T) {
	w := &fakeWriter{}
	n := newTestNotifier(w)

	err := n.Send(context.Background(), order(), model.VendorTotal{VendorID: "V1", VendorName: "La Nueva"})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	assert.Equal(t, "2026/1234", string(w.messages[0].Key))

	var msg notify.Message
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &msg))
	assert.Equal(t, "La Nueva", msg.VendorName)
	assert.Equal(t, "500.00", msg.Amount)
	assert.Equal(t, "https://example.org/oc/2026/1234", msg.DetailURL)
}

func TestNotifier_RetriesTemporaryFailure(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("broker unreachable")}}
	n := newTestNotifier(w)

	require.NoError(t, n.Send(context.Background(), order(), model.VendorTotal{}))
	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.messages, 1)
}

func TestNotifier_PermanentKafkaError(t *testing.T) {
	w := &fakeWriter{errs: []error{kafka.TopicAuthorizationFailed}}
	n := newTestNotifier(w)

	err := n.Send(context.Background(), order(), model.VendorTotal{})
	require.Error(t, err)
	assert.ErrorIs(t, err, kafka.TopicAuthorizationFailed)
	assert.Equal(t, 1, w.calls)
}

func TestNotifier_ExhaustedRetries(t *testing.T) {
	boom := errors.New("broker unreachable")
	w := &fakeWriter{errs: []error{boom, boom, boom, boom}}
	n := newTestNotifier(w)

	err := n.Send(context.Background(), order(), model.VendorTotal{})
	require.Error(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Empty(t, w.messages)
}

func TestNotifier_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestNotifier(w).Close())
	assert.True(t, w.closed)
}

func TestNewWriter_SendsEachMessageImmediately(t *testing.T) {
	w := newWriter(config.Kafka{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "pauta", WriteTimeout: 3 * time.Second})
	defer w.Close()

	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, "pauta", w.Topic)
	assert.Equal(t, 3*time.Second, w.WriteTimeout)
}
