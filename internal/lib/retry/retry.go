package retry

import (
	"errors"
	"log/slog"
	"time"

	"github.com/asquebay/pautabot/internal/config"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// permanentError помечает ошибку, которую бессмысленно повторять (4xx, битый JSON)
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку так, чтобы политика повторов её не повторяла
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как неповторяемая
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// New собирает failsafe-исполнитель с ограниченным числом повторов
// и экспоненциальной задержкой с джиттером
// повторяются все ошибки, кроме помеченных через Permanent
func New[R any](cfg config.Retry, log *slog.Logger, name string) failsafe.Executor[R] {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= initial {
		maxBackoff = 2 * initial
	}
	jitter := cfg.JitterFactor
	if jitter < 0 || jitter > 1 {
		jitter = 0
	}

	policy := retrypolicy.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool {
			return err != nil && !IsPermanent(err)
		}).
		WithMaxRetries(maxRetries).
		WithBackoff(initial, maxBackoff).
		WithJitterFactor(jitter).
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			attrs := []any{slog.String("call", name), slog.Int("attempt", e.Attempts())}
			if err := e.LastError(); err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			log.Warn("retrying call", attrs...)
		}).
		Build()

	return failsafe.With[R](policy)
}
