package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/asquebay/pautabot/internal/config"
	"github.com/asquebay/pautabot/internal/lib/retry"

	"github.com/failsafe-go/failsafe-go"
)

// лимит тела ответа: фид заказов за год - несколько мегабайт
const maxBodySize = 64 << 20

// StatusError - ответ сервера с кодом не из 2xx
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, truncate(e.Body, 200))
}

// Client - HTTP-клиент с таймаутом на запрос и повторами с джиттером
// 5xx, 429 и сетевые ошибки повторяются, остальные 4xx - нет
type Client struct {
	http *http.Client
	exec failsafe.Executor[[]byte]
}

// NewClient создаёт клиент
func NewClient(timeout time.Duration, retryCfg config.Retry, log *slog.Logger, name string) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		exec: retry.New[[]byte](retryCfg, log, name),
	}
}

// Get выполняет GET и возвращает тело ответа
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.exec.WithContext(ctx).Get(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json, text/html")
		return c.do(req)
	})
}

// PostJSON отправляет payload как JSON; token, если задан, уходит в Authorization
func (c *Client) PostJSON(ctx context.Context, url, token string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	return c.exec.WithContext(ctx).Get(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return c.do(req)
	})
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: body}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
