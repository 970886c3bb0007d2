package http

import (
	"context"
	"fmt"

	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/notify"
)

// WebhookNotifier публикует уведомление POST-запросом во внешний шлюз соцсетей
// доставка считается подтверждённой только при ответе 2xx
type WebhookNotifier struct {
	client  *Client
	url     string
	token   string
	builder *notify.Builder
}

// NewWebhookNotifier создаёт notifier
func NewWebhookNotifier(client *Client, url, token string, builder *notify.Builder) *WebhookNotifier {
	return &WebhookNotifier{
		client:  client,
		url:     url,
		token:   token,
		builder: builder,
	}
}

// Send отправляет уведомление о заказе
func (n *WebhookNotifier) Send(ctx context.Context, order model.PurchaseOrder, vendor model.VendorTotal) error {
	const op = "transport.http.WebhookNotifier.Send"

	msg, err := n.builder.Build(order, vendor)
	if err != nil {
		return fmt.Errorf("%s: failed to build message: %w", op, err)
	}
	if _, err := n.client.PostJSON(ctx, n.url, n.token, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
