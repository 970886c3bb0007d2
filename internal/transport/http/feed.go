package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asquebay/pautabot/internal/model"
	"github.com/asquebay/pautabot/internal/notify"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// AggregateFeed читает сводку рекламных расходов по поставщикам
// формат строки: {"proveedor": "...", "monto": 123.45}; поставщик идентифицируется по имени
type AggregateFeed struct {
	client *Client
	url    string
}

// NewAggregateFeed создаёт фид; в urlTemplate подставляется {year}
func NewAggregateFeed(client *Client, urlTemplate string, year int) *AggregateFeed {
	return &AggregateFeed{
		client: client,
		url:    notify.ExpandURL(urlTemplate, year, ""),
	}
}

type aggregateRow struct {
	Proveedor string          `json:"proveedor"`
	Monto     decimal.Decimal `json:"monto"`
}

// Fetch возвращает текущие суммы; ошибки сети и формата оборачиваются в FetchError
func (f *AggregateFeed) Fetch(ctx context.Context) ([]model.VendorTotal, error) {
	body, err := f.client.Get(ctx, f.url)
	if err != nil {
		return nil, &model.FetchError{Source: "aggregates", Err: err}
	}

	var rows []aggregateRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &model.FetchError{Source: "aggregates", Err: fmt.Errorf("malformed feed: %w", err)}
	}

	totals := make([]model.VendorTotal, 0, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r.Proveedor)
		totals = append(totals, model.VendorTotal{
			VendorID:         name,
			VendorName:       name,
			CumulativeAmount: r.Monto,
		})
	}
	return totals, nil
}

// OrderFeed читает все заказы за финансовый год и умеет дочитывать
// описание заказа со страницы деталей
type OrderFeed struct {
	client      *Client
	urlTemplate string
	detailURL   string
	log         *slog.Logger
}

// NewOrderFeed создаёт фид; в шаблоны подставляются {year} и {order}
func NewOrderFeed(client *Client, urlTemplate, detailURL string, log *slog.Logger) *OrderFeed {
	return &OrderFeed{
		client:      client,
		urlTemplate: urlTemplate,
		detailURL:   detailURL,
		log:         log,
	}
}

// flexString принимает в JSON и строку, и число (номер заказа приходит по-разному)
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(b)
	return nil
}

type orderRow struct {
	Ejercicio   int             `json:"ejercicio"`
	OrdenCompra flexString      `json:"ordencompra"`
	Fecha       string          `json:"fecha"`
	Importe     decimal.Decimal `json:"importe"`
	Proveedor   string          `json:"proveedor"`
	Dependencia string          `json:"dependencia"`
	Expediente  flexString      `json:"expediente"`
	Descripcion string          `json:"descripcion"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Fetch возвращает заказы года; фильтрацией занимается вызывающая сторона
func (f *OrderFeed) Fetch(ctx context.Context, fiscalYear int) ([]model.PurchaseOrder, error) {
	const op = "transport.http.OrderFeed.Fetch"

	body, err := f.client.Get(ctx, notify.ExpandURL(f.urlTemplate, fiscalYear, ""))
	if err != nil {
		return nil, &model.FetchError{Source: "orders", Err: err}
	}

	var rows []orderRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &model.FetchError{Source: "orders", Err: fmt.Errorf("malformed feed: %w", err)}
	}

	orders := make([]model.PurchaseOrder, 0, len(rows))
	for _, r := range rows {
		year := r.Ejercicio
		if year == 0 {
			year = fiscalYear
		}
		issued, ok := parseDate(r.Fecha)
		if !ok && r.Fecha != "" {
			f.log.Debug("unparseable order date",
				slog.String("op", op), slog.String("order_id", string(r.OrdenCompra)), slog.String("fecha", r.Fecha))
		}
		name := strings.TrimSpace(r.Proveedor)
		orders = append(orders, model.PurchaseOrder{
			OrderID:     string(r.OrdenCompra),
			VendorID:    name,
			VendorName:  name,
			Amount:      r.Importe,
			Description: strings.TrimSpace(r.Descripcion),
			IssueDate:   issued,
			FiscalYear:  year,
			Department:  strings.TrimSpace(r.Dependencia),
			FileNumber:  string(r.Expediente),
		})
	}
	return orders, nil
}

// Describe скачивает страницу деталей заказа и возвращает её видимый текст
func (f *OrderFeed) Describe(ctx context.Context, order model.PurchaseOrder) (string, error) {
	url := notify.ExpandURL(f.detailURL, order.FiscalYear, order.OrderID)
	body, err := f.client.Get(ctx, url)
	if err != nil {
		return "", &model.FetchError{Source: "order detail " + order.Key(), Err: err}
	}
	return pageText(body), nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// pageText собирает текстовые узлы HTML, пропуская script и style
func pageText(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	var (
		parts []string
		skip  bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			skip = string(name) == "script" || string(name) == "style"
		case html.EndTagToken:
			skip = false
		case html.TextToken:
			if skip {
				continue
			}
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
