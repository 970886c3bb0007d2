package notify

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/asquebay/pautabot/internal/model"
)

// Message - полезная нагрузка уведомления, общая для kafka и webhook
type Message struct {
	OrderKey   string    `json:"order_key"`
	OrderID    string    `json:"order_id"`
	FiscalYear int       `json:"fiscal_year"`
	VendorID   string    `json:"vendor_id"`
	VendorName string    `json:"vendor_name"`
	Department string    `json:"department"`
	IssueDate  time.Time `json:"issue_date"`
	Amount     string    `json:"amount"`
	DetailURL  string    `json:"detail_url"`
	Text       string    `json:"text"`
}

var postTemplate = template.Must(template.New("post").Parse(`🤖 pautabot reportando nuevo 💸 gasto en pauta publicitaria:

📰  Proveedor: {{.Vendor}}
🏛  Dependencia: {{.Department}}
🗓  Fecha: {{.Date}}
💵  Importe: $ {{.Amount}}

{{.URL}}`))

// Builder собирает сообщения; detailURL - шаблон ссылки с {year} и {order}
type Builder struct {
	detailURL string
}

// NewBuilder создаёт сборщик сообщений
func NewBuilder(detailURL string) *Builder {
	return &Builder{detailURL: detailURL}
}

// Build формирует сообщение о заказе
func (b *Builder) Build(order model.PurchaseOrder, vendor model.VendorTotal) (Message, error) {
	name := vendor.VendorName
	if name == "" {
		name = order.VendorName
	}
	if name == "" {
		name = order.VendorID
	}

	date := ""
	if !order.IssueDate.IsZero() {
		date = order.IssueDate.Format("02/01/2006")
	}

	msg := Message{
		OrderKey:   order.Key(),
		OrderID:    order.OrderID,
		FiscalYear: order.FiscalYear,
		VendorID:   order.VendorID,
		VendorName: name,
		Department: order.Department,
		IssueDate:  order.IssueDate,
		Amount:     order.Amount.StringFixed(2),
		DetailURL:  ExpandURL(b.detailURL, order.FiscalYear, order.OrderID),
	}

	var buf bytes.Buffer
	err := postTemplate.Execute(&buf, map[string]string{
		"Vendor":     Boldify(name),
		"Department": Boldify(order.Department),
		"Date":       date,
		"Amount":     Monodigits(msg.Amount),
		"URL":        msg.DetailURL,
	})
	if err != nil {
		return Message{}, err
	}
	msg.Text = buf.String()

	return msg, nil
}

// ExpandURL подставляет год и номер заказа в шаблон ссылки
func ExpandURL(tmpl string, year int, orderID string) string {
	return strings.NewReplacer("{year}", strconv.Itoa(year), "{order}", orderID).Replace(tmpl)
}
