package notify

import (
	"testing"
	"time"

	"github.com/asquebay/pautabot/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoldify(t *testing.T) {
	assert.Equal(t,
		"𝐆𝐫𝐚𝐧 𝐢𝐧𝐯𝐞𝐫𝐬𝐢𝐨𝐧, 𝟔𝟓 𝐩𝐚𝐥𝐨𝐬 𝐩𝐚𝐫𝐚 𝐚𝐝𝐨𝐫𝐧𝐚𝐫 𝐩𝐞𝐫𝐢𝐨𝐝𝐢𝐬𝐭𝐚𝐬",
		Boldify("Gran inversion, 65 palos para adornar periodistas"),
	)
	assert.Equal(t, "❗❓ñ", Boldify("!?ñ"))
}

func TestMonodigits(t *testing.T) {
	assert.Equal(t, "𝟭𝟮𝟯𝟰𝟱𝟲𝟳𝟴𝟵𝟬.𝟬𝟬", Monodigits("1234567890.00"))
}

func TestExpandURL(t *testing.T) {
	assert.Equal(t,
		"https://www.bahia.gob.ar/compras/data/oc/2026/1234",
		ExpandURL("https://www.bahia.gob.ar/compras/data/oc/{year}/{order}", 2026, "1234"),
	)
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder("https://example.org/oc/{year}/{order}")
	order := model.PurchaseOrder{
		OrderID:    "1234",
		VendorID:   "V1",
		Amount:     decimal.RequireFromString("500.5"),
		IssueDate:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		FiscalYear: 2026,
		Department: "Prensa",
	}

	msg, err := b.Build(order, model.VendorTotal{VendorID: "V1", VendorName: "La Nueva"})
	require.NoError(t, err)

	assert.Equal(t, "2026/1234", msg.OrderKey)
	assert.Equal(t, "500.50", msg.Amount)
	assert.Equal(t, "https://example.org/oc/2026/1234", msg.DetailURL)
	assert.Contains(t, msg.Text, Boldify("La Nueva"))
	assert.Contains(t, msg.Text, "09/03/2026")
	assert.Contains(t, msg.Text, Monodigits("500.50"))
	assert.Contains(t, msg.Text, msg.DetailURL)
}

func TestBuilder_FallsBackToVendorID(t *testing.T) {
	msg, err := NewBuilder("").Build(model.PurchaseOrder{OrderID: "1", VendorID: "V7", FiscalYear: 2026}, model.VendorTotal{})
	require.NoError(t, err)
	assert.Equal(t, "V7", msg.VendorName)
}
