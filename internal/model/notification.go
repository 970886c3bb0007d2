package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeenOrder - заказ, уведомление о котором подтверждено доставкой
type SeenOrder struct {
	FiscalYear int             `json:"fiscal_year"`
	OrderID    string          `json:"order_id"`
	VendorID   string          `json:"vendor_id"`
	Amount     decimal.Decimal `json:"amount"`
	NotifiedAt time.Time       `json:"notified_at"`
}

// Key - ключ заказа, см. PurchaseOrder.Key
func (s SeenOrder) Key() string {
	return OrderKey(s.FiscalYear, s.OrderID)
}

// SeenOrderSet - множество уже отправленных заказов: ключ заказа -> запись
// только пополняется, ничего не удаляется
type SeenOrderSet map[string]SeenOrder

// Has сообщает, было ли уже подтверждено уведомление о заказе
func (s SeenOrderSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add отмечает заказ как отправленный
func (s SeenOrderSet) Add(order PurchaseOrder, at time.Time) SeenOrder {
	seen := SeenOrder{
		FiscalYear: order.FiscalYear,
		OrderID:    order.OrderID,
		VendorID:   order.VendorID,
		Amount:     order.Amount,
		NotifiedAt: at,
	}
	s[order.Key()] = seen
	return seen
}

// PendingOrder - заказ, уведомление о котором не удалось доставить
// переотправляется в следующих запусках независимо от дельт
type PendingOrder struct {
	Order         PurchaseOrder `json:"order"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error"`
	FirstFailedAt time.Time     `json:"first_failed_at"`
}

// StateCommit - всё, что запуск записывает на стадии COMMITTING
// хранилище обязано записать это одной транзакцией
type StateCommit struct {
	Snapshot  Snapshot
	NewSeen   []SeenOrder
	Pending   []PendingOrder
	Committed time.Time
}
