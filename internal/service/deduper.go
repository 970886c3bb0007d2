package service

import (
	"time"

	"github.com/asquebay/pautabot/internal/model"
)

// Deduper отсекает заказы, о которых уже сообщали
// множество пополняется только через MarkSeen после подтверждённой доставки
type Deduper struct {
	seen    model.SeenOrderSet
	newSeen []model.SeenOrder
}

// NewDeduper создаёт дедупликатор поверх загруженного множества
func NewDeduper(seen model.SeenOrderSet) *Deduper {
	if seen == nil {
		seen = model.SeenOrderSet{}
	}
	return &Deduper{seen: seen}
}

// IsSeen сообщает, было ли уведомление о заказе уже доставлено
func (d *Deduper) IsSeen(order model.PurchaseOrder) bool {
	return d.seen.Has(order.Key())
}

// MarkSeen вызывается только после успешного Notifier.Send
func (d *Deduper) MarkSeen(order model.PurchaseOrder, at time.Time) {
	if d.IsSeen(order) {
		return
	}
	d.newSeen = append(d.newSeen, d.seen.Add(order, at))
}

// Filter убирает уже отправленные заказы и повторы внутри самого списка
func (d *Deduper) Filter(orders []model.PurchaseOrder) []model.PurchaseOrder {
	batch := make(map[string]struct{}, len(orders))
	out := make([]model.PurchaseOrder, 0, len(orders))
	for _, o := range orders {
		key := o.Key()
		if d.seen.Has(key) {
			continue
		}
		if _, dup := batch[key]; dup {
			continue
		}
		batch[key] = struct{}{}
		out = append(out, o)
	}
	return out
}

// Seen возвращает всё множество, включая отмеченное в этом запуске
func (d *Deduper) Seen() model.SeenOrderSet {
	return d.seen
}

// NewlySeen - заказы, отмеченные в этом запуске, в порядке отметки
func (d *Deduper) NewlySeen() []model.SeenOrder {
	return d.newSeen
}
