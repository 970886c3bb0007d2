package service

import (
	"context"

	"github.com/asquebay/pautabot/internal/model"
)

// AggregateFeed отдаёт текущие накопленные суммы по поставщикам
// каждый вызов - полная замена картины, без инкрементальной семантики
type AggregateFeed interface {
	Fetch(ctx context.Context) ([]model.VendorTotal, error)
}

// OrderFeed отдаёт все заказы за финансовый год
// фид не отфильтрован: заказы любых поставщиков и назначений
type OrderFeed interface {
	Fetch(ctx context.Context, fiscalYear int) ([]model.PurchaseOrder, error)
}

// DescriptionSource - необязательное расширение фида заказов:
// достаёт описание заказа со страницы деталей, если в строке фида его нет
type DescriptionSource interface {
	Describe(ctx context.Context, order model.PurchaseOrder) (string, error)
}

// Notifier доставляет уведомление; nil означает подтверждённую доставку
type Notifier interface {
	Send(ctx context.Context, order model.PurchaseOrder, vendor model.VendorTotal) error
}

// SnapshotStore определяет контракт для хранилища последних сумм по поставщикам
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (model.Snapshot, error)
}

// SeenOrderStore определяет контракт для хранилища отправленных
// и ожидающих повторной отправки заказов
type SeenOrderStore interface {
	LoadSeenOrders(ctx context.Context) (model.SeenOrderSet, error)
	LoadPendingOrders(ctx context.Context) ([]model.PendingOrder, error)
}

// StateStore объединяет оба хранилища и атомарную запись итогов запуска
// Commit обязан записать всё одной транзакцией или не записать ничего
type StateStore interface {
	SnapshotStore
	SeenOrderStore
	Commit(ctx context.Context, commit model.StateCommit) error
}
