package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/asquebay/pautabot/internal/model"
)

// StateStore - in-memory хранилище состояния запусков
// используется в тестах и для сухих прогонов; Load* всегда отдают копии,
// чтобы прерванный запуск не мог испортить сохранённое состояние
type StateStore struct {
	mu       sync.Mutex
	snapshot model.Snapshot
	seen     model.SeenOrderSet
	pending  []model.PendingOrder
	commits  int
}

// NewStateStore создаёт пустое хранилище
func NewStateStore() *StateStore {
	return &StateStore{
		snapshot: model.Snapshot{},
		seen:     model.SeenOrderSet{},
	}
}

// LoadSnapshot возвращает копию снапшота
func (s *StateStore) LoadSnapshot(_ context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(model.Snapshot, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out, nil
}

// LoadSeenOrders возвращает копию множества отправленных заказов
func (s *StateStore) LoadSeenOrders(_ context.Context) (model.SeenOrderSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(model.SeenOrderSet, len(s.seen))
	for k, v := range s.seen {
		out[k] = v
	}
	return out, nil
}

// LoadPendingOrders возвращает копию списка ожидающих повторной отправки
func (s *StateStore) LoadPendingOrders(_ context.Context) ([]model.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.PendingOrder(nil), s.pending...), nil
}

// Commit заменяет снапшот и список ожидания и дописывает отправленные заказы
func (s *StateStore) Commit(_ context.Context, commit model.StateCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(model.Snapshot, len(commit.Snapshot))
	for k, v := range commit.Snapshot {
		snapshot[k] = v
	}
	for _, seen := range commit.NewSeen {
		if _, ok := s.seen[seen.Key()]; !ok {
			s.seen[seen.Key()] = seen
		}
	}
	s.snapshot = snapshot
	s.pending = append([]model.PendingOrder(nil), commit.Pending...)
	s.commits++
	return nil
}

// Commits - сколько раз состояние было зафиксировано
func (s *StateStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// ListSeenOrders возвращает последние отправленные заказы, новые первыми
func (s *StateStore) ListSeenOrders(_ context.Context, limit int) ([]model.SeenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.SeenOrder, 0, len(s.seen))
	for _, v := range s.seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NotifiedAt.Equal(out[j].NotifiedAt) {
			return out[i].NotifiedAt.After(out[j].NotifiedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetSeenOrder ищет отправленный заказ по году и номеру
func (s *StateStore) GetSeenOrder(_ context.Context, fiscalYear int, orderID string) (model.SeenOrder, error) {
	const op = "repository.memory.StateStore.GetSeenOrder"

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.seen[model.OrderKey(fiscalYear, orderID)]
	if !ok {
		return model.SeenOrder{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return seen, nil
}

// GetVendor возвращает запись снапшота по поставщику
func (s *StateStore) GetVendor(_ context.Context, vendorID string) (model.VendorTotal, error) {
	const op = "repository.memory.StateStore.GetVendor"

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.snapshot[vendorID]
	if !ok {
		return model.VendorTotal{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return v, nil
}
