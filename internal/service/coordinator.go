package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/asquebay/pautabot/internal/detector"
	"github.com/asquebay/pautabot/internal/lib/retry"
	"github.com/asquebay/pautabot/internal/matcher"
	"github.com/asquebay/pautabot/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunCoordinator проводит один запуск через все стадии
// и фиксирует состояние только в конце успешного запуска
type RunCoordinator struct {
	aggregates AggregateFeed
	orders     OrderFeed
	notifier   Notifier
	store      StateStore
	matcher    *matcher.Matcher
	log        *slog.Logger

	fiscalYear int
	now        func() time.Time
}

// Option настраивает RunCoordinator
type Option func(*RunCoordinator)

// WithClock подменяет часы (в тестах)
func WithClock(now func() time.Time) Option {
	return func(c *RunCoordinator) { c.now = now }
}

// WithFiscalYear фиксирует финансовый год фида заказов; 0 - год текущего запуска
func WithFiscalYear(year int) Option {
	return func(c *RunCoordinator) { c.fiscalYear = year }
}

// NewRunCoordinator создаёт координатор
// все хранилища и внешние сервисы передаются явно, глобального состояния нет
func NewRunCoordinator(
	aggregates AggregateFeed,
	orders OrderFeed,
	notifier Notifier,
	store StateStore,
	m *matcher.Matcher,
	log *slog.Logger,
	opts ...Option,
) *RunCoordinator {
	c := &RunCoordinator{
		aggregates: aggregates,
		orders:     orders,
		notifier:   notifier,
		store:      store,
		matcher:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// selection - заказ, выбранный к отправке, вместе с его поставщиком
type selection struct {
	order  model.PurchaseOrder
	vendor model.VendorTotal
}

// run хранит всё изменяемое состояние одного запуска
type run struct {
	c       *RunCoordinator
	log     *slog.Logger
	started time.Time
	state   model.RunState
	result  model.RunResult

	snapshot model.Snapshot
	deduper  *Deduper
	pending  map[string]model.PendingOrder

	current  map[string]model.VendorTotal
	deltas   []model.DeltaRecord
	orders   []model.PurchaseOrder
	selected []selection
}

// Run выполняет один запуск
// при ошибке любой стадии запуск переходит в FAILED и хранилища не меняются;
// ошибки доставки отдельных заказов запуск не валят, а попадают в RunResult.Failures
func (c *RunCoordinator) Run(ctx context.Context) (model.RunResult, error) {
	const op = "service.RunCoordinator.Run"

	runID := uuid.NewString()
	r := &run{
		c:       c,
		log:     c.log.With(slog.String("op", op), slog.String("run_id", runID)),
		started: c.now(),
		state:   model.StateFetchingAggregates,
		result:  model.RunResult{RunID: runID, Notified: []string{}},
		pending: make(map[string]model.PendingOrder),
		current: make(map[string]model.VendorTotal),
	}

	r.log.Info("run started")

	steps := []struct {
		state model.RunState
		fn    func(context.Context) error
	}{
		{model.StateFetchingAggregates, r.fetchAggregates},
		{model.StateDetecting, r.detect},
		{model.StateFetchingOrders, r.fetchOrders},
		{model.StateMatching, r.match},
		{model.StateNotifying, r.notify},
		{model.StateCommitting, r.commit},
	}

	for _, step := range steps {
		r.advance(step.state)
		if err := step.fn(ctx); err != nil {
			failedIn := r.state
			r.advance(model.StateFailed)
			r.result.Failed = true
			r.result.State = model.StateFailed
			r.log.Error("run failed",
				slog.String("state", failedIn.String()),
				slog.String("error", err.Error()),
			)
			return r.result, fmt.Errorf("%s: %s: %w", op, failedIn, err)
		}
	}

	r.advance(model.StateDone)
	r.result.State = model.StateDone
	r.log.Info("run finished",
		slog.Int("deltas", len(r.deltas)),
		slog.Int("notified", len(r.result.Notified)),
		slog.Int("notify_failures", len(r.result.Failures)),
		slog.Int("skipped_records", r.result.SkippedRecords),
	)

	return r.result, nil
}

func (r *run) advance(next model.RunState) {
	if r.state.Terminal() {
		return
	}
	r.log.Debug("state transition", slog.String("from", r.state.String()), slog.String("to", next.String()))
	r.state = next
}

// fetchAggregates загружает состояние прошлых запусков и текущие суммы
func (r *run) fetchAggregates(ctx context.Context) error {
	var err error
	if r.snapshot, err = r.c.store.LoadSnapshot(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	seen, err := r.c.store.LoadSeenOrders(ctx)
	if err != nil {
		return fmt.Errorf("load seen orders: %w", err)
	}
	r.deduper = NewDeduper(seen)

	pending, err := r.c.store.LoadPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("load pending orders: %w", err)
	}
	for _, p := range pending {
		if r.deduper.IsSeen(p.Order) {
			continue
		}
		r.pending[p.Order.Key()] = p
	}

	r.log.Info("state loaded",
		slog.Int("snapshot_vendors", len(r.snapshot)),
		slog.Int("seen_orders", len(seen)),
		slog.Int("pending_orders", len(r.pending)),
	)

	totals, err := r.c.aggregates.Fetch(ctx)
	if err != nil {
		return asFetchError("aggregates", err)
	}

	for _, t := range totals {
		if err := t.Validate(); err != nil {
			r.skip(&model.DataError{Record: t.VendorID, Reason: err.Error()})
			continue
		}
		if _, dup := r.current[t.VendorID]; dup {
			r.log.Warn("duplicate vendor row in aggregate feed, keeping the last one",
				slog.String("vendor_id", t.VendorID))
		}
		t.AsOf = r.started
		r.current[t.VendorID] = t
	}

	r.log.Info("aggregates fetched", slog.Int("vendors", len(r.current)))
	return nil
}

func (r *run) detect(_ context.Context) error {
	current := make(map[string]decimal.Decimal, len(r.current))
	for id, t := range r.current {
		current[id] = t.CumulativeAmount
	}

	deltas, err := detector.Detect(current, r.snapshot.Amounts())
	if err != nil {
		return err
	}
	r.deltas = deltas
	r.result.Deltas = deltas

	for _, d := range deltas {
		r.log.Info("spend increase detected",
			slog.String("vendor_id", d.VendorID),
			slog.String("previous", d.PreviousAmount.String()),
			slog.String("current", d.CurrentAmount.String()),
			slog.String("delta", d.Delta().String()),
		)
	}
	return nil
}

func (r *run) fetchOrders(ctx context.Context) error {
	if len(r.deltas) == 0 {
		r.log.Info("no spend increases since last run, skipping order feed")
		return nil
	}

	year := r.c.fiscalYear
	if year == 0 {
		year = r.started.Year()
	}

	orders, err := r.c.orders.Fetch(ctx, year)
	if err != nil {
		return asFetchError("orders", err)
	}

	for _, o := range orders {
		if err := o.Validate(); err != nil {
			r.skip(&model.DataError{Record: o.OrderID, Reason: err.Error()})
			continue
		}
		if o.FiscalYear != year {
			r.log.Debug("order outside fiscal year, ignoring",
				slog.String("order_id", o.OrderID), slog.Int("fiscal_year", o.FiscalYear))
			continue
		}
		r.orders = append(r.orders, o)
	}

	r.log.Info("orders fetched", slog.Int("fiscal_year", year), slog.Int("orders", len(r.orders)))
	return nil
}

func (r *run) match(ctx context.Context) error {
	if err := r.describe(ctx); err != nil {
		return err
	}

	var candidates []selection

	// сначала - заказы, не доставленные в прошлых запусках
	for _, p := range r.sortedPending() {
		candidates = append(candidates, selection{order: p.Order, vendor: r.vendorFor(p.Order)})
	}

	for _, d := range r.deltas {
		matched := r.c.matcher.Match(d, r.orders, r.deduper.Seen())
		if len(matched) == 0 {
			r.log.Info("no advertising orders matched the increase", slog.String("vendor_id", d.VendorID))
		}
		for _, o := range matched {
			candidates = append(candidates, selection{order: o, vendor: r.vendorFor(o)})
		}
	}

	orders := make([]model.PurchaseOrder, 0, len(candidates))
	for _, s := range candidates {
		orders = append(orders, s.order)
	}
	keep := make(map[string]bool, len(candidates))
	for _, o := range r.deduper.Filter(orders) {
		keep[o.Key()] = true
	}
	for _, s := range candidates {
		if keep[s.order.Key()] {
			r.selected = append(r.selected, s)
			delete(keep, s.order.Key())
		}
	}

	r.log.Info("orders selected for notification", slog.Int("count", len(r.selected)))
	return nil
}

// describe дополняет пустые описания заказов со страницы деталей,
// но только для поставщиков с дельтой: страниц тысячи
func (r *run) describe(ctx context.Context) error {
	source, ok := r.c.orders.(DescriptionSource)
	if !ok || len(r.deltas) == 0 {
		return nil
	}

	vendors := make(map[string]struct{}, len(r.deltas))
	for _, d := range r.deltas {
		vendors[d.VendorID] = struct{}{}
	}

	for i, o := range r.orders {
		if o.Description != "" || r.deduper.IsSeen(o) {
			continue
		}
		if _, ok := vendors[o.VendorID]; !ok {
			continue
		}
		desc, err := source.Describe(ctx, o)
		if err != nil {
			// страницы нет (4xx): заказ остаётся без описания и в выборку не попадёт
			if retry.IsPermanent(err) {
				r.log.Warn("order detail page unavailable",
					slog.String("order_key", o.Key()), slog.String("error", err.Error()))
				continue
			}
			return asFetchError("order detail "+o.Key(), err)
		}
		r.orders[i].Description = desc
	}
	return nil
}

func (r *run) notify(ctx context.Context) error {
	for _, s := range r.selected {
		key := s.order.Key()
		log := r.log.With(slog.String("order_key", key), slog.String("vendor_id", s.order.VendorID))

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("notify aborted: %w", err)
		}

		err := r.c.notifier.Send(ctx, s.order, s.vendor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("notify aborted: %w", ctxErr)
			}
			nerr := &model.NotifyError{OrderKey: key, Err: err}
			log.Warn("notification failed, order kept pending", slog.String("error", nerr.Error()))
			r.result.Failures = append(r.result.Failures, model.NotifyFailure{
				OrderKey: key,
				OrderID:  s.order.OrderID,
				Error:    err.Error(),
			})
			r.markPending(s.order, err)
			continue
		}

		r.deduper.MarkSeen(s.order, r.c.now())
		delete(r.pending, key)
		r.result.Notified = append(r.result.Notified, s.order.OrderID)
		log.Info("order notified", slog.String("amount", s.order.Amount.String()))
	}
	return nil
}

func (r *run) commit(ctx context.Context) error {
	commit := model.StateCommit{
		Snapshot:  r.snapshot.Merge(r.currentTotals()),
		NewSeen:   r.deduper.NewlySeen(),
		Pending:   r.sortedPending(),
		Committed: r.c.now(),
	}
	if err := r.c.store.Commit(ctx, commit); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	r.log.Info("state committed",
		slog.Int("snapshot_vendors", len(commit.Snapshot)),
		slog.Int("new_seen", len(commit.NewSeen)),
		slog.Int("pending", len(commit.Pending)),
	)
	return nil
}

func (r *run) markPending(order model.PurchaseOrder, err error) {
	key := order.Key()
	p, ok := r.pending[key]
	if !ok {
		p = model.PendingOrder{Order: order, FirstFailedAt: r.c.now()}
	}
	p.Attempts++
	p.LastError = err.Error()
	r.pending[key] = p
}

func (r *run) skip(err *model.DataError) {
	r.result.SkippedRecords++
	r.log.Warn("skipping malformed record", slog.String("error", err.Error()))
}

func (r *run) vendorFor(order model.PurchaseOrder) model.VendorTotal {
	if v, ok := r.current[order.VendorID]; ok {
		return v
	}
	if v, ok := r.snapshot[order.VendorID]; ok {
		return v
	}
	return model.VendorTotal{VendorID: order.VendorID, VendorName: order.VendorName}
}

func (r *run) currentTotals() []model.VendorTotal {
	totals := make([]model.VendorTotal, 0, len(r.current))
	for _, t := range r.current {
		totals = append(totals, t)
	}
	return totals
}

func (r *run) sortedPending() []model.PendingOrder {
	out := make([]model.PendingOrder, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstFailedAt.Equal(out[j].FirstFailedAt) {
			return out[i].FirstFailedAt.Before(out[j].FirstFailedAt)
		}
		return out[i].Order.Key() < out[j].Order.Key()
	})
	return out
}

func asFetchError(source string, err error) error {
	var fe *model.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &model.FetchError{Source: source, Err: err}
}
