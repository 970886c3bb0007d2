package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asquebay/pautabot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// строк на один INSERT; держимся далеко от лимита в 65535 параметров
const insertBatch = 500

// StateRepository инкапсулирует работу с состоянием запусков в БД
type StateRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

// NewStateRepository создает новый экземпляр репозитория
func NewStateRepository(db *pgxpool.Pool) *StateRepository {
	return &StateRepository{
		db: db,
		// использую плейсхолдеры в стиле PostgreSQL ($1, $2, $3,...)
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LoadSnapshot читает последние известные суммы по всем поставщикам
func (r *StateRepository) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	const op = "repository.postgres.state.LoadSnapshot"

	sql, args, err := r.sq.Select("vendor_id", "vendor_name", "cumulative_amount::text", "updated_at").
		From("vendor_snapshots").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query snapshot: %w", op, err)
	}
	defer rows.Close()

	snapshot := make(model.Snapshot)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		snapshot[v.VendorID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to read snapshot rows: %w", op, err)
	}

	return snapshot, nil
}

// LoadSeenOrders читает множество отправленных заказов целиком
func (r *StateRepository) LoadSeenOrders(ctx context.Context) (model.SeenOrderSet, error) {
	const op = "repository.postgres.state.LoadSeenOrders"

	orders, err := r.querySeen(ctx, r.seenSelect())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(model.SeenOrderSet, len(orders))
	for _, o := range orders {
		seen[o.Key()] = o
	}
	return seen, nil
}

// LoadPendingOrders читает список заказов, ожидающих повторной отправки
func (r *StateRepository) LoadPendingOrders(ctx context.Context) ([]model.PendingOrder, error) {
	const op = "repository.postgres.state.LoadPendingOrders"

	sql, args, err := r.sq.Select(
		"fiscal_year", "order_id", "vendor_id", "vendor_name", "amount::text", "description",
		"issue_date", "department", "file_number", "attempts", "last_error", "first_failed_at",
	).
		From("pending_orders").
		OrderBy("first_failed_at", "fiscal_year", "order_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query pending orders: %w", op, err)
	}
	defer rows.Close()

	var pending []model.PendingOrder
	for rows.Next() {
		var (
			p      model.PendingOrder
			amount string
		)
		err := rows.Scan(
			&p.Order.FiscalYear, &p.Order.OrderID, &p.Order.VendorID, &p.Order.VendorName, &amount,
			&p.Order.Description, &p.Order.IssueDate, &p.Order.Department, &p.Order.FileNumber,
			&p.Attempts, &p.LastError, &p.FirstFailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan pending row: %w", op, err)
		}
		if p.Order.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("%s: bad amount for order %s: %w", op, p.Order.Key(), err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to read pending rows: %w", op, err)
	}

	return pending, nil
}

// Commit фиксирует итоги запуска в рамках одной транзакции:
// сначала отправленные заказы, затем снапшот и список ожидания
// либо записывается всё, либо ничего
func (r *StateRepository) Commit(ctx context.Context, commit model.StateCommit) error {
	const op = "repository.postgres.state.Commit"

	// начинаем транзакцию
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	// гарантируем откат транзакции в случае любой ошибки
	defer tx.Rollback(ctx)

	// 1. Отправленные заказы: только дописываем
	for _, batch := range chunk(commit.NewSeen, insertBatch) {
		q := r.sq.Insert("seen_orders").
			Columns("fiscal_year", "order_id", "vendor_id", "amount", "notified_at").
			Suffix("ON CONFLICT (fiscal_year, order_id) DO NOTHING")
		for _, s := range batch {
			q = q.Values(s.FiscalYear, s.OrderID, s.VendorID, s.Amount.String(), s.NotifiedAt)
		}
		if err := exec(ctx, tx, q); err != nil {
			return fmt.Errorf("%s: failed to insert seen orders: %w", op, err)
		}
	}

	// 2. Снапшот заменяется целиком
	if _, err := tx.Exec(ctx, "DELETE FROM vendor_snapshots"); err != nil {
		return fmt.Errorf("%s: failed to clear snapshot: %w", op, err)
	}
	vendors := make([]model.VendorTotal, 0, len(commit.Snapshot))
	for _, v := range commit.Snapshot {
		vendors = append(vendors, v)
	}
	for _, batch := range chunk(vendors, insertBatch) {
		q := r.sq.Insert("vendor_snapshots").
			Columns("vendor_id", "vendor_name", "cumulative_amount", "updated_at")
		for _, v := range batch {
			q = q.Values(v.VendorID, v.VendorName, v.CumulativeAmount.String(), updatedAt(v, commit.Committed))
		}
		if err := exec(ctx, tx, q); err != nil {
			return fmt.Errorf("%s: failed to insert snapshot: %w", op, err)
		}
	}

	// 3. Список ожидания тоже заменяется целиком
	if _, err := tx.Exec(ctx, "DELETE FROM pending_orders"); err != nil {
		return fmt.Errorf("%s: failed to clear pending orders: %w", op, err)
	}
	for _, batch := range chunk(commit.Pending, insertBatch) {
		q := r.sq.Insert("pending_orders").
			Columns(
				"fiscal_year", "order_id", "vendor_id", "vendor_name", "amount", "description",
				"issue_date", "department", "file_number", "attempts", "last_error", "first_failed_at",
			)
		for _, p := range batch {
			o := p.Order
			q = q.Values(
				o.FiscalYear, o.OrderID, o.VendorID, o.VendorName, o.Amount.String(), o.Description,
				o.IssueDate, o.Department, o.FileNumber, p.Attempts, p.LastError, p.FirstFailedAt,
			)
		}
		if err := exec(ctx, tx, q); err != nil {
			return fmt.Errorf("%s: failed to insert pending orders: %w", op, err)
		}
	}

	// если все прошло успешно, подтверждаем транзакцию
	return tx.Commit(ctx)
}

// ListSeenOrders возвращает последние отправленные заказы, новые первыми
func (r *StateRepository) ListSeenOrders(ctx context.Context, limit int) ([]model.SeenOrder, error) {
	const op = "repository.postgres.state.ListSeenOrders"

	q := r.seenSelect().OrderBy("notified_at DESC", "fiscal_year", "order_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	orders, err := r.querySeen(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// GetSeenOrder ищет отправленный заказ по году и номеру
func (r *StateRepository) GetSeenOrder(ctx context.Context, fiscalYear int, orderID string) (model.SeenOrder, error) {
	const op = "repository.postgres.state.GetSeenOrder"

	orders, err := r.querySeen(ctx, r.seenSelect().Where(squirrel.Eq{"fiscal_year": fiscalYear, "order_id": orderID}))
	if err != nil {
		return model.SeenOrder{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(orders) == 0 {
		return model.SeenOrder{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return orders[0], nil
}

// GetVendor возвращает запись снапшота по поставщику
func (r *StateRepository) GetVendor(ctx context.Context, vendorID string) (model.VendorTotal, error) {
	const op = "repository.postgres.state.GetVendor"

	sql, args, err := r.sq.Select("vendor_id", "vendor_name", "cumulative_amount::text", "updated_at").
		From("vendor_snapshots").
		Where(squirrel.Eq{"vendor_id": vendorID}).
		ToSql()
	if err != nil {
		return model.VendorTotal{}, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	v, err := scanVendor(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VendorTotal{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
		}
		return model.VendorTotal{}, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func (r *StateRepository) seenSelect() squirrel.SelectBuilder {
	return r.sq.Select("fiscal_year", "order_id", "vendor_id", "amount::text", "notified_at").
		From("seen_orders")
}

func (r *StateRepository) querySeen(ctx context.Context, q squirrel.SelectBuilder) ([]model.SeenOrder, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen orders: %w", err)
	}
	defer rows.Close()

	var orders []model.SeenOrder
	for rows.Next() {
		var (
			s      model.SeenOrder
			amount string
		)
		if err := rows.Scan(&s.FiscalYear, &s.OrderID, &s.VendorID, &amount, &s.NotifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan seen order row: %w", err)
		}
		if s.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount for order %s: %w", s.Key(), err)
		}
		orders = append(orders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seen order rows: %w", err)
	}
	return orders, nil
}

func scanVendor(row pgx.Row) (model.VendorTotal, error) {
	var (
		v      model.VendorTotal
		amount string
	)
	if err := row.Scan(&v.VendorID, &v.VendorName, &amount, &v.AsOf); err != nil {
		return model.VendorTotal{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return model.VendorTotal{}, fmt.Errorf("bad amount for vendor %s: %w", v.VendorID, err)
	}
	v.CumulativeAmount = d
	return v, nil
}

func exec(ctx context.Context, tx pgx.Tx, q squirrel.InsertBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

func updatedAt(v model.VendorTotal, fallback time.Time) time.Time {
	if v.AsOf.IsZero() {
		return fallback
	}
	return v.AsOf
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
