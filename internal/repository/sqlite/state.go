package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/asquebay/pautabot/internal/model"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// время храним текстом, чтобы порядок строк совпадал с хронологическим
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StateStore - состояние запусков в одном файле SQLite
// подходит для запуска по cron на одной машине без отдельной БД
type StateStore struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// Open открывает (или создаёт) файл состояния и применяет схему
func Open(ctx context.Context, path string) (*StateStore, error) {
	const op = "repository.sqlite.Open"

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}
	// sqlite пишет одним соединением
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	// WAL переживает падение процесса посреди записи
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to enable WAL mode: %w", op, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to apply schema: %w", op, err)
	}

	return &StateStore{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Close закрывает файл состояния
func (s *StateStore) Close() error {
	return s.db.Close()
}

// LoadSnapshot читает последние известные суммы по всем поставщикам
func (s *StateStore) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	const op = "repository.sqlite.StateStore.LoadSnapshot"

	rows, err := s.sq.Select("vendor_id", "vendor_name", "cumulative_amount", "updated_at").
		From("vendor_snapshots").
		RunWith(s.db).
		QueryContext(ctx)
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
func (s *StateStore) LoadSeenOrders(ctx context.Context) (model.SeenOrderSet, error) {
	const op = "repository.sqlite.StateStore.LoadSeenOrders"

	orders, err := s.querySeen(ctx, s.seenSelect())
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
func (s *StateStore) LoadPendingOrders(ctx context.Context) ([]model.PendingOrder, error) {
	const op = "repository.sqlite.StateStore.LoadPendingOrders"

	rows, err := s.sq.Select(
		"fiscal_year", "order_id", "vendor_id", "vendor_name", "amount", "description",
		"issue_date", "department", "file_number", "attempts", "last_error", "first_failed_at",
	).
		From("pending_orders").
		OrderBy("first_failed_at", "fiscal_year", "order_id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query pending orders: %w", op, err)
	}
	defer rows.Close()

	var pending []model.PendingOrder
	for rows.Next() {
		var (
			p                           model.PendingOrder
			amount, issued, firstFailed string
		)
		err := rows.Scan(
			&p.Order.FiscalYear, &p.Order.OrderID, &p.Order.VendorID, &p.Order.VendorName, &amount,
			&p.Order.Description, &issued, &p.Order.Department, &p.Order.FileNumber,
			&p.Attempts, &p.LastError, &firstFailed,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan pending row: %w", op, err)
		}
		if p.Order.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("%s: bad amount for order %s: %w", op, p.Order.Key(), err)
		}
		if p.Order.IssueDate, err = time.Parse(timeLayout, issued); err != nil {
			return nil, fmt.Errorf("%s: bad issue_date for order %s: %w", op, p.Order.Key(), err)
		}
		if p.FirstFailedAt, err = time.Parse(timeLayout, firstFailed); err != nil {
			return nil, fmt.Errorf("%s: bad first_failed_at for order %s: %w", op, p.Order.Key(), err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to read pending rows: %w", op, err)
	}
	return pending, nil
}

// Commit фиксирует итоги запуска одной транзакцией: либо всё, либо ничего
func (s *StateStore) Commit(ctx context.Context, commit model.StateCommit) error {
	const op = "repository.sqlite.StateStore.Commit"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, seen := range commit.NewSeen {
		_, err := s.sq.Insert("seen_orders").
			Columns("fiscal_year", "order_id", "vendor_id", "amount", "notified_at").
			Values(seen.FiscalYear, seen.OrderID, seen.VendorID, seen.Amount.String(), formatTime(seen.NotifiedAt)).
			Suffix("ON CONFLICT (fiscal_year, order_id) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("%s: failed to insert seen order %s: %w", op, seen.Key(), err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM vendor_snapshots"); err != nil {
		return fmt.Errorf("%s: failed to clear snapshot: %w", op, err)
	}
	for _, v := range commit.Snapshot {
		asOf := v.AsOf
		if asOf.IsZero() {
			asOf = commit.Committed
		}
		_, err := s.sq.Insert("vendor_snapshots").
			Columns("vendor_id", "vendor_name", "cumulative_amount", "updated_at").
			Values(v.VendorID, v.VendorName, v.CumulativeAmount.String(), formatTime(asOf)).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("%s: failed to insert snapshot for %s: %w", op, v.VendorID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_orders"); err != nil {
		return fmt.Errorf("%s: failed to clear pending orders: %w", op, err)
	}
	for _, p := range commit.Pending {
		o := p.Order
		_, err := s.sq.Insert("pending_orders").
			Columns(
				"fiscal_year", "order_id", "vendor_id", "vendor_name", "amount", "description",
				"issue_date", "department", "file_number", "attempts", "last_error", "first_failed_at",
			).
			Values(
				o.FiscalYear, o.OrderID, o.VendorID, o.VendorName, o.Amount.String(), o.Description,
				formatTime(o.IssueDate), o.Department, o.FileNumber, p.Attempts, p.LastError, formatTime(p.FirstFailedAt),
			).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("%s: failed to insert pending order %s: %w", op, o.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", op, err)
	}
	return nil
}

// ListSeenOrders возвращает последние отправленные заказы, новые первыми
func (s *StateStore) ListSeenOrders(ctx context.Context, limit int) ([]model.SeenOrder, error) {
	const op = "repository.sqlite.StateStore.ListSeenOrders"

	q := s.seenSelect().OrderBy("notified_at DESC", "fiscal_year", "order_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	orders, err := s.querySeen(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// GetSeenOrder ищет отправленный заказ по году и номеру
func (s *StateStore) GetSeenOrder(ctx context.Context, fiscalYear int, orderID string) (model.SeenOrder, error) {
	const op = "repository.sqlite.StateStore.GetSeenOrder"

	orders, err := s.querySeen(ctx, s.seenSelect().Where(squirrel.Eq{"fiscal_year": fiscalYear, "order_id": orderID}))
	if err != nil {
		return model.SeenOrder{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(orders) == 0 {
		return model.SeenOrder{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return orders[0], nil
}

// GetVendor возвращает запись снапшота по поставщику
func (s *StateStore) GetVendor(ctx context.Context, vendorID string) (model.VendorTotal, error) {
	const op = "repository.sqlite.StateStore.GetVendor"

	row := s.sq.Select("vendor_id", "vendor_name", "cumulative_amount", "updated_at").
		From("vendor_snapshots").
		Where(squirrel.Eq{"vendor_id": vendorID}).
		RunWith(s.db).
		QueryRowContext(ctx)

	v, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.VendorTotal{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
		}
		return model.VendorTotal{}, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func (s *StateStore) seenSelect() squirrel.SelectBuilder {
	return s.sq.Select("fiscal_year", "order_id", "vendor_id", "amount", "notified_at").
		From("seen_orders")
}

func (s *StateStore) querySeen(ctx context.Context, q squirrel.SelectBuilder) ([]model.SeenOrder, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen orders: %w", err)
	}
	defer rows.Close()

	var orders []model.SeenOrder
	for rows.Next() {
		var (
			o                model.SeenOrder
			amount, notified string
		)
		if err := rows.Scan(&o.FiscalYear, &o.OrderID, &o.VendorID, &amount, &notified); err != nil {
			return nil, fmt.Errorf("failed to scan seen order row: %w", err)
		}
		if o.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount for order %s: %w", o.Key(), err)
		}
		if o.NotifiedAt, err = time.Parse(timeLayout, notified); err != nil {
			return nil, fmt.Errorf("bad notified_at for order %s: %w", o.Key(), err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seen order rows: %w", err)
	}
	return orders, nil
}

func scanVendor(row squirrel.RowScanner) (model.VendorTotal, error) {
	var (
		v               model.VendorTotal
		amount, updated string
	)
	if err := row.Scan(&v.VendorID, &v.VendorName, &amount, &updated); err != nil {
		return model.VendorTotal{}, err
	}
	var err error
	if v.CumulativeAmount, err = decimal.NewFromString(amount); err != nil {
		return model.VendorTotal{}, fmt.Errorf("bad amount for vendor %s: %w", v.VendorID, err)
	}
	if v.AsOf, err = time.Parse(timeLayout, updated); err != nil {
		return model.VendorTotal{}, fmt.Errorf("bad updated_at for vendor %s: %w", v.VendorID, err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
