package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ OrderStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	owner             TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	family            TEXT NOT NULL,
	side              TEXT NOT NULL,
	quantity          TEXT NOT NULL,
	stop_price        TEXT,
	limit_price       TEXT,
	trail_amount      TEXT,
	trail_type        TEXT NOT NULL DEFAULT '',
	visible_quantity  TEXT,
	duration_ns       INTEGER NOT NULL DEFAULT 0,
	slices_executed   INTEGER NOT NULL DEFAULT 0,
	quantity_executed TEXT NOT NULL DEFAULT '0',
	avg_fill_price    TEXT,
	parent_id         TEXT NOT NULL DEFAULT '',
	group_id          TEXT NOT NULL,
	status            TEXT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status_family ON orders(status, family);
CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_group ON orders(group_id);
`

const orderColumns = `id, owner, symbol, family, side, quantity, stop_price, limit_price,
	trail_amount, trail_type, visible_quantity, duration_ns, slices_executed,
	quantity_executed, avg_fill_price, parent_id, group_id, status, reason,
	version, created_at, updated_at`

// SQLiteStore implements OrderStore backed by a SQLite database. Status
// transitions are conditional UPDATE statements, so a lost race shows up as
// zero affected rows rather than a lock wait.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection keeps writes serialized
	// in-process instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// CreateOrders inserts all orders inside one transaction.
func (s *SQLiteStore) CreateOrders(ctx context.Context, orders []*domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range orders {
		_, err := stmt.ExecContext(ctx,
			o.ID, o.Owner, o.Symbol, string(o.Family), string(o.Side), o.Quantity,
			o.StopPrice, o.LimitPrice, o.TrailAmount, string(o.TrailType), o.VisibleQuantity,
			int64(o.Duration), o.SlicesExecuted, o.QuantityExecuted, o.AvgFillPrice,
			o.ParentID, o.GroupID, string(o.Status), o.Reason, o.Version,
			o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("inserting order %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.db, id)
}

// ListOrders returns orders matching the filter ordered by creation time.
func (s *SQLiteStore) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, filter.Owner)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if len(filter.Families) > 0 {
		where = append(where, "family IN ("+placeholders(len(filter.Families))+")")
		for _, f := range filter.Families {
			args = append(args, string(f))
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	q := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListGroup returns every member of a family group.
func (s *SQLiteStore) ListGroup(ctx context.Context, groupID string) ([]domain.Order, error) {
	return s.ListOrders(ctx, domain.OrderFilter{GroupID: groupID})
}

// UpdateOrder writes all mutable fields when the stored version matches.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *domain.Order) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET
		stop_price = ?, limit_price = ?, trail_amount = ?, trail_type = ?,
		visible_quantity = ?, slices_executed = ?, quantity_executed = ?,
		avg_fill_price = ?, status = ?, reason = ?,
		version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		o.StopPrice, o.LimitPrice, o.TrailAmount, string(o.TrailType),
		o.VisibleQuantity, o.SlicesExecuted, o.QuantityExecuted,
		o.AvgFillPrice, string(o.Status), o.Reason,
		now.UnixNano(), o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s moved past version %d", domain.ErrConflict, o.ID, o.Version)
	}

	o.Version++
	o.UpdatedAt = now
	return nil
}

// CompareAndSwapStatus moves an order from any of `from` to `to`.
func (s *SQLiteStore) CompareAndSwapStatus(ctx context.Context, id string, from []domain.Status, to domain.Status, reason string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	set := "status = ?, version = version + 1, updated_at = ?"
	args := []any{string(to), s.now().UnixNano()}
	if reason != "" {
		set += ", reason = ?"
		args = append(args, reason)
	}
	args = append(args, id)
	for _, st := range from {
		args = append(args, string(st))
	}
	res, err := tx.ExecContext(ctx, "UPDATE orders SET "+set+
		" WHERE id = ? AND status IN ("+placeholders(len(from))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("transitioning order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	cur, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return cur, fmt.Errorf("%w: order %s is %s", domain.ErrConflict, id, cur.Status)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cur, nil
}

// ---------------------------------------------------------------------------
// Row helpers
// ---------------------------------------------------------------------------

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getOrder(ctx context.Context, q queryer, id string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return o, err
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var (
		o                     domain.Order
		family, side, status  string
		trailType             string
		durationNs            int64
		createdAt, updatedAt  int64
		quantity, qtyExecuted decimal.Decimal
		stop, limit, trail    decimal.NullDecimal
		visible, avgFillPrice decimal.NullDecimal
	)
	err := sc.Scan(
		&o.ID, &o.Owner, &o.Symbol, &family, &side, &quantity, &stop, &limit,
		&trail, &trailType, &visible, &durationNs, &o.SlicesExecuted,
		&qtyExecuted, &avgFillPrice, &o.ParentID, &o.GroupID, &status, &o.Reason,
		&o.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Family = domain.Family(family)
	o.Side = domain.Side(side)
	o.Status = domain.Status(status)
	o.TrailType = domain.TrailType(trailType)
	o.Quantity = quantity
	o.QuantityExecuted = qtyExecuted
	o.StopPrice = stop
	o.LimitPrice = limit
	o.TrailAmount = trail
	o.VisibleQuantity = visible
	o.AvgFillPrice = avgFillPrice
	o.Duration = time.Duration(durationNs)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &o, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
