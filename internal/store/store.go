// Package store defines storage interfaces for advanced orders and their
// executions, with SQLite, in-memory and Parquet implementations.
package store

import (
	"context"
	"time"

	"orderwatch/internal/domain"
)

// OrderStore persists order records. Every mutation after creation is a
// compare-and-set, so concurrent monitors and cancellations never overwrite
// each other.
type OrderStore interface {
	// CreateOrders inserts a set of new orders atomically: either all rows
	// are written or none are.
	CreateOrders(ctx context.Context, orders []*domain.Order) error

	// GetOrder retrieves a single order by its ID. Returns domain.ErrNotFound
	// when no such order exists.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns orders matching the filter ordered by creation time.
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// ListGroup returns every member of a family group.
	ListGroup(ctx context.Context, groupID string) ([]domain.Order, error)

	// UpdateOrder writes all mutable fields of order if the stored version
	// equals order.Version. On success order.Version and order.UpdatedAt are
	// advanced. Returns domain.ErrConflict when the version moved.
	UpdateOrder(ctx context.Context, order *domain.Order) error

	// CompareAndSwapStatus sets status to `to` only if the current status is
	// one of `from`. It returns the updated order, or the current order along
	// with domain.ErrConflict when the status did not match.
	CompareAndSwapStatus(ctx context.Context, id string, from []domain.Status, to domain.Status, reason string) (*domain.Order, error)
}

// FillJournal is an append-only audit log of executions.
type FillJournal interface {
	// WriteFills appends fills to the journal.
	WriteFills(ctx context.Context, fills []domain.Fill) error

	// ReadFills returns all fills recorded on the given UTC day.
	ReadFills(ctx context.Context, day time.Time) ([]domain.Fill, error)
}
