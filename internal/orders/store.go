package orders

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned by MarkPaid when no order has the given id.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("order id already exists")
	// ErrStatusConflict is returned by MarkPaid when the order is not
	// pending_payment and was not paid by the same session.
	ErrStatusConflict = errors.New("order status conflict")
)

// Store persists orders. Implementations must make MarkPaid atomic per order id.
type Store interface {
	// Create persists a new order. It fails with ErrDuplicateID if the id exists.
	Create(ctx context.Context, o Order) error
	// Get fetches an order by id. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (*Order, error)
	// MarkPaid transitions the order to paid and returns the stored result.
	// first is true only for the call that moved it out of pending_payment.
	MarkPaid(ctx context.Context, id string, p Payment) (o *Order, first bool, err error)
	// List returns every order, newest first.
	List(ctx context.Context) ([]Order, error)
}

// SortNewestFirst orders by CreatedAt descending, falling back to id for ties.
func SortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
