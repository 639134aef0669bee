package reservation

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/ariefcatur/go-stock-reservations/internal/reservation Sink

var (
	// ErrNotFound is returned by stores for any missing entity.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientQuantity is returned by DecrementItemQuantity when the
	// item holds fewer units than requested. Nothing is written in that case.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// Tx is the transactional view handed to a unit of work.
type Tx interface {
	FindUser(ctx context.Context, id UserID) (User, error)
	ActiveCartEntries(ctx context.Context, userID UserID) ([]CartEntry, error)
	GetItem(ctx context.Context, id ItemID) (Item, error)
	DecrementItemQuantity(ctx context.Context, id ItemID, n int) error
	DeactivateCartEntries(ctx context.Context, ids []CartEntryID) error
	InsertReservation(ctx context.Context, r Reservation) error
}

// Reader serves the non-transactional read paths.
type Reader interface {
	ReservationsByUser(ctx context.Context, userID UserID) ([]Reservation, error)
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)
	GetStore(ctx context.Context, id StoreID) (Store, error)
	GetCartEntry(ctx context.Context, id CartEntryID) (CartEntry, error)
	GetItem(ctx context.Context, id ItemID) (Item, error)
	DeviceTokensByStore(ctx context.Context, id StoreID) ([]string, error)
}

// Coordinator is satisfied by *txn.Coordinator[Tx].
type Coordinator interface {
	Run(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Sink delivers the "new reservation" push to a store's devices. A false
// return is a delivery failure the caller only logs.
type Sink interface {
	SendNewReservationMessage(ctx context.Context, tokens []string) bool
}
