package reservation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
	"github.com/ariefcatur/go-stock-reservations/internal/memstore"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation/mocks"
	"github.com/ariefcatur/go-stock-reservations/internal/txn"
	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const store1 reservation.StoreID = "store-1"

type WorkflowTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *memstore.Store
	sink  *mocks.MockSink
	svc   *reservation.Service
}

func TestWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}

func newCoordinator(b txn.Backend[reservation.Tx]) *txn.Coordinator[reservation.Tx] {
	return txn.New[reservation.Tx](b, txn.Options{
		MaxAttempts:    100,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, zerolog.Nop(), nil)
}

func (s *WorkflowTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memstore.New()
	s.store.PutStore(reservation.Store{ID: store1, Name: "Corner Bakery"})
	s.store.PutUser(reservation.User{ID: "u1"})
	s.store.AddDeviceToken(store1, "tok-1")

	ctrl := gomock.NewController(s.T())
	s.sink = mocks.NewMockSink(ctrl)
	s.svc = reservation.NewService(newCoordinator(s.store), s.store, s.sink, zerolog.Nop())
}

func (s *WorkflowTestSuite) TearDownTest() {
	s.svc.Wait()
}

func (s *WorkflowTestSuite) putItem(id reservation.ItemID, stock int, price int64) {
	s.store.PutItem(reservation.Item{
		ID: id, StoreID: store1, Name: "Item " + string(id),
		QuantityAvailable: stock, SalePrice: decimal.NewFromInt(price), OnSale: true,
	})
}

func (s *WorkflowTestSuite) putCart(id reservation.CartEntryID, user reservation.UserID, item reservation.ItemID, count int) {
	s.store.PutCartEntry(reservation.CartEntry{
		ID: id, UserID: user, ItemID: item, StoreID: store1, ItemCount: count, Active: true,
	})
}

func (s *WorkflowTestSuite) quantity(id reservation.ItemID) int {
	it, err := s.store.GetItem(s.ctx, id)
	s.Require().NoError(err)
	return it.QuantityAvailable
}

func (s *WorkflowTestSuite) active(id reservation.CartEntryID) bool {
	c, err := s.store.GetCartEntry(s.ctx, id)
	s.Require().NoError(err)
	return c.Active
}

func (s *WorkflowTestSuite) reservations(user reservation.UserID) []reservation.Reservation {
	rs, err := s.store.ReservationsByUser(s.ctx, user)
	s.Require().NoError(err)
	return rs
}

func (s *WorkflowTestSuite) TestCreate_Succeeds() {
	s.putItem("A", 5, 10)
	s.putItem("B", 1, 5)
	s.putCart("c1", "u1", "A", 2)
	s.putCart("c2", "u1", "B", 1)
	s.sink.EXPECT().SendNewReservationMessage(gomock.Any(), []string{"tok-1"}).Return(true)

	id, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{Note: "pick up at 6"}, "u1")

	s.Require().NoError(err)
	s.Require().NotEmpty(id)
	s.Equal(3, s.quantity("A"))
	s.Equal(0, s.quantity("B"))
	s.False(s.active("c1"))
	s.False(s.active("c2"))

	r, err := s.store.GetReservation(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(reservation.UserID("u1"), r.UserID)
	s.Equal(store1, r.StoreID)
	s.Equal([]reservation.CartEntryID{"c1", "c2"}, r.CartEntryIDs)
	s.True(decimal.NewFromInt(25).Equal(r.TotalPrice), "total %s", r.TotalPrice)
	s.True(r.TotalPrice.Equal(r.TotalSalePrice))
	s.Equal(reservation.StatusCreated, r.Status)
	s.Equal("pick up at 6", r.Note)
	s.False(r.CreatedAt.IsZero())
}

func (s *WorkflowTestSuite) TestCreate_InsufficientStockHasNoPartialEffect() {
	s.putItem("A", 5, 10)
	s.putItem("B", 0, 5)
	s.putCart("c1", "u1", "A", 2)
	s.putCart("c2", "u1", "B", 1)

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Require().Error(err)
	s.Equal(apperr.KindInsufficientStock, apperr.KindOf(err))
	s.Contains(err.Error(), "Item B")
	s.Equal(5, s.quantity("A"))
	s.True(s.active("c1"))
	s.True(s.active("c2"))
	s.Empty(s.reservations("u1"))
}

func (s *WorkflowTestSuite) TestCreate_MiddleItemFailureLeavesFirstUntouched() {
	s.putItem("A", 5, 10)
	s.putItem("B", 1, 5)
	s.putItem("C", 9, 1)
	s.putCart("c1", "u1", "A", 1)
	s.putCart("c2", "u1", "B", 3)
	s.putCart("c3", "u1", "C", 1)

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Equal(apperr.KindInsufficientStock, apperr.KindOf(err))
	s.Equal(5, s.quantity("A"))
	s.Equal(1, s.quantity("B"))
	s.Equal(9, s.quantity("C"))
	s.True(s.active("c1"))
	s.True(s.active("c3"))
	s.Empty(s.reservations("u1"))
}

func (s *WorkflowTestSuite) TestCreate_ItemNotOnSale() {
	s.putItem("A", 5, 10)
	s.store.PutItem(reservation.Item{ID: "B", StoreID: store1, Name: "Seasonal Pie", QuantityAvailable: 5, SalePrice: decimal.NewFromInt(3), OnSale: false})
	s.putCart("c1", "u1", "A", 1)
	s.putCart("c2", "u1", "B", 1)

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Equal(apperr.KindInvalidState, apperr.KindOf(err))
	s.Contains(err.Error(), "Seasonal Pie")
	s.Equal(5, s.quantity("A"))
}

func (s *WorkflowTestSuite) TestCreate_EmptyCart() {
	s.store.PutCartEntry(reservation.CartEntry{ID: "old", UserID: "u1", ItemID: "A", StoreID: store1, ItemCount: 1, Active: false})

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Equal(apperr.KindInvalidState, apperr.KindOf(err))
	s.Contains(err.Error(), "cart is empty")
}

func (s *WorkflowTestSuite) TestCreate_UnknownUser() {
	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "ghost")

	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
	s.Contains(err.Error(), "ghost")
}

func (s *WorkflowTestSuite) TestCreate_MissingItem() {
	s.putCart("c1", "u1", "gone", 1)

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
	s.Contains(err.Error(), "gone")
}

func (s *WorkflowTestSuite) TestCreate_MixedStoresRejected() {
	s.putItem("A", 5, 10)
	s.store.PutItem(reservation.Item{ID: "X", StoreID: "store-2", Name: "Other", QuantityAvailable: 5, SalePrice: decimal.NewFromInt(1), OnSale: true})
	s.putCart("c1", "u1", "A", 1)
	s.store.PutCartEntry(reservation.CartEntry{ID: "c2", UserID: "u1", ItemID: "X", StoreID: "store-2", ItemCount: 1, Active: true})

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Equal(apperr.KindInvalidState, apperr.KindOf(err))
	s.Contains(err.Error(), "store-2")
	s.Equal(5, s.quantity("A"))
}

func (s *WorkflowTestSuite) TestCreate_NotificationFailureIsNotEscalated() {
	s.putItem("A", 5, 10)
	s.putCart("c1", "u1", "A", 1)
	s.sink.EXPECT().SendNewReservationMessage(gomock.Any(), gomock.Any()).Return(false)

	id, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Require().NoError(err)
	s.NotEmpty(id)
	s.Equal(4, s.quantity("A"))
	s.Len(s.reservations("u1"), 1)
}

// gatedSink blocks every send until release is closed and records the state
// of the context it was handed.
type gatedSink struct {
	release chan struct{}
	called  chan error
}

func (g *gatedSink) SendNewReservationMessage(ctx context.Context, tokens []string) bool {
	<-g.release
	g.called <- ctx.Err()
	return true
}

func (s *WorkflowTestSuite) TestCreate_SlowSinkDoesNotDelayCaller() {
	s.putItem("A", 5, 10)
	s.putCart("c1", "u1", "A", 1)
	sink := &gatedSink{release: make(chan struct{}), called: make(chan error, 1)}
	svc := reservation.NewService(newCoordinator(s.store), s.store, sink, zerolog.Nop())

	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	start := time.Now()
	id, err := svc.CreateReservation(ctx, reservation.CreateReservationRequest{}, "u1")
	elapsed := time.Since(start)
	cancel()

	s.Require().NoError(err)
	s.NotEmpty(id)
	s.Less(elapsed, 500*time.Millisecond, "caller waited on the sink")

	// the caller's context is gone; delivery must still run with a live one
	close(sink.release)
	select {
	case ctxErr := <-sink.called:
		s.NoError(ctxErr)
	case <-time.After(5 * time.Second):
		s.Fail("sink was never called")
	}
	svc.Wait()
}

func (s *WorkflowTestSuite) TestCreate_StoreWithoutTokensSkipsSink() {
	s.store.PutStore(reservation.Store{ID: "quiet"})
	s.store.PutItem(reservation.Item{ID: "Q", StoreID: "quiet", Name: "Q", QuantityAvailable: 1, SalePrice: decimal.NewFromInt(1), OnSale: true})
	s.store.PutCartEntry(reservation.CartEntry{ID: "c1", UserID: "u1", ItemID: "Q", StoreID: "quiet", ItemCount: 1, Active: true})

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Require().NoError(err)
}

func (s *WorkflowTestSuite) TestCreate_CartConsumedOnlyOnce() {
	s.putItem("A", 5, 10)
	s.putCart("c1", "u1", "A", 1)
	s.sink.EXPECT().SendNewReservationMessage(gomock.Any(), gomock.Any()).Return(true)

	_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")
	s.Require().NoError(err)

	_, err = s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")
	s.Equal(apperr.KindInvalidState, apperr.KindOf(err))
	s.Equal(4, s.quantity("A"))
}

func (s *WorkflowTestSuite) TestCreate_ConcurrentReservationsNeverOversell() {
	const (
		stock = 10
		qty   = 3
		users = 8
	)
	s.putItem("A", stock, 2)
	for i := 0; i < users; i++ {
		u := reservation.UserID(fmt.Sprintf("user-%d", i))
		s.store.PutUser(reservation.User{ID: u})
		s.putCart(reservation.CartEntryID(fmt.Sprintf("cart-%d", i)), u, "A", qty)
	}
	s.sink.EXPECT().SendNewReservationMessage(gomock.Any(), gomock.Any()).Return(true).AnyTimes()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(u reservation.UserID) {
			defer wg.Done()
			<-start
			_, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.KindInsufficientStock):
				short++
			default:
				other = append(other, err)
			}
		}(reservation.UserID(fmt.Sprintf("user-%d", i)))
	}
	close(start)
	wg.Wait()

	s.Empty(other)
	s.Equal(stock/qty, succeeded)
	s.Equal(users-stock/qty, short)
	s.Equal(stock-qty*succeeded, s.quantity("A"))
}

// interleavingBackend lets another transaction commit after the first
// attempt has read and buffered its writes, but before it commits.
type interleavingBackend struct {
	*memstore.Store
	once     sync.Once
	between  func()
	attempts int
}

func (b *interleavingBackend) Attempt(ctx context.Context, fn func(ctx context.Context, tx reservation.Tx) error) error {
	b.attempts++
	return b.Store.Attempt(ctx, func(ctx context.Context, tx reservation.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		b.once.Do(b.between)
		return nil
	})
}

func (s *WorkflowTestSuite) TestCreate_ConflictRetryRevalidatesStock() {
	s.putItem("A", 1, 10)
	s.store.PutUser(reservation.User{ID: "u2"})
	s.putCart("c1", "u1", "A", 1)
	s.putCart("c2", "u2", "A", 1)

	rival := reservation.NewService(newCoordinator(s.store), s.store, nil, zerolog.Nop())
	var rivalErr error
	backend := &interleavingBackend{Store: s.store}
	backend.between = func() {
		_, rivalErr = rival.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u2")
	}
	svc := reservation.NewService(newCoordinator(backend), s.store, nil, zerolog.Nop())

	_, err := svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")

	s.Require().NoError(rivalErr)
	s.Require().Error(err)
	s.Equal(apperr.KindInsufficientStock, apperr.KindOf(err), "got %v", err)
	s.Equal(2, backend.attempts)
	s.Equal(0, s.quantity("A"))
	s.True(s.active("c1"))
	s.False(s.active("c2"))
	s.Empty(s.reservations("u1"))
	s.Len(s.reservations("u2"), 1)
}

func TestCreate_RetryBudgetExhausted(t *testing.T) {
	store := memstore.New()
	store.PutUser(reservation.User{ID: "u1"})
	store.PutItem(reservation.Item{ID: "A", Name: "A", QuantityAvailable: 100, SalePrice: decimal.NewFromInt(1), OnSale: true})
	store.PutCartEntry(reservation.CartEntry{ID: "c1", UserID: "u1", ItemID: "A", StoreID: store1, ItemCount: 1, Active: true})

	// every attempt loses its commit to a concurrent stock update
	backend := &alwaysLosingBackend{Store: store}
	coord := txn.New[reservation.Tx](backend, txn.Options{MaxAttempts: 3, InitialBackoff: time.Millisecond}, zerolog.Nop(), nil)
	svc := reservation.NewService(coord, store, nil, zerolog.Nop())

	_, err := svc.CreateReservation(context.Background(), reservation.CreateReservationRequest{}, "u1")

	require.Equal(t, apperr.KindTransactionFailure, apperr.KindOf(err))
	require.ErrorIs(t, err, txn.ErrConflict)
	it, _ := store.GetItem(context.Background(), "A")
	require.Equal(t, 97, it.QuantityAvailable, "only the concurrent updates landed")
}

type alwaysLosingBackend struct {
	*memstore.Store
}

func (b *alwaysLosingBackend) Attempt(ctx context.Context, fn func(ctx context.Context, tx reservation.Tx) error) error {
	return b.Store.Attempt(ctx, func(ctx context.Context, tx reservation.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		it, err := b.Store.GetItem(ctx, "A")
		if err != nil {
			return err
		}
		it.QuantityAvailable--
		b.Store.PutItem(it)
		return nil
	})
}
