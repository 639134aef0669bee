package reservation_test

import (
	"context"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type storelessReader struct{ reservation.Reader }

func (storelessReader) GetStore(ctx context.Context, id reservation.StoreID) (reservation.Store, error) {
	return reservation.Store{}, reservation.ErrNotFound
}

func (s *WorkflowTestSuite) createOne() reservation.ReservationID {
	s.putItem("A", 5, 10)
	s.putItem("B", 5, 4)
	s.putCart("c1", "u1", "A", 2)
	s.putCart("c2", "u1", "B", 1)
	s.sink.EXPECT().SendNewReservationMessage(gomock.Any(), gomock.Any()).Return(true)

	id, err := s.svc.CreateReservation(s.ctx, reservation.CreateReservationRequest{}, "u1")
	s.Require().NoError(err)
	return id
}

func (s *WorkflowTestSuite) TestList_ResolvesStoreAndFirstItem() {
	id := s.createOne()

	list, err := s.svc.ListReservations(s.ctx, "u1")

	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(id, list[0].ID)
	s.Equal("Corner Bakery", list[0].Store.Name)
	s.Equal(reservation.ItemPreview{Name: "Item A", Quantity: 2}, list[0].FirstItem)
	s.True(decimal.NewFromInt(24).Equal(list[0].TotalPrice))
}

func (s *WorkflowTestSuite) TestList_MissingCartUsesPlaceholder() {
	s.createOne()
	s.store.DeleteCartEntry("c1")

	list, err := s.svc.ListReservations(s.ctx, "u1")

	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(reservation.ItemPreview{Name: " ", Quantity: 0}, list[0].FirstItem)
}

func (s *WorkflowTestSuite) TestList_MissingStoreIsNotFound() {
	s.createOne()
	other := reservation.NewService(newCoordinator(s.store), storelessReader{s.store}, nil, zerolog.Nop())

	_, err := other.ListReservations(s.ctx, "u1")

	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (s *WorkflowTestSuite) TestList_EmptyForUnknownUser() {
	list, err := s.svc.ListReservations(s.ctx, "nobody")

	s.Require().NoError(err)
	s.Empty(list)
}

func (s *WorkflowTestSuite) TestReadPathsAreIdempotent() {
	id := s.createOne()

	list1, err := s.svc.ListReservations(s.ctx, "u1")
	s.Require().NoError(err)
	list2, err := s.svc.ListReservations(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(list1, list2)

	d1, err := s.svc.GetReservationDetail(s.ctx, "u1", id)
	s.Require().NoError(err)
	d2, err := s.svc.GetReservationDetail(s.ctx, "u1", id)
	s.Require().NoError(err)
	s.Equal(d1, d2)
}

func (s *WorkflowTestSuite) TestDetail_Owner() {
	id := s.createOne()

	d, err := s.svc.GetReservationDetail(s.ctx, "u1", id)

	s.Require().NoError(err)
	s.Equal(id, d.ID)
	s.Equal(store1, d.Store.ID)
	s.Require().Len(d.Lines, 2)
	s.Equal(reservation.CartEntryID("c1"), d.Lines[0].CartEntryID)
	s.Equal("Item A", d.Lines[0].ItemName)
	s.Equal(2, d.Lines[0].ItemCount)
	s.Equal(reservation.CartEntryID("c2"), d.Lines[1].CartEntryID)
	s.True(decimal.NewFromInt(24).Equal(d.TotalSalePrice))
}

func (s *WorkflowTestSuite) TestDetail_NonOwnerIsUnauthorized() {
	id := s.createOne()

	_, err := s.svc.GetReservationDetail(s.ctx, "intruder", id)
	s.Equal(apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = s.svc.GetReservationDetail(s.ctx, "intruder", "does-not-exist")
	s.Equal(apperr.KindUnauthorized, apperr.KindOf(err))
}

func (s *WorkflowTestSuite) TestDetail_DeletedItemIsNotFound() {
	id := s.createOne()
	s.store.DeleteItem("B")

	_, err := s.svc.GetReservationDetail(s.ctx, "u1", id)

	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
	s.Contains(err.Error(), `"B"`)
}

func (s *WorkflowTestSuite) TestDetail_DeletedCartIsNotFound() {
	id := s.createOne()
	s.store.DeleteCartEntry("c2")

	_, err := s.svc.GetReservationDetail(s.ctx, "u1", id)

	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (s *WorkflowTestSuite) TestDetail_UnaffectedByLaterCartChanges() {
	id := s.createOne()
	s.store.PutCartEntry(reservation.CartEntry{ID: "c1", UserID: "u1", ItemID: "A", StoreID: store1, ItemCount: 9, Active: true})

	d, err := s.svc.GetReservationDetail(s.ctx, "u1", id)

	s.Require().NoError(err)
	s.True(decimal.NewFromInt(24).Equal(d.TotalPrice), "recorded totals never change")
}
