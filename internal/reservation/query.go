package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
)

// ListReservations returns the user's reservations, newest first, each with
// its store and a preview of the first cart item.
func (s *Service) ListReservations(ctx context.Context, userID UserID) ([]ReservationSummary, error) {
	rs, err := s.reader.ReservationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	out := make([]ReservationSummary, 0, len(rs))
	for _, r := range rs {
		store, err := s.reader.GetStore(ctx, r.StoreID)
		if err != nil {
			return nil, lookupErr(err, "store %q not found", r.StoreID)
		}
		preview, err := s.firstItemPreview(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, ReservationSummary{
			ID:             r.ID,
			Store:          store,
			FirstItem:      preview,
			TotalPrice:     r.TotalPrice,
			TotalSalePrice: r.TotalSalePrice,
			Status:         r.Status,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) firstItemPreview(ctx context.Context, r Reservation) (ItemPreview, error) {
	if len(r.CartEntryIDs) == 0 {
		return emptyPreview, nil
	}
	entry, err := s.reader.GetCartEntry(ctx, r.CartEntryIDs[0])
	if errors.Is(err, ErrNotFound) {
		return emptyPreview, nil
	}
	if err != nil {
		return ItemPreview{}, fmt.Errorf("load cart entry %s: %w", r.CartEntryIDs[0], err)
	}
	item, err := s.reader.GetItem(ctx, entry.ItemID)
	if errors.Is(err, ErrNotFound) {
		return emptyPreview, nil
	}
	if err != nil {
		return ItemPreview{}, fmt.Errorf("load item %s: %w", entry.ItemID, err)
	}
	return ItemPreview{Name: item.Name, Quantity: entry.ItemCount}, nil
}

// GetReservationDetail returns a reservation owned by userID. A caller that
// does not own the reservation gets Unauthorized whether or not it exists.
func (s *Service) GetReservationDetail(ctx context.Context, userID UserID, id ReservationID) (ReservationDetail, error) {
	r, err := s.reader.GetReservation(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return ReservationDetail{}, apperr.Unauthorized("reservation %q is not accessible", id)
	case err != nil:
		return ReservationDetail{}, fmt.Errorf("load reservation %s: %w", id, err)
	case r.UserID != userID:
		return ReservationDetail{}, apperr.Unauthorized("reservation %q is not accessible", id)
	}

	store, err := s.reader.GetStore(ctx, r.StoreID)
	if err != nil {
		return ReservationDetail{}, lookupErr(err, "store %q not found", r.StoreID)
	}

	lines := make([]CartLine, 0, len(r.CartEntryIDs))
	for _, cid := range r.CartEntryIDs {
		entry, err := s.reader.GetCartEntry(ctx, cid)
		if err != nil {
			return ReservationDetail{}, lookupErr(err, "cart entry %q not found", cid)
		}
		item, err := s.reader.GetItem(ctx, entry.ItemID)
		if err != nil {
			return ReservationDetail{}, lookupErr(err, "item %q not found", entry.ItemID)
		}
		lines = append(lines, CartLine{
			CartEntryID: entry.ID,
			ItemID:      item.ID,
			ItemName:    item.Name,
			ItemCount:   entry.ItemCount,
			SalePrice:   item.SalePrice,
		})
	}

	return ReservationDetail{
		ID:             r.ID,
		Store:          store,
		Lines:          lines,
		TotalPrice:     r.TotalPrice,
		TotalSalePrice: r.TotalSalePrice,
		Note:           r.Note,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}, nil
}
