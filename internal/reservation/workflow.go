package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-stock-reservations/internal/apperr"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// CreateReservation turns the user's active cart into a reservation. Stock
// decrements, cart deactivation and the reservation insert commit together or
// not at all. The store is notified in the background after the commit.
func (s *Service) CreateReservation(ctx context.Context, req CreateReservationRequest, userID UserID) (ReservationID, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", string(userID)))

	var created Reservation
	err := s.coord.Run(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.reserve(ctx, tx, req, userID)
		if err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		s.log.Info().Str("user_id", string(userID)).Str("kind", string(apperr.KindOf(err))).Err(err).Msg("reservation rejected")
		return "", err
	}

	span.SetAttributes(
		attribute.String("reservation.id", string(created.ID)),
		attribute.Int("reservation.lines", len(created.CartEntryIDs)),
	)
	s.log.Info().
		Str("reservation_id", string(created.ID)).
		Str("user_id", string(userID)).
		Str("store_id", string(created.StoreID)).
		Str("total_price", created.TotalPrice.String()).
		Msg("reservation created")

	s.notifyStore(ctx, created)
	return created.ID, nil
}

// reserve is the unit of work. It runs once per transaction attempt and must
// only touch tx.
func (s *Service) reserve(ctx context.Context, tx Tx, req CreateReservationRequest, userID UserID) (Reservation, error) {
	user, err := tx.FindUser(ctx, userID)
	if err != nil {
		return Reservation{}, lookupErr(err, "user %q not found", userID)
	}

	entries, err := tx.ActiveCartEntries(ctx, user.ID)
	if err != nil {
		return Reservation{}, fmt.Errorf("load cart: %w", err)
	}
	if len(entries) == 0 {
		return Reservation{}, apperr.InvalidState("cart is empty")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	storeID := entries[0].StoreID
	for _, e := range entries[1:] {
		if e.StoreID != storeID {
			return Reservation{}, apperr.InvalidState("cart mixes items from stores %q and %q", storeID, e.StoreID)
		}
	}

	total := decimal.Zero
	ids := make([]CartEntryID, 0, len(entries))
	for _, e := range entries {
		item, err := tx.GetItem(ctx, e.ItemID)
		if err != nil {
			return Reservation{}, lookupErr(err, "item %q not found", e.ItemID)
		}
		if !item.OnSale {
			return Reservation{}, apperr.InvalidState("item %q is not on sale", item.Name)
		}
		if item.QuantityAvailable < e.ItemCount {
			return Reservation{}, insufficient(item, e.ItemCount)
		}
		if err := tx.DecrementItemQuantity(ctx, item.ID, e.ItemCount); err != nil {
			if errors.Is(err, ErrInsufficientQuantity) {
				return Reservation{}, insufficient(item, e.ItemCount)
			}
			return Reservation{}, lookupErr(err, "item %q not found", item.ID)
		}
		total = total.Add(item.SalePrice.Mul(decimal.NewFromInt(int64(e.ItemCount))))
		ids = append(ids, e.ID)
	}

	if err := tx.DeactivateCartEntries(ctx, ids); err != nil {
		return Reservation{}, lookupErr(err, "cart entry of user %q not found", userID)
	}

	r := Reservation{
		ID:             s.newID(),
		UserID:         user.ID,
		StoreID:        storeID,
		CartEntryIDs:   ids,
		TotalPrice:     total,
		TotalSalePrice: total,
		Note:           req.Note,
		Status:         StatusCreated,
		CreatedAt:      s.now(),
	}
	if err := tx.InsertReservation(ctx, r); err != nil {
		return Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	return r, nil
}

// notifyStore starts delivery and returns at once. The delivery outlives the
// caller's context and is bounded by notifyTimeout.
func (s *Service) notifyStore(ctx context.Context, r Reservation) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	s.notifying.Add(1)
	go func() {
		defer s.notifying.Done()
		defer cancel()
		s.deliver(ctx, r)
	}()
}

func (s *Service) deliver(ctx context.Context, r Reservation) {
	log := s.log.With().Str("reservation_id", string(r.ID)).Str("store_id", string(r.StoreID)).Logger()

	tokens, err := s.reader.DeviceTokensByStore(ctx, r.StoreID)
	if err != nil {
		log.Warn().Err(err).Msg("load device tokens")
		return
	}
	if len(tokens) == 0 {
		log.Debug().Msg("store has no device tokens")
		return
	}
	if s.sink.SendNewReservationMessage(ctx, tokens) {
		log.Info().Int("tokens", len(tokens)).Msg("reservation notification sent")
	} else {
		log.Warn().Int("tokens", len(tokens)).Msg("reservation notification failed")
	}
}

func insufficient(item Item, requested int) error {
	return apperr.InsufficientStock("item %q is out of stock: requested %d, available %d", item.Name, requested, item.QuantityAvailable)
}

// lookupErr turns a store ErrNotFound into a domain NotFound and leaves
// everything else for the coordinator to retry.
func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}
