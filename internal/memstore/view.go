package memstore

import (
	"context"

	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
)

// view is one transaction attempt. Reads are repeatable within the attempt
// and see the attempt's own buffered writes.
type view struct {
	s *Store

	userReads    map[reservation.UserID]uint64
	itemReads    map[reservation.ItemID]uint64
	cartReads    map[reservation.CartEntryID]uint64
	cartSetReads map[reservation.UserID]uint64

	users map[reservation.UserID]*reservation.User
	items map[reservation.ItemID]*reservation.Item
	carts map[reservation.CartEntryID]*reservation.CartEntry

	itemWrites map[reservation.ItemID]reservation.Item
	cartWrites map[reservation.CartEntryID]reservation.CartEntry
	inserts    []reservation.Reservation
}

func newView(s *Store) *view {
	return &view{
		s:            s,
		userReads:    map[reservation.UserID]uint64{},
		itemReads:    map[reservation.ItemID]uint64{},
		cartReads:    map[reservation.CartEntryID]uint64{},
		cartSetReads: map[reservation.UserID]uint64{},
		users:        map[reservation.UserID]*reservation.User{},
		items:        map[reservation.ItemID]*reservation.Item{},
		carts:        map[reservation.CartEntryID]*reservation.CartEntry{},
		itemWrites:   map[reservation.ItemID]reservation.Item{},
		cartWrites:   map[reservation.CartEntryID]reservation.CartEntry{},
	}
}

func (v *view) FindUser(ctx context.Context, id reservation.UserID) (reservation.User, error) {
	u, seen := v.users[id]
	if !seen {
		v.s.mu.RLock()
		rec, ok := v.s.users[id]
		v.s.mu.RUnlock()
		v.userReads[id] = rec.ver
		if ok {
			u = &rec.val
		}
		v.users[id] = u
	}
	if u == nil {
		return reservation.User{}, reservation.ErrNotFound
	}
	return *u, nil
}

func (v *view) ActiveCartEntries(ctx context.Context, userID reservation.UserID) ([]reservation.CartEntry, error) {
	v.s.mu.RLock()
	v.cartSetReads[userID] = v.s.cartSets[userID]
	var fresh []versioned[reservation.CartEntry]
	for _, rec := range v.s.carts {
		if rec.val.UserID == userID {
			fresh = append(fresh, rec)
		}
	}
	v.s.mu.RUnlock()

	var out []reservation.CartEntry
	for _, rec := range fresh {
		c := v.cart(rec)
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// cart returns the attempt's copy of a cart row, recording the read on first sight.
func (v *view) cart(rec versioned[reservation.CartEntry]) reservation.CartEntry {
	id := rec.val.ID
	if c, ok := v.cartWrites[id]; ok {
		return c
	}
	if c, ok := v.carts[id]; ok && c != nil {
		return *c
	}
	v.cartReads[id] = rec.ver
	c := rec.val
	v.carts[id] = &c
	return c
}

func (v *view) GetItem(ctx context.Context, id reservation.ItemID) (reservation.Item, error) {
	if it, ok := v.itemWrites[id]; ok {
		return it, nil
	}
	it, seen := v.items[id]
	if !seen {
		v.s.mu.RLock()
		rec, ok := v.s.items[id]
		v.s.mu.RUnlock()
		v.itemReads[id] = rec.ver
		if ok {
			it = &rec.val
		}
		v.items[id] = it
	}
	if it == nil {
		return reservation.Item{}, reservation.ErrNotFound
	}
	return *it, nil
}

func (v *view) DecrementItemQuantity(ctx context.Context, id reservation.ItemID, n int) error {
	it, err := v.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if it.QuantityAvailable < n {
		return reservation.ErrInsufficientQuantity
	}
	it.QuantityAvailable -= n
	v.itemWrites[id] = it
	return nil
}

func (v *view) DeactivateCartEntries(ctx context.Context, ids []reservation.CartEntryID) error {
	for _, id := range ids {
		c, ok := v.cartWrites[id]
		if !ok {
			cp, seen := v.carts[id]
			if !seen {
				v.s.mu.RLock()
				rec, exists := v.s.carts[id]
				v.s.mu.RUnlock()
				if !exists {
					v.cartReads[id] = 0
					return reservation.ErrNotFound
				}
				c = v.cart(rec)
			} else {
				c = *cp
			}
		}
		c.Active = false
		v.cartWrites[id] = c
	}
	return nil
}

func (v *view) InsertReservation(ctx context.Context, r reservation.Reservation) error {
	v.inserts = append(v.inserts, cloneReservation(r))
	return nil
}
