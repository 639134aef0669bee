// Package memstore is an in-process implementation of the reservation stores.
//
// Transactions are optimistic: every attempt reads through a private view,
// remembers the version of each row it saw and buffers its writes. Commit
// validates the read set under the store lock and fails with txn.ErrConflict
// when another commit changed any of those rows in the meantime.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/ariefcatur/go-stock-reservations/internal/txn"
)

type versioned[V any] struct {
	val V
	ver uint64
}

type Store struct {
	mu           sync.RWMutex
	seq          uint64
	users        map[reservation.UserID]versioned[reservation.User]
	stores       map[reservation.StoreID]reservation.Store
	items        map[reservation.ItemID]versioned[reservation.Item]
	carts        map[reservation.CartEntryID]versioned[reservation.CartEntry]
	cartSets     map[reservation.UserID]uint64
	reservations map[reservation.ReservationID]reservation.Reservation
	tokens       map[reservation.StoreID][]string
}

func New() *Store {
	return &Store{
		users:        map[reservation.UserID]versioned[reservation.User]{},
		stores:       map[reservation.StoreID]reservation.Store{},
		items:        map[reservation.ItemID]versioned[reservation.Item]{},
		carts:        map[reservation.CartEntryID]versioned[reservation.CartEntry]{},
		cartSets:     map[reservation.UserID]uint64{},
		reservations: map[reservation.ReservationID]reservation.Reservation{},
		tokens:       map[reservation.StoreID][]string{},
	}
}

var (
	_ txn.Backend[reservation.Tx] = (*Store)(nil)
	_ reservation.Reader          = (*Store)(nil)
	_ reservation.Tx              = (*view)(nil)
)

// Attempt runs fn against a fresh view and commits its buffered writes.
func (s *Store) Attempt(ctx context.Context, fn func(ctx context.Context, tx reservation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := newView(s)
	if err := fn(ctx, v); err != nil {
		return err
	}
	return s.commit(v)
}

func (s *Store) commit(v *view) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ver := range v.userReads {
		if s.users[id].ver != ver {
			return txn.ErrConflict
		}
	}
	for id, ver := range v.itemReads {
		if s.items[id].ver != ver {
			return txn.ErrConflict
		}
	}
	for id, ver := range v.cartReads {
		if s.carts[id].ver != ver {
			return txn.ErrConflict
		}
	}
	for id, ver := range v.cartSetReads {
		if s.cartSets[id] != ver {
			return txn.ErrConflict
		}
	}
	for _, r := range v.inserts {
		if _, ok := s.reservations[r.ID]; ok {
			return txn.ErrConflict
		}
	}

	for id, it := range v.itemWrites {
		s.items[id] = versioned[reservation.Item]{val: it, ver: s.next()}
	}
	for id, c := range v.cartWrites {
		s.carts[id] = versioned[reservation.CartEntry]{val: c, ver: s.next()}
		s.cartSets[c.UserID] = s.next()
	}
	for _, r := range v.inserts {
		s.reservations[r.ID] = cloneReservation(r)
	}
	return nil
}

// next must be called with mu held.
func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// Seeding. These write outside any transaction and bump versions, so they
// conflict with in-flight attempts that read the same rows.

func (s *Store) PutUser(u reservation.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = versioned[reservation.User]{val: u, ver: s.next()}
}

func (s *Store) PutStore(st reservation.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[st.ID] = st
}

func (s *Store) PutItem(it reservation.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = versioned[reservation.Item]{val: it, ver: s.next()}
}

func (s *Store) PutCartEntry(c reservation.CartEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[c.ID] = versioned[reservation.CartEntry]{val: c, ver: s.next()}
	s.cartSets[c.UserID] = s.next()
}

func (s *Store) DeleteCartEntry(id reservation.CartEntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[id]; ok {
		delete(s.carts, id)
		s.cartSets[c.val.UserID] = s.next()
	}
}

func (s *Store) DeleteItem(id reservation.ItemID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *Store) AddDeviceToken(store reservation.StoreID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[store] = append(s.tokens[store], token)
}

// Reader

func (s *Store) ReservationsByUser(ctx context.Context, userID reservation.UserID) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetReservation(ctx context.Context, id reservation.ReservationID) (reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	return cloneReservation(r), nil
}

func (s *Store) GetStore(ctx context.Context, id reservation.StoreID) (reservation.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return reservation.Store{}, reservation.ErrNotFound
	}
	return st, nil
}

func (s *Store) GetCartEntry(ctx context.Context, id reservation.CartEntryID) (reservation.CartEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[id]
	if !ok {
		return reservation.CartEntry{}, reservation.ErrNotFound
	}
	return c.val, nil
}

func (s *Store) GetItem(ctx context.Context, id reservation.ItemID) (reservation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return reservation.Item{}, reservation.ErrNotFound
	}
	return it.val, nil
}

func (s *Store) DeviceTokensByStore(ctx context.Context, id reservation.StoreID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tokens[id]...), nil
}

func cloneReservation(r reservation.Reservation) reservation.Reservation {
	r.CartEntryIDs = append([]reservation.CartEntryID(nil), r.CartEntryIDs...)
	return r
}
