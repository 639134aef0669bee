package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/ariefcatur/go-stock-reservations/internal/txn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATEs PostgreSQL raises when a serializable transaction lost a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is the part of *pgxpool.Pool and pgx.Tx the stores use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

var (
	_ txn.Backend[reservation.Tx] = (*Store)(nil)
	_ reservation.Reader          = (*Store)(nil)
	_ reservation.Tx              = (*txView)(nil)
)

// Attempt runs fn inside one SERIALIZABLE transaction. Serialization
// failures come back wrapped in txn.ErrConflict.
func (s *Store) Attempt(ctx context.Context, fn func(ctx context.Context, tx reservation.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txView{q: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected) {
		return fmt.Errorf("%w: %w", txn.ErrConflict, err)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.ErrNotFound
	}
	return err
}

// txView is the reservation.Tx bound to one pgx transaction.
type txView struct{ q querier }

func (v *txView) FindUser(ctx context.Context, id reservation.UserID) (reservation.User, error) {
	var u reservation.User
	err := v.q.QueryRow(ctx, `SELECT id FROM users WHERE id=$1`, id).Scan(&u.ID)
	if err != nil {
		return reservation.User{}, notFound(err)
	}
	return u, nil
}

func (v *txView) ActiveCartEntries(ctx context.Context, userID reservation.UserID) ([]reservation.CartEntry, error) {
	rows, err := v.q.Query(ctx, `
		SELECT id, user_id, item_id, store_id, item_count, active
		FROM cart_entries
		WHERE user_id=$1 AND active
		ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.CartEntry
	for rows.Next() {
		var c reservation.CartEntry
		if err := rows.Scan(&c.ID, &c.UserID, &c.ItemID, &c.StoreID, &c.ItemCount, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (v *txView) GetItem(ctx context.Context, id reservation.ItemID) (reservation.Item, error) {
	return getItem(ctx, v.q, id)
}

// DecrementItemQuantity is the conditional update: it only applies when the
// row still holds at least n units.
func (v *txView) DecrementItemQuantity(ctx context.Context, id reservation.ItemID, n int) error {
	ct, err := v.q.Exec(ctx, `
		UPDATE items
		SET quantity_available = quantity_available - $2, updated_at = now()
		WHERE id=$1 AND quantity_available >= $2`, id, n)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := v.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return reservation.ErrNotFound
	}
	return reservation.ErrInsufficientQuantity
}

func (v *txView) DeactivateCartEntries(ctx context.Context, ids []reservation.CartEntryID) error {
	ct, err := v.q.Exec(ctx, `UPDATE cart_entries SET active=false WHERE id = ANY($1)`, cartIDs(ids))
	if err != nil {
		return err
	}
	if int(ct.RowsAffected()) != len(ids) {
		return reservation.ErrNotFound
	}
	return nil
}

func (v *txView) InsertReservation(ctx context.Context, r reservation.Reservation) error {
	_, err := v.q.Exec(ctx, `
		INSERT INTO reservations(id, user_id, store_id, cart_entry_ids, total_price, total_sale_price, note, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.UserID, r.StoreID, cartIDs(r.CartEntryIDs),
		toNumeric(r.TotalPrice), toNumeric(r.TotalSalePrice),
		r.Note, string(r.Status), r.CreatedAt,
	)
	return err
}

// Reader

func (s *Store) ReservationsByUser(ctx context.Context, userID reservation.UserID) ([]reservation.Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, store_id, cart_entry_ids, total_price, total_sale_price, note, status, created_at
		FROM reservations
		WHERE user_id=$1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetReservation(ctx context.Context, id reservation.ReservationID) (reservation.Reservation, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, user_id, store_id, cart_entry_ids, total_price, total_sale_price, note, status, created_at
		FROM reservations WHERE id=$1`, id)
	r, err := scanReservation(row)
	if err != nil {
		return reservation.Reservation{}, notFound(err)
	}
	return r, nil
}

func (s *Store) GetStore(ctx context.Context, id reservation.StoreID) (reservation.Store, error) {
	var st reservation.Store
	err := s.DB.QueryRow(ctx, `SELECT id, name, address, open_state, main_image FROM stores WHERE id=$1`, id).
		Scan(&st.ID, &st.Name, &st.Address, &st.OpenState, &st.MainImage)
	if err != nil {
		return reservation.Store{}, notFound(err)
	}
	return st, nil
}

func (s *Store) GetCartEntry(ctx context.Context, id reservation.CartEntryID) (reservation.CartEntry, error) {
	var c reservation.CartEntry
	err := s.DB.QueryRow(ctx, `SELECT id, user_id, item_id, store_id, item_count, active FROM cart_entries WHERE id=$1`, id).
		Scan(&c.ID, &c.UserID, &c.ItemID, &c.StoreID, &c.ItemCount, &c.Active)
	if err != nil {
		return reservation.CartEntry{}, notFound(err)
	}
	return c, nil
}

func (s *Store) GetItem(ctx context.Context, id reservation.ItemID) (reservation.Item, error) {
	return getItem(ctx, s.DB, id)
}

func (s *Store) DeviceTokensByStore(ctx context.Context, id reservation.StoreID) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT token FROM device_tokens WHERE store_id=$1 ORDER BY token`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func getItem(ctx context.Context, q querier, id reservation.ItemID) (reservation.Item, error) {
	var (
		it    reservation.Item
		price pgtype.Numeric
	)
	err := q.QueryRow(ctx, `
		SELECT id, store_id, name, quantity_available, sale_price, on_sale
		FROM items WHERE id=$1`, id).
		Scan(&it.ID, &it.StoreID, &it.Name, &it.QuantityAvailable, &price, &it.OnSale)
	if err != nil {
		return reservation.Item{}, notFound(err)
	}
	if it.SalePrice, err = fromNumeric(price); err != nil {
		return reservation.Item{}, fmt.Errorf("item %s sale_price: %w", id, err)
	}
	return it, nil
}

func scanReservation(row pgx.Row) (reservation.Reservation, error) {
	var (
		r           reservation.Reservation
		ids         []string
		total, sale pgtype.Numeric
		status      string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.StoreID, &ids, &total, &sale, &r.Note, &status, &r.CreatedAt); err != nil {
		return reservation.Reservation{}, err
	}
	r.CartEntryIDs = make([]reservation.CartEntryID, len(ids))
	for i, id := range ids {
		r.CartEntryIDs[i] = reservation.CartEntryID(id)
	}
	var err error
	if r.TotalPrice, err = fromNumeric(total); err != nil {
		return reservation.Reservation{}, err
	}
	if r.TotalSalePrice, err = fromNumeric(sale); err != nil {
		return reservation.Reservation{}, err
	}
	r.Status = reservation.Status(status)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func cartIDs(ids []reservation.CartEntryID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
