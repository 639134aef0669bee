package postgres

import (
	"context"

	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
)

// Upserts used by fixtures and local seeding. They run outside any
// reservation transaction.

func (s *Store) PutUser(ctx context.Context, u reservation.User) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO users(id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, u.ID)
	return err
}

func (s *Store) PutStore(ctx context.Context, st reservation.Store) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO stores(id, name, address, open_state, main_image)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name, address=EXCLUDED.address,
		    open_state=EXCLUDED.open_state, main_image=EXCLUDED.main_image`,
		st.ID, st.Name, st.Address, st.OpenState, st.MainImage)
	return err
}

func (s *Store) PutItem(ctx context.Context, it reservation.Item) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO items(id, store_id, name, quantity_available, sale_price, on_sale)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET store_id=EXCLUDED.store_id, name=EXCLUDED.name,
		    quantity_available=EXCLUDED.quantity_available,
		    sale_price=EXCLUDED.sale_price, on_sale=EXCLUDED.on_sale, updated_at=now()`,
		it.ID, it.StoreID, it.Name, it.QuantityAvailable, toNumeric(it.SalePrice), it.OnSale)
	return err
}

func (s *Store) PutCartEntry(ctx context.Context, c reservation.CartEntry) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO cart_entries(id, user_id, item_id, store_id, item_count, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET user_id=EXCLUDED.user_id, item_id=EXCLUDED.item_id, store_id=EXCLUDED.store_id,
		    item_count=EXCLUDED.item_count, active=EXCLUDED.active`,
		c.ID, c.UserID, c.ItemID, c.StoreID, c.ItemCount, c.Active)
	return err
}

func (s *Store) AddDeviceToken(ctx context.Context, store reservation.StoreID, token string) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO device_tokens(store_id, token) VALUES ($1,$2) ON CONFLICT DO NOTHING`, store, token)
	return err
}
