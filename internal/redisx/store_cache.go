package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StoreCache is a reservation.Reader whose GetStore reads through Redis.
// Any Redis failure falls back to the wrapped reader.
type StoreCache struct {
	reservation.Reader
	rdb redis.Cmdable
	log zerolog.Logger
}

func NewStoreCache(r reservation.Reader, rdb redis.Cmdable, log zerolog.Logger) *StoreCache {
	return &StoreCache{Reader: r, rdb: rdb, log: log.With().Str("component", "store_cache").Logger()}
}

func (c *StoreCache) GetStore(ctx context.Context, id reservation.StoreID) (reservation.Store, error) {
	key := fmt.Sprintf(KeyStore, id)

	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var st reservation.Store
		if err := json.Unmarshal(b, &st); err == nil {
			return st, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	st, err := c.Reader.GetStore(ctx, id)
	if err != nil {
		return reservation.Store{}, err
	}
	if b, err := json.Marshal(st); err == nil {
		if err := c.rdb.Set(ctx, key, b, TTLStoreCache).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return st, nil
}
