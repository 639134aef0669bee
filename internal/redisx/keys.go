package redisx

import "time"

const (
	// Store read cache: store:{store_id} -> JSON of reservation.Store
	KeyStore = "store:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStoreCache = 10 * time.Minute
	TTLDedup      = 48 * time.Hour
)
