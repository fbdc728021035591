package redisx

import "time"

const (
	// Secondary index provider session -> "{tenant_id}:{request_id}".
	// Written when a checkout session is attached to a PaymentRequest so
	// confirmation events missing metadata still correlate in O(1).
	KeySessionIndex = "psession:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cache generated receipt documents: receipt:{session_id}
	KeyReceiptCache = "receipt:%s"
)

var (
	TTLSessionIndex = 72 * time.Hour
	TTLDedup        = 48 * time.Hour

	// receipts are immutable once generated; the cache only turns over
	// for storage hygiene
	TTLReceiptCache = 30 * 24 * time.Hour
)
