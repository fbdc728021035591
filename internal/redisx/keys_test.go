package redisx

import "testing"

func TestReceiptCacheOutlivesCorrelationKeys(t *testing.T) {
	// receipts are immutable; their cache must not churn faster than the
	// correlation keys that produced them
	if TTLReceiptCache < TTLSessionIndex {
		t.Fatalf("receipt TTL %v shorter than session index TTL %v", TTLReceiptCache, TTLSessionIndex)
	}
	if TTLReceiptCache < TTLDedup {
		t.Fatalf("receipt TTL %v shorter than dedup TTL %v", TTLReceiptCache, TTLDedup)
	}
}
