package correlate

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cahyo88/go-tenant-payments/internal/redisx"
)

// RedisIndex implements SessionIndex on redis. Entries outlive the 24h
// session expiry so late webhooks still correlate.
type RedisIndex struct {
	Client *redis.Client
}

func (ix *RedisIndex) Put(ctx context.Context, sessionID, tenantID, requestID string) error {
	key := fmt.Sprintf(redisx.KeySessionIndex, sessionID)
	return ix.Client.Set(ctx, key, tenantID+":"+requestID, redisx.TTLSessionIndex).Err()
}

func (ix *RedisIndex) Lookup(ctx context.Context, sessionID string) (string, string, bool, error) {
	key := fmt.Sprintf(redisx.KeySessionIndex, sessionID)
	v, err := ix.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	tenantID, requestID, found := strings.Cut(v, ":")
	if !found {
		return "", "", false, nil
	}
	return tenantID, requestID, true, nil
}
