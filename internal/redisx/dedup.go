package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup tracks processed event ids per consumer scope.
type Dedup struct {
	Client *redis.Client
	Scope  string
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.Client, fmt.Sprintf(KeyDedup, d.Scope, eventID))
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.Client.Set(ctx, fmt.Sprintf(KeyDedup, d.Scope, eventID), "1", TTLDedup).Err()
}
