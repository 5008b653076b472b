package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger is an EventLedger backed by Redis SET NX, which gives the
// atomic create-if-absent semantics the ledger contract requires. Entries
// expire after the TTL; use the mongo-backed ledger when the processing
// history must outlive the processor's redelivery window.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLedger returns a RedisLedger. A non-positive ttl disables
// expiry.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if client == nil {
		panic("billing: redis client is required")
	}
	return &RedisLedger{client: client, ttl: ttl, prefix: "billing:event:"}
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, eventType, resourceID string) (bool, error) {
	key := l.prefix + LedgerKey(eventType, resourceID)
	first, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return first, nil
}
