package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaseManager hands out exclusive, expiring per-asset claims backed by
// Redis. The queue is at-least-once, so exclusivity cannot be left to queue
// semantics: a redelivered asset must be rejected while its lease is live,
// and a crashed worker's lease must expire rather than block reprocessing
// forever.
type LeaseManager struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeaseManager(rdb *redis.Client, ttl time.Duration) *LeaseManager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &LeaseManager{rdb: rdb, ttl: ttl}
}

// Lease is a held claim. Only the owner that acquired it can release or
// extend it; an expired lease stolen by another worker is left alone.
type Lease struct {
	m     *LeaseManager
	key   string
	owner string
}

// Acquire claims the asset. Fails with ErrAlreadyClaimed while another
// owner's lease is live.
func (m *LeaseManager) Acquire(ctx context.Context, assetID uuid.UUID) (*Lease, error) {
	key := leaseKey(assetID)
	owner := uuid.New().String()

	ok, err := m.rdb.SetNX(ctx, key, owner, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyClaimed
	}
	return &Lease{m: m, key: key, owner: owner}, nil
}

// releaseScript deletes the lease only if this owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.m.rdb, []string{l.key}, l.owner).Err()
}

// extendScript refreshes the expiry only if this owner still holds it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Extend refreshes the lease for a long-running asset. Returns false if the
// lease expired and is no longer held by this owner.
func (l *Lease) Extend(ctx context.Context) (bool, error) {
	res, err := extendScript.Run(ctx, l.m.rdb, []string{l.key}, l.owner, l.m.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func leaseKey(assetID uuid.UUID) string {
	return "media:lease:" + assetID.String()
}
