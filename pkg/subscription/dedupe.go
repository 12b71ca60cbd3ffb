package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimState is the outcome of claiming an event id.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the event and must Complete or
	// Release it.
	ClaimAcquired ClaimState = iota
	// ClaimDone means the event was already applied.
	ClaimDone
	// ClaimInFlight means another delivery currently owns the event.
	ClaimInFlight
)

// Lease identifies an acquired claim.
type Lease struct {
	Key   string
	Token string
}

// Deduper records processed webhook event ids with bounded retention.
type Deduper interface {
	Claim(ctx context.Context, key string) (Lease, ClaimState, error)
	// Complete marks the event processed for the retention window.
	Complete(ctx context.Context, lease Lease) error
	// Release drops an acquired claim so that a redelivery can retry.
	Release(ctx context.Context, lease Lease) error
}

const (
	DefaultDedupeLease     = 2 * time.Minute
	DefaultDedupeRetention = 7 * 24 * time.Hour

	doneMarker = "done"
)

// EventKey is the dedupe key of a processor event.
func EventKey(m Meta) string {
	return "billing:event:" + m.Processor + ":" + m.ID
}

// RedisDeduper keeps claims in Redis.
type RedisDeduper struct {
	client    redis.Cmdable
	lease     time.Duration
	retention time.Duration
}

func NewRedisDeduper(client redis.Cmdable, lease, retention time.Duration) *RedisDeduper {
	if lease <= 0 {
		lease = DefaultDedupeLease
	}
	if retention <= 0 {
		retention = DefaultDedupeRetention
	}
	return &RedisDeduper{client: client, lease: lease, retention: retention}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (Lease, ClaimState, error) {
	lease := Lease{Key: key, Token: uuid.NewString()}
	ok, err := d.client.SetNX(ctx, key, lease.Token, d.lease).Result()
	if err != nil {
		return Lease{}, 0, err
	}
	if ok {
		return lease, ClaimAcquired, nil
	}

	v, err := d.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// The previous claim expired between the two calls.
		return d.Claim(ctx, key)
	case err != nil:
		return Lease{}, 0, err
	case v == doneMarker:
		return Lease{}, ClaimDone, nil
	default:
		return Lease{}, ClaimInFlight, nil
	}
}

func (d *RedisDeduper) Complete(ctx context.Context, lease Lease) error {
	return d.client.Set(ctx, lease.Key, doneMarker, d.retention).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes the claim only while it is still owned by lease.
func (d *RedisDeduper) Release(ctx context.Context, lease Lease) error {
	return releaseScript.Run(ctx, d.client, []string{lease.Key}, lease.Token).Err()
}

// MemoryDeduper keeps claims in process memory.
type MemoryDeduper struct {
	mu        sync.Mutex
	entries   map[string]memoryClaim
	lease     time.Duration
	retention time.Duration
	now       func() time.Time
}

type memoryClaim struct {
	token   string
	done    bool
	expires time.Time
}

func NewMemoryDeduper(lease, retention time.Duration) *MemoryDeduper {
	if lease <= 0 {
		lease = DefaultDedupeLease
	}
	if retention <= 0 {
		retention = DefaultDedupeRetention
	}
	return &MemoryDeduper{
		entries:   make(map[string]memoryClaim),
		lease:     lease,
		retention: retention,
		now:       time.Now,
	}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (Lease, ClaimState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if c, ok := d.entries[key]; ok && now.Before(c.expires) {
		if c.done {
			return Lease{}, ClaimDone, nil
		}
		return Lease{}, ClaimInFlight, nil
	}

	lease := Lease{Key: key, Token: uuid.NewString()}
	d.entries[key] = memoryClaim{token: lease.Token, expires: now.Add(d.lease)}
	d.sweep(now)
	return lease, ClaimAcquired, nil
}

func (d *MemoryDeduper) Complete(_ context.Context, lease Lease) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[lease.Key] = memoryClaim{done: true, expires: d.now().Add(d.retention)}
	return nil
}

func (d *MemoryDeduper) Release(_ context.Context, lease Lease) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.entries[lease.Key]; ok && !c.done && c.token == lease.Token {
		delete(d.entries, lease.Key)
	}
	return nil
}

func (d *MemoryDeduper) sweep(now time.Time) {
	for k, c := range d.entries {
		if !now.Before(c.expires) {
			delete(d.entries, k)
		}
	}
}
