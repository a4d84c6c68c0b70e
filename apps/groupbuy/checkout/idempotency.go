package checkout

import (
	"context"
	"errors"
	"time"

	"optifish/apps/groupbuy/model"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "optifish:groupbuy:idem:"
	inFlightValue = "in-flight"

	// DefaultLease is how long an unfinished request holds its key.
	DefaultLease = 30 * time.Second
)

// Idempotency reserves a key for the lifetime of one checkout and then remembers
// the transaction number it produced.
type Idempotency interface {
	// Begin returns the transaction number of a finished request, "" when the
	// caller now owns the key, or ErrRequestInFlight.
	Begin(ctx context.Context, key string) (string, error)
	Finish(ctx context.Context, key, transactionNo string) error
	Abort(ctx context.Context, key string) error
}

// RedisIdempotency keeps an in-flight marker for at most lease and a finished
// transaction number for ttl. The lease lets a key recover when Finish or Abort
// never runs.
type RedisIdempotency struct {
	rdb   *redis.Client
	ttl   time.Duration
	lease time.Duration
}

func NewRedisIdempotency(rdb *redis.Client, ttl, lease time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisIdempotency{rdb: rdb, ttl: ttl, lease: lease}
}

func (r *RedisIdempotency) Begin(ctx context.Context, key string) (string, error) {
	ok, err := r.rdb.SetNX(ctx, keyPrefix+key, inFlightValue, r.lease).Result()
	if err != nil {
		return "", pkgerrors.Wrap(err, "reserve idempotency key")
	}
	if ok {
		return "", nil
	}

	val, err := r.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the database guard decide
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "read idempotency key")
	}
	if val == inFlightValue {
		return "", model.ErrRequestInFlight
	}
	return val, nil
}

func (r *RedisIdempotency) Finish(ctx context.Context, key, transactionNo string) error {
	return pkgerrors.Wrap(r.rdb.Set(ctx, keyPrefix+key, transactionNo, r.ttl).Err(), "store idempotency result")
}

func (r *RedisIdempotency) Abort(ctx context.Context, key string) error {
	return pkgerrors.Wrap(r.rdb.Del(ctx, keyPrefix+key).Err(), "release idempotency key")
}
