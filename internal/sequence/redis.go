package sequence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis counts with INCR on booking_seq:<day>.  The key expires two days
// after its last use.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb, prefix: "booking_seq"} }

func (r *Redis) Next(ctx context.Context, day string) (int64, error) {
	key := r.prefix + ":" + day
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
