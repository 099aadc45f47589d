package sequence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	values  map[string]int64
	expired []string
	err     error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.values[key]++
	return redis.NewIntResult(f.values[key], nil)
}

func (f *fakeCounter) ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd {
	f.expired = append(f.expired, key)
	return redis.NewBoolResult(true, nil)
}

func TestNextPayoutCode(t *testing.T) {
	fc := &fakeCounter{values: map[string]int64{}}
	g := &RedisGenerator{
		rdb: fc,
		now: func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) },
	}

	first, err := g.NextPayoutCode(context.Background())
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^PO-260309-001[A-Z2-9]{2}$`), first)

	second, err := g.NextPayoutCode(context.Background())
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^PO-260309-002[A-Z2-9]{2}$`), second)

	require.Equal(t, []string{"seq:PO:260309"}, fc.expired)
}

func TestNextPayoutCodeRedisDown(t *testing.T) {
	g := &RedisGenerator{
		rdb: &fakeCounter{err: errors.New("connection refused")},
		now: time.Now,
	}

	_, err := g.NextPayoutCode(context.Background())
	require.Error(t, err)
}
