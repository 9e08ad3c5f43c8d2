package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

func newTestKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, NewRedisKV(c)
}

func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	mr, kv := newTestKV(t)

	_, err := kv.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSummaryCache(t *testing.T) {
	ctx := context.Background()
	mr, kv := newTestKV(t)
	cache := NewSummaryCache(kv, 30*time.Minute)

	want := domain.BiometricSummary{AvgBPM: 72, AvgHRV: 44, MinBPM: 66, MaxBPM: 79, ScanDuration: 30, TotalReadings: 150, ValidReadings: 120, Source: domain.SourceFallback}
	require.NoError(t, cache.Put(ctx, "s1", want))
	assert.True(t, mr.Exists("heradx:biometrics:summary:s1"))
	assert.Equal(t, 30*time.Minute, mr.TTL(SummaryKey("s1")))

	got, err := cache.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = cache.Get(ctx, "s2")
	assert.ErrorIs(t, err, ErrMiss)

	mr.FastForward(31 * time.Minute)
	_, err = cache.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrMiss, "entry expires with the TTL")
}

func TestSummaryCache_Corrupt(t *testing.T) {
	ctx := context.Background()
	mr, kv := newTestKV(t)
	require.NoError(t, mr.Set(SummaryKey("bad"), "{not json"))

	_, err := NewSummaryCache(kv, 0).Get(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	_ = c.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
