//go:build integration

package remote_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/authz/remote"
	"aegis/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *remote.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.cache = remote.NewRedisCache(s.redis.Client, "authz:test:", logger)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestSetGetRoundTrip() {
	ctx := context.Background()
	want := remote.CachedDecision{
		Allowed:       true,
		Reason:        "ALLOWED_BY_POLICY",
		MatchedPolicy: "editor",
		MatchedRole:   "senior-editor",
	}
	key := remote.CacheKey("user-1", "articles", "publish", "cat-1")
	s.cache.Set(ctx, key, want, time.Minute)

	got, ok := s.cache.Get(ctx, key)
	s.True(ok)
	s.Equal(want, got)
}

func (s *RedisCacheSuite) TestMissingKey() {
	_, ok := s.cache.Get(context.Background(), remote.CacheKey("nobody", "articles", "read", ""))
	s.False(ok)
}

func (s *RedisCacheSuite) TestTTLExpiry() {
	ctx := context.Background()
	key := remote.CacheKey("user-1", "articles", "read", "")
	s.cache.Set(ctx, key, remote.CachedDecision{Allowed: false, Reason: "DENIED_BY_DEFAULT"}, 500*time.Millisecond)

	_, ok := s.cache.Get(ctx, key)
	s.True(ok)

	time.Sleep(700 * time.Millisecond)
	_, ok = s.cache.Get(ctx, key)
	s.False(ok)
}

func (s *RedisCacheSuite) TestKeysIsolatedByCategory() {
	ctx := context.Background()
	s.cache.Set(ctx, remote.CacheKey("u", "articles", "publish", "cat-a"), remote.CachedDecision{Allowed: true}, time.Minute)

	_, ok := s.cache.Get(ctx, remote.CacheKey("u", "articles", "publish", "cat-b"))
	s.False(ok)
	_, ok = s.cache.Get(ctx, remote.CacheKey("u", "articles", "publish", ""))
	s.False(ok)
}
