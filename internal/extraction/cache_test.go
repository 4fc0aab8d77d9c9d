package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/mock/gomock"
)

// setupTestCache creates a miniredis-backed cache around a mock model.
func setupTestCache(t *testing.T) (*CachedModelClient, *MockModelClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	mock := NewMockModelClient(gomock.NewController(t))
	return NewCachedModelClient(mock, client, time.Hour, nil), mock, mr
}

func TestCachedModelClient_HitSkipsModel(t *testing.T) {
	cache, mock, _ := setupTestCache(t)
	ctx := context.Background()

	mock.EXPECT().Generate(gomock.Any(), "prompt").Return(`{"results":[]}`, nil).Times(1)

	for i := 0; i < 3; i++ {
		text, err := cache.Generate(ctx, "prompt")
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		if text != `{"results":[]}` {
			t.Fatalf("call %d: unexpected text %q", i, text)
		}
	}
}

func TestCachedModelClient_EmptyReplyNotCached(t *testing.T) {
	cache, mock, mr := setupTestCache(t)

	mock.EXPECT().Generate(gomock.Any(), "p").Return("", nil).Times(2)

	cache.Generate(context.Background(), "p")
	cache.Generate(context.Background(), "p")

	if mr.Exists(modelCacheKey("p")) {
		t.Error("empty reply should not be stored")
	}
}

func TestCachedModelClient_ErrorPassesThrough(t *testing.T) {
	cache, mock, _ := setupTestCache(t)
	boom := errors.New("boom")

	mock.EXPECT().Generate(gomock.Any(), "p").Return("", boom)

	if _, err := cache.Generate(context.Background(), "p"); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestCachedModelClient_RedisDownFallsThrough(t *testing.T) {
	cache, mock, mr := setupTestCache(t)
	mr.Close()

	mock.EXPECT().Generate(gomock.Any(), "p").Return("ok", nil)

	text, err := cache.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("expected uncached call to succeed, got %v", err)
	}
	if text != "ok" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestCachedModelClient_TTL(t *testing.T) {
	cache, mock, mr := setupTestCache(t)
	mock.EXPECT().Generate(gomock.Any(), "p").Return("ok", nil)

	cache.Generate(context.Background(), "p")

	if ttl := mr.TTL(modelCacheKey("p")); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %v", ttl)
	}
}
