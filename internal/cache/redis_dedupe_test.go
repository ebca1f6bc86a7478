package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduper_Seen(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	dedup := NewRedisDeduper(rdb, 10*time.Second)
	ctx := context.Background()

	seen, err := dedup.Seen(ctx, "tenant-1", "MSG-1")
	if err != nil {
		t.Fatalf("Seen() error: %v", err)
	}
	if seen {
		t.Fatal("first delivery should not be seen")
	}

	seen, err = dedup.Seen(ctx, "tenant-1", "MSG-1")
	if err != nil {
		t.Fatalf("Seen() error: %v", err)
	}
	if !seen {
		t.Fatal("redelivery should be seen")
	}

	// Same message ID under a different tenant is a distinct delivery.
	seen, err = dedup.Seen(ctx, "tenant-2", "MSG-1")
	if err != nil {
		t.Fatalf("Seen() error: %v", err)
	}
	if seen {
		t.Fatal("tenants must not share dedupe state")
	}

	if ttl := mr.TTL(dedupeKey("tenant-1", "MSG-1")); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	// Expiry reopens the window.
	mr.FastForward(11 * time.Second)
	seen, err = dedup.Seen(ctx, "tenant-1", "MSG-1")
	if err != nil {
		t.Fatalf("Seen() error: %v", err)
	}
	if seen {
		t.Fatal("expired entry should not count as seen")
	}
}
