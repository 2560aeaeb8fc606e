package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := SlidingWindow{Client: client, Prefix: "test:"}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "key", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if allowed {
			t.Fatal("expected request over the limit to be rejected")
		}
		if remaining != 0 {
			t.Fatalf("expected remaining 0, got %d", remaining)
		}
		if reset.After(time.Now().Add(window)) {
			t.Fatalf("reset %v is beyond the window", reset)
		}
	}

	members, err := mr.ZMembers("test:key")
	if err != nil {
		t.Fatalf("zmembers: %v", err)
	}
	if len(members) != max {
		t.Fatalf("expected rejected requests to be discarded, got %d members", len(members))
	}

	mr.FastForward(window)

	allowed, _, _, err := limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestSlidingWindowWithoutClient(t *testing.T) {
	allowed, remaining, _, err := SlidingWindow{}.Allow(context.Background(), "key", time.Second, 5)
	if err != nil || !allowed || remaining != 5 {
		t.Fatalf("expected pass-through, got allowed=%v remaining=%d err=%v", allowed, remaining, err)
	}
}
