package redis

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCookieStore_SaveLoad(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCookieStore(client, time.Hour)
	ctx := context.Background()

	in := []*http.Cookie{{Name: "token", Value: "abc", Path: "/", HttpOnly: true}, {Name: "lang", Value: "fr"}}
	if err := store.Save(ctx, "visitor-1", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("portal:cookies:visitor-1") {
		t.Fatalf("expected key portal:cookies:visitor-1")
	}
	if ttl := mr.TTL("portal:cookies:visitor-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	out, err := store.Load(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 || out[0].Name != "token" || out[0].Value != "abc" || out[1].Value != "fr" {
		t.Fatalf("unexpected cookies: %+v", out)
	}
}

func TestCookieStore_LoadMissing(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewCookieStore(client, 0)

	out, err := store.Load(context.Background(), "nobody")
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil for unknown visitor, got %v, %v", out, err)
	}
}

func TestCookieStore_EmptySaveDeletes(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCookieStore(client, time.Hour)
	ctx := context.Background()

	_ = store.Save(ctx, "visitor-1", []*http.Cookie{{Name: "token", Value: "abc"}})
	if err := store.Save(ctx, "visitor-1", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if mr.Exists("portal:cookies:visitor-1") {
		t.Fatalf("empty save should remove the entry")
	}
}

func TestCookieStore_Expires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCookieStore(client, time.Minute)
	ctx := context.Background()

	_ = store.Save(ctx, "visitor-1", []*http.Cookie{{Name: "token", Value: "abc"}})
	mr.FastForward(2 * time.Minute)

	out, err := store.Load(ctx, "visitor-1")
	if err != nil || out != nil {
		t.Fatalf("expected expired entry, got %v, %v", out, err)
	}
}

func TestCookieStore_Corrupt(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCookieStore(client, time.Hour)
	_ = mr.Set("portal:cookies:visitor-1", "not json")

	if _, err := store.Load(context.Background(), "visitor-1"); err == nil {
		t.Fatalf("expected decode error")
	}
}
