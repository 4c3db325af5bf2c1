package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/servimarket/portal/internal/core/ports"
)

const (
	cookieKeyPrefix  = "portal:cookies:"
	defaultCookieTTL = 24 * time.Hour
)

// storedCookie is the persisted subset of an upstream cookie. The jar only
// hands back name and value, so nothing else is kept.
type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CookieStore implements ports.CookieStore on Redis.
// Key format: portal:cookies:<visitor_id>
type CookieStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCookieStore wraps client. Entries expire ttl after their last save.
func NewCookieStore(client *redis.Client, ttl time.Duration) ports.CookieStore {
	if ttl <= 0 {
		ttl = defaultCookieTTL
	}
	return &CookieStore{client: client, ttl: ttl}
}

// Load returns the cookies saved for visitorID, or nil when none are stored.
func (s *CookieStore) Load(ctx context.Context, visitorID string) ([]*http.Cookie, error) {
	raw, err := s.client.Get(ctx, s.key(visitorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	out := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

// Save replaces the visitor's cookies. An empty set deletes the entry.
func (s *CookieStore) Save(ctx context.Context, visitorID string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return s.Delete(ctx, visitorID)
	}
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := s.client.Set(ctx, s.key(visitorID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}

func (s *CookieStore) Delete(ctx context.Context, visitorID string) error {
	if err := s.client.Del(ctx, s.key(visitorID)).Err(); err != nil {
		return fmt.Errorf("delete cookies: %w", err)
	}
	return nil
}

func (s *CookieStore) key(visitorID string) string {
	return cookieKeyPrefix + visitorID
}
