package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/servimarket/portal/internal/core/ports"
)

const storeTimeout = 2 * time.Second

// PersistentJar is a cookie jar for one visitor that writes the API's cookies
// through to a ports.CookieStore, so the upstream session outlives the
// portal process.
type PersistentJar struct {
	inner     *cookiejar.Jar
	base      *url.URL
	store     ports.CookieStore
	visitorID string
	log       zerolog.Logger
}

var _ http.CookieJar = (*PersistentJar)(nil)

// NewPersistentJar builds a jar for visitorID and seeds it with the cookies
// already stored for that visitor. A store that cannot be read yields an
// empty jar; the visitor simply starts signed out.
func NewPersistentJar(ctx context.Context, baseURL, visitorID string, store ports.CookieStore, log zerolog.Logger) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	j := &PersistentJar{inner: inner, base: base, store: store, visitorID: visitorID, log: log}
	if store == nil {
		return j, nil
	}
	saved, err := store.Load(ctx, visitorID)
	if err != nil {
		log.Warn().Err(err).Str("visitor_id", visitorID).Msg("restore upstream cookies failed")
		return j, nil
	}
	if len(saved) > 0 {
		inner.SetCookies(base, saved)
	}
	return j, nil
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie { return j.inner.Cookies(u) }

// SetCookies updates the jar and persists the API's current cookie set.
// Store failures are logged; the in-memory jar stays authoritative.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)
	if j.store == nil || u.Host != j.base.Host {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := j.store.Save(ctx, j.visitorID, j.inner.Cookies(j.base)); err != nil {
		j.log.Warn().Err(err).Str("visitor_id", j.visitorID).Msg("persist upstream cookies failed")
	}
}

// ForVisitor builds a Client whose jar is restored from and persisted to
// store under visitorID. opts.Jar is ignored.
func ForVisitor(ctx context.Context, opts Options, visitorID string, store ports.CookieStore, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("visitor_id", visitorID).Logger()
	jar, err := NewPersistentJar(ctx, opts.BaseURL, visitorID, store, log)
	if err != nil {
		return nil, err
	}
	opts.Jar = jar
	return New(opts, log)
}
