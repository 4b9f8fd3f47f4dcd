package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/joboost/pkg/observability"
)

const (
	// DefaultMargin is subtracted from the provider TTL so a token is never
	// presented right as it expires.
	DefaultMargin = 60 * time.Second
	// DefaultTimeout bounds a single refresh.
	DefaultTimeout = 15 * time.Second
)

type cachedToken struct {
	value  string
	expiry time.Time
}

// Cache hands out bearer tokens per credential name. At most one refresh per
// name is in flight; concurrent callers wait for it and share its result.
// A failed refresh caches nothing.
type Cache struct {
	mu      sync.Mutex
	sources map[string]Source
	tokens  map[string]cachedToken

	group   singleflight.Group
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time

	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

func WithMargin(d time.Duration) Option         { return func(c *Cache) { c.margin = d } }
func WithTimeout(d time.Duration) Option        { return func(c *Cache) { c.timeout = d } }
func WithClock(now func() time.Time) Option     { return func(c *Cache) { c.now = now } }
func WithLogger(l *observability.Logger) Option { return func(c *Cache) { c.logger = l } }

func WithMetrics(m *observability.Metrics) Option { return func(c *Cache) { c.metrics = m } }

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		sources: make(map[string]Source),
		tokens:  make(map[string]cachedToken),
		margin:  DefaultMargin,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register associates name with src, dropping any token cached under name.
func (c *Cache) Register(name string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = src
	delete(c.tokens, name)
}

// Invalidate drops the cached token for name, forcing the next Acquire to
// refresh. Use it when a downstream API rejects a token early.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, name)
}

func (c *Cache) lookup(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[name]
	if !ok || !c.now().Before(tok.expiry) {
		return "", false
	}
	return tok.value, true
}

// Acquire returns a valid bearer token for name, refreshing it if needed.
// A caller whose ctx ends while waiting gets ctx.Err(); the shared refresh
// keeps running for the others.
func (c *Cache) Acquire(ctx context.Context, name string) (string, error) {
	if tok, ok := c.lookup(name); ok {
		c.metrics.RecordCredentialHit(name)
		return tok, nil
	}

	c.mu.Lock()
	src, ok := c.sources[name]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCredential, name)
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(name, func() (interface{}, error) {
		if tok, ok := c.lookup(name); ok {
			return tok, nil
		}
		return c.refresh(refreshCtx, name, src)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) refresh(ctx context.Context, name string, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	tok, err := src.Fetch(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			c.metrics.RecordCredentialRefresh(name, "not_configured", elapsed)
			return "", err
		}
		c.metrics.RecordCredentialRefresh(name, "error", elapsed)
		c.logger.WithError(err).WithField("credential", name).Warn("Token refresh failed")
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{Name: name, Err: err}
		}
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		c.metrics.RecordCredentialRefresh(name, "error", elapsed)
		return "", &FetchError{Name: name, Err: errors.New("empty access token")}
	}

	c.metrics.RecordCredentialRefresh(name, "success", elapsed)

	expiry := c.now().Add(tok.TTL - c.margin)
	if c.now().Before(expiry) {
		c.mu.Lock()
		c.tokens[name] = cachedToken{value: tok.AccessToken, expiry: expiry}
		c.mu.Unlock()
	} else {
		c.logger.WithField("credential", name).WithField("ttl", tok.TTL.String()).
			Warn("Token lifetime shorter than safety margin, not caching")
	}

	c.logger.WithField("credential", name).Debug("Token refreshed")
	return tok.AccessToken, nil
}

// Credential is a handle bound to one name, for injection into API clients.
type Credential struct {
	cache *Cache
	name  string
}

// Credential returns a handle for name.
func (c *Cache) Credential(name string) *Credential {
	return &Credential{cache: c, name: name}
}

// Name returns the credential name.
func (cr *Credential) Name() string { return cr.name }

// Token returns a valid bearer token.
func (cr *Credential) Token(ctx context.Context) (string, error) {
	return cr.cache.Acquire(ctx, cr.name)
}

// Authorize sets the Authorization header on req.
func (cr *Credential) Authorize(req *http.Request) error {
	tok, err := cr.cache.Acquire(req.Context(), cr.name)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// Invalidate drops the cached token.
func (cr *Credential) Invalidate() {
	cr.cache.Invalidate(cr.name)
}
