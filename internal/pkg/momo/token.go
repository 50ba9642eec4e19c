package momo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshWindow is how long before expiry a cached token is replaced
const refreshWindow = 60 * time.Second

type tokenFetchFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// tokenCache holds one adapter's OAuth token. Concurrent refreshes collapse into one call.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
	fetch tokenFetchFunc
	now   func() time.Time
}

func newTokenCache(fetch tokenFetchFunc) *tokenCache {
	return &tokenCache{fetch: fetch, now: time.Now}
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The refresh is shared, so it must outlive any single caller. The
	// provider HTTP client timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}

		token, expiresAt, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = expiresAt
		c.mu.Unlock()
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *tokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.now().Add(refreshWindow).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// invalidate drops the token after the provider rejected it
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
