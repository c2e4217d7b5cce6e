package mobilemoney

import (
	"context"
	"sync"
	"time"
)

// tokenSkew refreshes tokens slightly before the operator expires them.
const tokenSkew = 30 * time.Second

type tokenFetcher func(ctx context.Context) (token string, expiry time.Time, err error)

// tokenCache keeps one bearer token per provider instance and refreshes it
// whenever it is missing or stale.
type tokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  tokenFetcher
	now    func() time.Time
}

func newTokenCache(fetch tokenFetcher) *tokenCache {
	return &tokenCache{fetch: fetch, now: time.Now}
}

func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenSkew).Before(c.expiry) {
		return c.token, nil
	}

	token, expiry, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiry = expiry
	return token, nil
}

// Invalidate drops the cached token, used after a 401 from the operator.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
