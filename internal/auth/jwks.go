package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/1-to-100/backoffice/internal/shared"
)

const (
	defaultJWKSFetchTimeout  = 5 * time.Second
	defaultJWKSRetryAttempts = 3
	defaultJWKSRetryBase     = 200 * time.Millisecond
	defaultJWKSRetryMax      = 2 * time.Second
)

// ErrUnknownKey indicates the token references a key the issuer no longer
// publishes. Callers treat it as a credential failure, not an outage.
var ErrUnknownKey = errors.New("auth: signing key not found")

type keyState int

const (
	keyMissing keyState = iota
	keyFresh
	keyStale
)

// JWKSCache caches the issuer's signing keys. Keys are served fresh within
// the TTL and stale up to the stale window while a background refresh runs;
// past the window every caller blocks on a single-flight refetch.
type JWKSCache struct {
	url          string
	httpClient   *http.Client
	ttl          time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	expiresAt  time.Time
	staleUntil time.Time

	refreshMu sync.Mutex
	refreshCh chan struct{}
	lastErr   error
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWKSCache builds a cache for the given JWKS endpoint.
func NewJWKSCache(url string, httpClient *http.Client, ttl, maxStale time.Duration) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultJWKSFetchTimeout}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxStale <= 0 {
		maxStale = 15 * time.Minute
	}
	return &JWKSCache{
		url:          url,
		httpClient:   httpClient,
		ttl:          ttl,
		maxStale:     maxStale,
		fetchTimeout: defaultJWKSFetchTimeout,
		retryBase:    defaultJWKSRetryBase,
		retryMax:     defaultJWKSRetryMax,
		now:          time.Now,
		keys:         map[string]*rsa.PublicKey{},
	}
}

// Key returns the public key for kid, refetching the set when unknown.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, ErrUnknownKey
	}
	now := c.now()
	if key, state := c.lookup(kid, now); state == keyFresh {
		return key, nil
	} else if state == keyStale {
		c.refreshAsync()
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, state := c.lookup(kid, c.now()); state != keyMissing {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// All returns every currently valid key, in unspecified order. Rotation
// tolerance depends on it: a token without a kid is tried against each.
func (c *JWKSCache) All(ctx context.Context) ([]*rsa.PublicKey, error) {
	now := c.now()
	if keys, state := c.snapshot(now); state == keyFresh {
		return keys, nil
	} else if state == keyStale {
		c.refreshAsync()
		return keys, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	keys, state := c.snapshot(c.now())
	if state == keyMissing {
		return nil, fmt.Errorf("%w: jwks empty after refresh", shared.ErrUpstreamUnavailable)
	}
	return keys, nil
}

func (c *JWKSCache) lookup(kid string, now time.Time) (*rsa.PublicKey, keyState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	if !ok {
		return nil, keyMissing
	}
	if now.Before(c.expiresAt) {
		return key, keyFresh
	}
	if !c.staleUntil.IsZero() && now.Before(c.staleUntil) {
		return key, keyStale
	}
	return nil, keyMissing
}

func (c *JWKSCache) snapshot(now time.Time) ([]*rsa.PublicKey, keyState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 {
		return nil, keyMissing
	}
	state := keyMissing
	if now.Before(c.expiresAt) {
		state = keyFresh
	} else if !c.staleUntil.IsZero() && now.Before(c.staleUntil) {
		state = keyStale
	} else {
		return nil, keyMissing
	}
	keys := make([]*rsa.PublicKey, 0, len(c.keys))
	for _, key := range c.keys {
		keys = append(keys, key)
	}
	return keys, state
}

func (c *JWKSCache) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	go func() {
		_ = c.refresh(ctx)
		cancel()
	}()
}

// refresh is single-flight: concurrent callers wait on the leader's result.
func (c *JWKSCache) refresh(ctx context.Context) error {
	ch, leader := c.beginRefresh()
	if !leader {
		return c.waitRefresh(ctx, ch)
	}

	err := c.doRefresh(ctx)
	c.finishRefresh(err, ch)
	return err
}

func (c *JWKSCache) beginRefresh() (chan struct{}, bool) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshCh != nil {
		return c.refreshCh, false
	}
	ch := make(chan struct{})
	c.refreshCh = ch
	return ch, true
}

func (c *JWKSCache) waitRefresh(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		c.refreshMu.Lock()
		defer c.refreshMu.Unlock()
		return c.lastErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *JWKSCache) finishRefresh(err error, ch chan struct{}) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.lastErr = err
	close(ch)
	c.refreshCh = nil
}

func (c *JWKSCache) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	keys, err := c.fetchWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetch jwks: %v", shared.ErrUpstreamUnavailable, err)
	}
	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.expiresAt = now.Add(c.ttl)
	c.staleUntil = c.expiresAt.Add(c.maxStale)
	c.mu.Unlock()
	return nil
}

func (c *JWKSCache) fetchWithRetry(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	delay := c.retryBase
	var lastErr error
	for attempt := 0; attempt < defaultJWKSRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.retryMax {
				delay = c.retryMax
			}
		}
		keys, err := c.fetchOnce(ctx)
		if err == nil {
			return keys, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *JWKSCache) fetchOnce(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jwks fetch returned %d", resp.StatusCode)
	}
	var payload jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, key := range payload.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		pub, err := jwkToRSAPublicKey(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable keys")
	}
	return keys, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jwkToRSAPublicKey(key jwkKey) (*rsa.PublicKey, error) {
	if key.N == "" || key.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 0 || e > int64(^uint32(0)) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{
		N: n,
		E: int(e),
	}, nil
}
