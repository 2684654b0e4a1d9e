package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxJWKSResponseSize caps the JWKS response body at 1 MB.
const maxJWKSResponseSize = 1 << 20

// HTTPClient abstracts the HTTP client used to fetch the JWKS document,
// allowing callers to supply custom timeouts or transports. The standard
// [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeySetCache fetches and caches the identity provider's public signing keys,
// indexed by kid. The key map is replaced atomically on every refresh, never
// merged. A singleflight group guarantees at most one refresh is in flight
// even when many requests miss concurrently.
//
// KeySetCache is safe for concurrent use by multiple goroutines.
type KeySetCache struct {
	jwksURL string
	ttl     time.Duration
	client  HTTPClient

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

// NewKeySetCache creates a key set cache for the given JWKS URL. A ttl of
// zero disables time-based expiry; the cache then refreshes only on a kid
// miss. If client is nil, a default client with a 10-second timeout is used.
func NewKeySetCache(jwksURL string, ttl time.Duration, client HTTPClient) *KeySetCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySetCache{
		jwksURL: jwksURL,
		ttl:     ttl,
		client:  client,
	}
}

// Key returns the public key for the given kid. If the cache is empty or
// stale it is filled first; if the kid is absent from a fresh cache, one
// forced refresh is attempted before failing with ErrKeyNotFound (key
// rotation handling).
func (c *KeySetCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	fresh := c.keys != nil && (c.ttl == 0 || time.Since(c.fetchedAt) < c.ttl)
	if fresh {
		key, ok := c.keys[kid]
		c.mu.RUnlock()
		if ok {
			return key, nil
		}
		// Unknown kid in a fresh cache: the provider may have rotated keys.
	} else {
		c.mu.RUnlock()
	}

	keys, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// refresh fetches the JWKS and replaces the cached key map. Concurrent
// callers share a single fetch via singleflight. The fetch is detached from
// the triggering caller's cancellation: its result is shared by every waiter
// and bounded by the HTTP client's timeout.
func (c *KeySetCache) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("jwks", func() (any, error) {
		keys, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

// jwksResponse is the JSON shape of a JWKS endpoint response. Only the
// fields needed for RSA key reconstruction are included.
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

// fetch retrieves and parses the JWKS document. Transport failures and
// non-2xx statuses surface as ErrUpstreamUnavailable.
func (c *KeySetCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS endpoint returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading JWKS response: %v", ErrUpstreamUnavailable, err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("%w: parsing JWKS JSON: %v", ErrUpstreamUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue // Skip malformed keys.
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding RSA exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
