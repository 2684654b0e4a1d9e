package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testRSAKey generates a 2048-bit RSA key pair.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	return key
}

// jwksDocument builds a JWKS JSON document for the given kid -> public key map.
func jwksDocument(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()

	type jwk struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Alg string `json:"alg"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	doc := struct {
		Keys []jwk `json:"keys"`
	}{}
	for kid, pub := range keys {
		doc.Keys = append(doc.Keys, jwk{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshaling JWKS: %v", err)
	}
	return data
}

// serveJWKS starts an httptest server publishing the given keys and counts
// how many fetches it received.
func serveJWKS(t *testing.T, keys map[string]*rsa.PublicKey, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	doc := jwksDocument(t, keys)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKeySetCache_Key(t *testing.T) {
	key := testRSAKey(t)

	t.Run("caches after first fetch", func(t *testing.T) {
		var fetches atomic.Int64
		srv := serveJWKS(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey}, &fetches)

		cache := NewKeySetCache(srv.URL, 0, nil)
		ctx := context.Background()

		for range 3 {
			got, err := cache.Key(ctx, "k1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.N.Cmp(key.PublicKey.N) != 0 {
				t.Error("returned key does not match published key")
			}
		}
		if n := fetches.Load(); n != 1 {
			t.Errorf("expected 1 fetch, got %d", n)
		}
	})

	t.Run("unknown kid fails with ErrKeyNotFound after refresh", func(t *testing.T) {
		var fetches atomic.Int64
		srv := serveJWKS(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey}, &fetches)

		cache := NewKeySetCache(srv.URL, 0, nil)
		ctx := context.Background()

		if _, err := cache.Key(ctx, "k1"); err != nil {
			t.Fatalf("priming fetch failed: %v", err)
		}
		_, err := cache.Key(ctx, "unknown")
		if !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
		// The miss must have forced exactly one refetch.
		if n := fetches.Load(); n != 2 {
			t.Errorf("expected 2 fetches, got %d", n)
		}
	})

	t.Run("refresh-on-miss picks up rotated keys", func(t *testing.T) {
		rotated := testRSAKey(t)
		var current atomic.Value
		current.Store(jwksDocument(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey}))

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(current.Load().([]byte))
		}))
		defer srv.Close()

		cache := NewKeySetCache(srv.URL, 0, nil)
		ctx := context.Background()

		if _, err := cache.Key(ctx, "k1"); err != nil {
			t.Fatalf("priming fetch failed: %v", err)
		}

		// Provider rotates: k1 replaced by k2.
		current.Store(jwksDocument(t, map[string]*rsa.PublicKey{"k2": &rotated.PublicKey}))

		got, err := cache.Key(ctx, "k2")
		if err != nil {
			t.Fatalf("expected rotated key to be found, got %v", err)
		}
		if got.N.Cmp(rotated.PublicKey.N) != 0 {
			t.Error("returned key does not match rotated key")
		}

		// The old kid is gone: the set is replaced, never merged.
		if _, err := cache.Key(ctx, "k1"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound for retired kid, got %v", err)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cache := NewKeySetCache(srv.URL, 0, nil)
		_, err := cache.Key(context.Background(), "k1")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		cache := NewKeySetCache("http://127.0.0.1:1", 0, &http.Client{Timeout: time.Second})
		_, err := cache.Key(context.Background(), "k1")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("ttl expiry triggers refetch", func(t *testing.T) {
		var fetches atomic.Int64
		srv := serveJWKS(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey}, &fetches)

		cache := NewKeySetCache(srv.URL, time.Nanosecond, nil)
		ctx := context.Background()

		if _, err := cache.Key(ctx, "k1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(time.Millisecond)
		if _, err := cache.Key(ctx, "k1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := fetches.Load(); n != 2 {
			t.Errorf("expected 2 fetches after TTL expiry, got %d", n)
		}
	})
}

func TestKeySetCache_StampedeGuard(t *testing.T) {
	key := testRSAKey(t)
	doc := jwksDocument(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})

	var fetches atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		<-release
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	cache := NewKeySetCache(srv.URL, 0, nil)
	ctx := context.Background()

	const concurrency = 16
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Key(ctx, "k1")
		}()
	}

	// Give all goroutines time to pile up on the miss, then let the single
	// in-flight fetch complete.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: unexpected error: %v", i, err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("expected exactly 1 fetch under concurrent misses, got %d", n)
	}
}

func TestKeySetCache_RefreshSurvivesCallerCancel(t *testing.T) {
	key := testRSAKey(t)
	doc := jwksDocument(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})

	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	cache := NewKeySetCache(srv.URL, 0, nil)

	// The fetch result is shared by every goroutine waiting on the same
	// miss, so cancelling the request that happened to trigger it must not
	// abort the fetch for the rest.
	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		key *rsa.PublicKey
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		k, err := cache.Key(ctx, "k1")
		resCh <- result{k, err}
	}()

	<-started
	cancel()
	close(release)

	res := <-resCh
	if res.err != nil {
		t.Fatalf("shared fetch inherited a caller's cancellation: %v", res.err)
	}
	if res.key == nil || res.key.N.Cmp(key.PublicKey.N) != 0 {
		t.Error("returned key does not match published key")
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	t.Run("bad modulus", func(t *testing.T) {
		if _, err := parseRSAPublicKey("!!!", "AQAB"); err == nil {
			t.Error("expected error for invalid base64 modulus")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		key := testRSAKey(t)
		n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
		e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())

		pub, err := parseRSAPublicKey(n, e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
			t.Error("reconstructed key does not match original")
		}
	})
}
