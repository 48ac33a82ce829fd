package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestJWKS_FetchesAndRefreshesOnUnknownKid(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		keys := []jwkKey{rsaJWK("first", publicKey)}
		if n > 1 {
			keys = append(keys, rsaJWK("rotated", publicKey))
		}
		keys = append(keys, jwkKey{Kty: "EC", Kid: "ignored"})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwksJSON{Keys: keys})
	}))
	defer srv.Close()

	jwks, err := NewJWKS(srv.URL, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewJWKS: %v", err)
	}
	defer jwks.Close()

	if _, err := jwks.Get("first"); err != nil {
		t.Fatalf("Get(first): %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected cached key to avoid refetch, calls=%d", calls)
	}

	key, err := jwks.Get("rotated")
	if err != nil {
		t.Fatalf("Get(rotated): %v", err)
	}
	if key.N.Cmp(publicKey.N) != 0 || key.E != publicKey.E {
		t.Error("decoded key does not match")
	}

	if _, err := jwks.Get("ignored"); err == nil {
		t.Error("expected non-RSA key to be skipped")
	}
}

func TestNewJWKS_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewJWKS(srv.URL, time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected error for 404 jwks endpoint")
	}
}

func rsaJWK(kid string, key *rsa.PublicKey) jwkKey {
	return jwkKey{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
