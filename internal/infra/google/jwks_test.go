package google

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
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAudienceMatches(t *testing.T) {
	cases := []struct {
		name     string
		aud      any
		clientID string
		want     bool
	}{
		{name: "string match", aud: "client", clientID: "client", want: true},
		{name: "string mismatch", aud: "client", clientID: "other", want: false},
		{name: "slice any match", aud: []any{"other", "client"}, clientID: "client", want: true},
		{name: "slice any mismatch", aud: []any{"other", 1}, clientID: "client", want: false},
		{name: "slice string match", aud: []string{"client", "alt"}, clientID: "client", want: true},
		{name: "claim strings match", aud: jwt.ClaimStrings{"client"}, clientID: "client", want: true},
		{name: "nil", aud: nil, clientID: "client", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := audienceMatches(tc.aud, tc.clientID); got != tc.want {
				t.Fatalf("audienceMatches(%v, %q) = %v, want %v", tc.aud, tc.clientID, got, tc.want)
			}
		})
	}
}

type idp struct {
	srv  *httptest.Server
	key  *rsa.PrivateKey
	kid  string
	jwks atomic.Int32
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	p := &idp{key: key, kid: "k1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": p.srv.URL + "/certs"})
	})
	mux.HandleFunc("/certs", func(w http.ResponseWriter, r *http.Request) {
		p.jwks.Add(1)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kid: p.kid,
			Kty: "RSA",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *idp) sign(t *testing.T, kid string, claims idTokenClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(p.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (p *idp) claims(aud string) idTokenClaims {
	return idTokenClaims{
		Email:         "Ana@Example.com",
		EmailVerified: true,
		Name:          "Ana",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "google-123",
			Issuer:    p.srv.URL,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifyIDToken(t *testing.T) {
	p := newIDP(t)
	v := NewVerifier(p.srv.URL, "client", p.srv.Client())

	id, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", p.claims("client")))
	if err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if id.Subject != "google-123" || id.Email != "ana@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}

	// keys are cached between calls
	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", p.claims("client"))); err != nil {
		t.Fatalf("second VerifyIDToken: %v", err)
	}
	if got := p.jwks.Load(); got != 1 {
		t.Fatalf("jwks fetched %d times, want 1", got)
	}
}

func TestVerifyIDTokenRejects(t *testing.T) {
	p := newIDP(t)
	v := NewVerifier(p.srv.URL, "client", p.srv.Client())

	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", p.claims("someone-else"))); !errors.Is(err, ErrInvalidAudience) {
		t.Fatalf("audience: err = %v", err)
	}

	c := p.claims("client")
	c.EmailVerified = "false"
	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", c)); !errors.Is(err, ErrEmailUnverified) {
		t.Fatalf("unverified email: err = %v", err)
	}

	c = p.claims("client")
	c.Issuer = "https://evil.example.com"
	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", c)); err == nil {
		t.Fatal("foreign issuer accepted")
	}

	c = p.claims("client")
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "k1", c)); err == nil {
		t.Fatal("expired token accepted")
	}

	if _, err := v.VerifyIDToken(context.Background(), p.sign(t, "rotated", p.claims("client"))); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown kid: err = %v", err)
	}
}
