// Package identity talks to the external identity verifier collaborator:
// given a bearer credential it returns the caller's opaque member id,
// normalised kennitala, membership flag, and role claims.
//
// The verifier itself — OIDC bridging to the national eID — is out of
// scope; this package only speaks its narrow verify interface,
// with a bounded retry and a TTL-bounded response cache that never outlives
// the credential's own expiry.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// Claims is the verified identity the core receives back for a bearer
// credential. KennitalaNormalized is the 10-digit form with any separator
// stripped.
type Claims struct {
	SubjectID           string   `json:"subject_id"`
	Kennitala           string   `json:"kennitala"`
	KennitalaNormalized string   `json:"-"`
	IsMember            bool     `json:"is_member"`
	Roles               []string `json:"roles"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// HasRole reports whether claims carries role r literally (no hierarchy
// resolution — that belongs to internal/role).
func (c *Claims) HasRole(r string) bool {
	for _, have := range c.Roles {
		if have == r {
			return true
		}
	}
	return false
}

var kennitalaDigits = regexp.MustCompile(`\D`)

// NormalizeKennitala strips separators and requires exactly 10 decimal
// digits remain.
func NormalizeKennitala(raw string) (string, error) {
	stripped := kennitalaDigits.ReplaceAllString(raw, "")
	if len(stripped) != 10 {
		return "", fmt.Errorf("kennitala must normalize to 10 digits, got %d", len(stripped))
	}
	return stripped, nil
}

// Verifier is the interface Events and Elections depend on; both the real
// HTTP client and test doubles implement it.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Claims, error)
}

// HTTPVerifier calls the external identity verifier over HTTP, retrying
// once with jitter on transport failure. When a JWKS URL is configured it
// first screens the credential's key id against the verifier's published
// key set.
type HTTPVerifier struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, *Claims]
	jwks       *jwksScreen
}

func NewHTTPVerifier(baseURL, jwksURL string, sessionMaxAge time.Duration) *HTTPVerifier {
	cache := ttlcache.New[string, *Claims](
		ttlcache.WithTTL[string, *Claims](sessionMaxAge),
	)
	go cache.Start()
	v := &HTTPVerifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      cache,
	}
	if jwksURL != "" {
		v.jwks = newJWKSScreen(jwksURL)
	}
	return v
}

func (v *HTTPVerifier) Stop() {
	v.cache.Stop()
}

// cacheKey never stores the raw credential, only its digest, so a cache
// dump never reveals bearer material.
func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func (v *HTTPVerifier) Verify(ctx context.Context, credential string) (*Claims, error) {
	key := cacheKey(credential)
	if item := v.cache.Get(key); item != nil {
		claims := item.Value()
		// Never trust a cached claim past the credential's own expiry, even
		// if the cache TTL hasn't elapsed yet.
		if !claims.ExpiresAt.IsZero() && time.Now().After(claims.ExpiresAt) {
			v.cache.Delete(key)
		} else {
			return claims, nil
		}
	}

	if v.jwks != nil && !v.jwks.Admit(ctx, credential) {
		return nil, apperrors.New(apperrors.KindUnauthenticated, "identity.Verify", "credential signed with an unknown key")
	}

	claims, err := v.verifyRemote(ctx, credential)
	if err != nil {
		return nil, err
	}

	claims.KennitalaNormalized, err = NormalizeKennitala(claims.Kennitala)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthenticated, "identity.Verify", "invalid kennitala from identity verifier", err)
	}

	if ttl, ok := sessionTTL(claims.ExpiresAt); ok {
		v.cache.Set(key, claims, ttl)
	}
	return claims, nil
}

// sessionTTL bounds a cache entry's lifetime to the credential's own
// expiry. An already-expired credential is never cached (a zero ttlcache
// duration would mean "no expiry", the opposite of what we want).
func sessionTTL(expiresAt time.Time) (time.Duration, bool) {
	if expiresAt.IsZero() {
		return ttlcache.DefaultTTL, true
	}
	if d := time.Until(expiresAt); d > 0 {
		return d, true
	}
	return 0, false
}

func (v *HTTPVerifier) verifyRemote(ctx context.Context, credential string) (*Claims, error) {
	op := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	var claims *Claims
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/verify", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+credential)

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return err // transient: retried
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(apperrors.New(apperrors.KindUnauthenticated, "identity.Verify", "credential rejected by identity verifier"))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("identity verifier returned status %d", resp.StatusCode)
		}

		var c Claims
		if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
			return backoff.Permanent(fmt.Errorf("decode identity verifier response: %w", err))
		}
		claims = &c
		return nil
	}, op)

	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.KindUnauthenticated, "identity.Verify", "identity verifier unreachable", err)
	}
	return claims, nil
}
