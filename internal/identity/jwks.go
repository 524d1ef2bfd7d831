package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// jwksRefreshInterval bounds how often the key set is re-fetched; between
// refreshes every request reads the same atomically-published snapshot.
const jwksRefreshInterval = 5 * time.Minute

// keySet is one published snapshot of the verifier's JWKS document,
// reduced to the key ids it contains.
type keySet struct {
	kids      map[string]bool
	fetchedAt time.Time
}

// jwksScreen rejects bearer credentials whose JOSE header names a key id
// absent from the verifier's published JWKS, saving a remote verification
// round trip for tokens that cannot possibly verify. It is a screen, not a
// signature check: admission still requires the identity verifier's
// verdict.
type jwksScreen struct {
	url        string
	httpClient *http.Client
	current    atomic.Pointer[keySet]
}

func newJWKSScreen(url string) *jwksScreen {
	return &jwksScreen{url: url, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

// Admit reports whether credential may proceed to remote verification.
// Fail open: credentials that are not JWS compact serializations, carry no
// kid, or arrive while no key set is available are admitted — the screen
// only rejects a well-formed token whose kid is known to be absent.
func (s *jwksScreen) Admit(ctx context.Context, credential string) bool {
	kid, ok := joseKeyID(credential)
	if !ok {
		return true
	}
	ks := s.keySet(ctx)
	if ks == nil || len(ks.kids) == 0 {
		return true
	}
	return ks.kids[kid]
}

// keySet returns the current snapshot, refreshing it when stale. A failed
// refresh keeps serving the previous snapshot rather than dropping the
// screen entirely.
func (s *jwksScreen) keySet(ctx context.Context) *keySet {
	if ks := s.current.Load(); ks != nil && time.Since(ks.fetchedAt) < jwksRefreshInterval {
		return ks
	}
	fresh, err := s.fetch(ctx)
	if err != nil {
		return s.current.Load()
	}
	s.current.Store(fresh)
	return fresh
}

func (s *jwksScreen) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks document: %w", err)
	}

	kids := make(map[string]bool, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid != "" {
			kids[k.Kid] = true
		}
	}
	return &keySet{kids: kids, fetchedAt: time.Now()}, nil
}

// joseKeyID extracts the kid from a JWS compact serialization's protected
// header without verifying anything else about the token.
func joseKeyID(credential string) (string, bool) {
	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	var header struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(raw, &header); err != nil || header.Kid == "" {
		return "", false
	}
	return header.Kid, true
}
