package httpmw_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
)

type stubVerifier struct {
	claims *identity.Claims
	err    error
}

func (s *stubVerifier) Verify(ctx context.Context, credential string) (*identity.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func TestAuthenticate_AttachesClaims(t *testing.T) {
	want := &identity.Claims{SubjectID: "member-1", IsMember: true}
	handler := httpmw.Authenticate(&stubVerifier{claims: want}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := httpmw.ClaimsFromContext(r.Context())
		require.Equal(t, want, got)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/elections", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	handler := httpmw.Authenticate(&stubVerifier{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a credential")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/elections", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	handler := httpmw.Authenticate(&stubVerifier{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a malformed credential")
	}))

	for _, header := range []string{"Basic dXNlcg==", "Bearer", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/api/elections", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "header=%q", header)
	}
}

func TestAuthenticate_VerifierRejection(t *testing.T) {
	verifier := &stubVerifier{err: apperrors.New(apperrors.KindUnauthenticated, "identity.Verify", "credential rejected")}
	handler := httpmw.Authenticate(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a rejected credential")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/elections", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCorrelationID_MintsAndPropagates(t *testing.T) {
	var seen string
	handler := httpmw.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpmw.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "given-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "given-id", seen)
}
