package s2s_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
)

func TestRegisterTokenHash_SendsSecretAndBody(t *testing.T) {
	var got s2s.RegisterTokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "shh", r.Header.Get("X-S2S-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := s2s.NewClient(srv.URL, "shh")
	err := c.RegisterTokenHash(context.Background(), "election-1", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "election-1", got.ElectionID)
	require.Equal(t, "hash-1", got.TokenHash)
}

func TestRegisterTokenHash_RetriesOnceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := s2s.NewClient(srv.URL, "shh")
	err := c.RegisterTokenHash(context.Background(), "election-1", "hash-1")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestRegisterTokenHash_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := s2s.NewClient(srv.URL, "shh")
	err := c.RegisterTokenHash(context.Background(), "election-1", "hash-1")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestRegisterTokenHash_UnreachableIsDependencyFailure(t *testing.T) {
	c := s2s.NewClient("http://127.0.0.1:1", "shh")
	err := c.RegisterTokenHash(context.Background(), "election-1", "hash-1")
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindDependencyFailure, appErr.Kind)
}

func TestFetchElectionEligibility_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/s2s/v1/elections/election-1/eligibility", r.URL.Path)
		_ = json.NewEncoder(w).Encode(s2s.ElectionEligibility{
			ElectionID:          "election-1",
			Status:              "published",
			Eligibility:         "committee",
			CommitteeMemberUIDs: []string{"u1", "u2"},
		})
	}))
	defer srv.Close()

	c := s2s.NewClient(srv.URL, "shh")
	got, err := c.FetchElectionEligibility(context.Background(), "election-1")
	require.NoError(t, err)
	require.Equal(t, "published", got.Status)
	require.Equal(t, []string{"u1", "u2"}, got.CommitteeMemberUIDs)
}

func TestFetchElectionEligibility_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := s2s.NewClient(srv.URL, "shh")
	_, err := c.FetchElectionEligibility(context.Background(), "missing")
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindNotFound, appErr.Kind)
}

func TestRequireSecret_RejectsWrongSecret(t *testing.T) {
	handler := s2s.RequireSecret("correct")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/s2s/v1/token", nil)
	req.Header.Set("X-S2S-Secret", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Del("X-S2S-Secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSecret_AdmitsCorrectSecret(t *testing.T) {
	handler := s2s.RequireSecret("correct")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/s2s/v1/token", nil)
	req.Header.Set("X-S2S-Secret", "correct")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
