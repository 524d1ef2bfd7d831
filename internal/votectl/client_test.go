package votectl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

func TestClient_Do_DecodesSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resetResponse{Deleted: 3})
	}))
	defer srv.Close()

	c := newClient("tok", srv.URL, srv.URL)
	var out resetResponse
	err := c.do(context.Background(), http.MethodPost, srv.URL, "/x", nil, &out)
	require.NoError(t, err)
	require.Equal(t, int64(3), out.Deleted)
}

func TestClient_Do_TranslatesErrorBodyIntoAppError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(errBody{Error: "nope", Kind: apperrors.KindForbidden})
	}))
	defer srv.Close()

	c := newClient("", srv.URL, srv.URL)
	err := c.do(context.Background(), http.MethodPost, srv.URL, "/x", nil, nil)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindForbidden, appErr.Kind)
}

func TestClient_Do_UnreachableServerIsDependencyFailure(t *testing.T) {
	c := newClient("", "http://127.0.0.1:1", "http://127.0.0.1:1")
	err := c.do(context.Background(), http.MethodPost, "http://127.0.0.1:1", "/x", nil, nil)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindDependencyFailure, appErr.Kind)
}
