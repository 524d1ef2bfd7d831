package apperrors_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

func TestNew_Error(t *testing.T) {
	err := apperrors.New(apperrors.KindNotFound, "op", "missing")
	require.Equal(t, "not_found failed in op: missing", err.Error())
}

func TestWrap_IncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := apperrors.Wrap(apperrors.KindDatabase, "op", "query failed", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}

func TestValidation_SetsField(t *testing.T) {
	err := apperrors.Validation("op", "max_selections", "must be positive")
	require.Equal(t, apperrors.KindValidation, err.Kind)
	require.Equal(t, "max_selections", err.Field)
}

func TestAs_ExtractsWrappedError(t *testing.T) {
	err := apperrors.New(apperrors.KindForbidden, "op", "nope")
	wrapped := errors.Join(err)

	got, ok := apperrors.As(wrapped)
	require.True(t, ok)
	require.Equal(t, apperrors.KindForbidden, got.Kind)

	_, ok = apperrors.As(errors.New("plain"))
	require.False(t, ok)
}

func TestHTTPStatus_Mapping(t *testing.T) {
	cases := map[apperrors.Kind]int{
		apperrors.KindUnauthenticated:   http.StatusUnauthorized,
		apperrors.KindForbidden:         http.StatusForbidden,
		apperrors.KindNotFound:          http.StatusNotFound,
		apperrors.KindConflict:          http.StatusConflict,
		apperrors.KindAlreadyVoted:      http.StatusConflict,
		apperrors.KindValidation:        http.StatusUnprocessableEntity,
		apperrors.KindTooManyRequests:   http.StatusTooManyRequests,
		apperrors.KindDependencyFailure: http.StatusServiceUnavailable,
		apperrors.KindDatabase:          http.StatusInternalServerError,
		apperrors.KindTieUnresolved:     http.StatusOK,
		apperrors.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, apperrors.HTTPStatus(kind), "kind=%s", kind)
	}
}

func TestExitCode_Mapping(t *testing.T) {
	require.Equal(t, 1, apperrors.ExitCode(apperrors.KindValidation))
	require.Equal(t, 2, apperrors.ExitCode(apperrors.KindUnauthenticated))
	require.Equal(t, 2, apperrors.ExitCode(apperrors.KindForbidden))
	require.Equal(t, 3, apperrors.ExitCode(apperrors.KindDependencyFailure))
	require.Equal(t, 4, apperrors.ExitCode(apperrors.KindDatabase))
	require.Equal(t, 4, apperrors.ExitCode(apperrors.KindInternal))
}
