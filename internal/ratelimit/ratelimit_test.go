package ratelimit_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/ratelimit"
)

func TestAllow_BreachesAfterMax(t *testing.T) {
	l, err := ratelimit.New(time.Minute, map[ratelimit.Operation]int{
		ratelimit.OpTokenIssuance: 2,
	})
	require.NoError(t, err)

	require.True(t, l.Allow(ratelimit.OpTokenIssuance, "10.0.0.1"))
	require.True(t, l.Allow(ratelimit.OpTokenIssuance, "10.0.0.1"))
	require.False(t, l.Allow(ratelimit.OpTokenIssuance, "10.0.0.1"))
}

func TestAllow_BucketsAreIndependentByIP(t *testing.T) {
	l, err := ratelimit.New(time.Minute, map[ratelimit.Operation]int{
		ratelimit.OpBallot: 1,
	})
	require.NoError(t, err)

	require.True(t, l.Allow(ratelimit.OpBallot, "10.0.0.1"))
	require.False(t, l.Allow(ratelimit.OpBallot, "10.0.0.1"))
	require.True(t, l.Allow(ratelimit.OpBallot, "10.0.0.2"))
}

func TestAllow_UnlistedOperationIsUnlimited(t *testing.T) {
	l, err := ratelimit.New(time.Minute, map[ratelimit.Operation]int{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(ratelimit.OpAuthentication, "10.0.0.1"))
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := &http.Request{Header: http.Header{"X-Forwarded-For": []string{"203.0.113.5, 10.0.0.1"}}, RemoteAddr: "10.0.0.1:4000"}
	require.Equal(t, "203.0.113.5", ratelimit.ClientIP(r))
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := &http.Request{Header: http.Header{}, RemoteAddr: "192.168.1.9:51234"}
	require.Equal(t, "192.168.1.9", ratelimit.ClientIP(r))
}
