// Package s2s implements the shared-secret service-to-service calls the
// two services exchange: token-hash registration, eligibility lookups,
// reset fan-out, and the orphan-sweep probe. The middleware that
// authenticates them lives here too.
package s2s

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

const secretHeader = "X-S2S-Secret"

// RegisterTokenRequest is the body of POST /s2s/v1/token.
type RegisterTokenRequest struct {
	ElectionID string `json:"election_id"`
	TokenHash  string `json:"token_hash"`
}

// ElectionEligibility is what Elections exposes to Events over S2S so
// Events can run the eligibility check without reading
// Elections' schema directly.
type ElectionEligibility struct {
	ElectionID          string   `json:"election_id"`
	Status              string   `json:"status"`
	Hidden              bool     `json:"hidden"`
	Eligibility         string   `json:"eligibility"`
	CommitteeMemberUIDs []string `json:"committee_member_uids"`
}

// Client is Events' view of the Elections S2S surface.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{baseURL: baseURL, secret: secret, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

// RegisterTokenHash registers a freshly minted token hash with Elections,
// retrying once with jitter on transport failure before surfacing
// KindDependencyFailure.
func (c *Client) RegisterTokenHash(ctx context.Context, electionID, tokenHash string) error {
	body, err := json.Marshal(RegisterTokenRequest{ElectionID: electionID, TokenHash: tokenHash})
	if err != nil {
		return fmt.Errorf("marshal s2s register request: %w", err)
	}

	op := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	err = backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/s2s/v1/token", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(secretHeader, c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // transient
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
			return backoff.Permanent(apperrors.New(apperrors.KindValidation, "s2s.RegisterTokenHash", "election rejected token registration"))
		default:
			return fmt.Errorf("s2s register returned status %d", resp.StatusCode)
		}
	}, op)

	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return appErr
		}
		return apperrors.Wrap(apperrors.KindDependencyFailure, "s2s.RegisterTokenHash", "elections service unreachable", err)
	}
	return nil
}

// FetchElectionEligibility asks Elections for the eligibility metadata of
// one election, retrying once with jitter like RegisterTokenHash.
func (c *Client) FetchElectionEligibility(ctx context.Context, electionID string) (*ElectionEligibility, error) {
	op := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	var out *ElectionEligibility
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/s2s/v1/elections/"+electionID+"/eligibility", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set(secretHeader, c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(apperrors.New(apperrors.KindNotFound, "s2s.FetchElectionEligibility", "election not found"))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("s2s eligibility fetch returned status %d", resp.StatusCode)
		}

		var e ElectionEligibility
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return backoff.Permanent(fmt.Errorf("decode eligibility response: %w", err))
		}
		out = &e
		return nil
	}, op)

	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.KindDependencyFailure, "s2s.FetchElectionEligibility", "elections service unreachable", err)
	}
	return out, nil
}

// ResetAll asks Elections to delete all tokens and clear unclosed ballots
// across every election, the Elections half of Events' "reset all".
func (c *Client) ResetAll(ctx context.Context) (int64, error) {
	op := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	var deleted int64
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/s2s/v1/reset-all", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set(secretHeader, c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("s2s reset-all returned status %d", resp.StatusCode)
		}

		var body struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode reset-all response: %w", err))
		}
		deleted = body.Deleted
		return nil
	}, op)

	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return 0, appErr
		}
		return 0, apperrors.Wrap(apperrors.KindDependencyFailure, "s2s.ResetAll", "elections service unreachable", err)
	}
	return deleted, nil
}

// EventsClient is Elections' view of the Events S2S surface, used by the
// orphan-token sweep to confirm a token hash Events no longer recognises
// before reaping it.
type EventsClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewEventsClient(baseURL, secret string) *EventsClient {
	return &EventsClient{baseURL: baseURL, secret: secret, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

// TokenStillOutstanding asks Events whether it still has a live record for
// tokenHash under electionID.
func (c *EventsClient) TokenStillOutstanding(ctx context.Context, electionID, tokenHash string) (bool, error) {
	op := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	var outstanding bool
	err := backoff.Retry(func() error {
		url := c.baseURL + "/s2s/v1/tokens/" + tokenHash + "/status?election_id=" + electionID
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set(secretHeader, c.secret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			outstanding = false
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("s2s token status returned status %d", resp.StatusCode)
		}

		var body struct {
			Outstanding bool `json:"outstanding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode token status response: %w", err))
		}
		outstanding = body.Outstanding
		return nil
	}, op)

	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return false, appErr
		}
		return false, apperrors.Wrap(apperrors.KindDependencyFailure, "s2s.TokenStillOutstanding", "events service unreachable", err)
	}
	return outstanding, nil
}

// RequireSecret is Elections' middleware guarding the S2S-only endpoint
// with a constant-time comparison against the shared secret.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(secretHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindUnauthenticated, "s2s.RequireSecret", "invalid or missing S2S secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
