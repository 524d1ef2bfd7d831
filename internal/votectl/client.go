// Package votectl implements the operator CLI's command tree and its thin
// HTTP client for the admin surface.
package votectl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// client is a minimal bearer-authenticated HTTP client for the admin
// endpoints exposed by Events and Elections. It never touches the S2S
// shared secret: the operator authenticates the same way any member does.
type client struct {
	http      *http.Client
	token     string
	eventsURL string
	electionsURL string
}

func newClient(token, eventsURL, electionsURL string) *client {
	return &client{
		http:      &http.Client{Timeout: 15 * time.Second},
		token:     token,
		eventsURL: eventsURL,
		electionsURL: electionsURL,
	}
}

type errBody struct {
	Error string         `json:"error"`
	Kind  apperrors.Kind `json:"kind"`
	Field string         `json:"field,omitempty"`
}

// do issues method/path against baseURL with an optional JSON body, decoding
// a 2xx response into out (if non-nil) or translating a non-2xx response
// into an *apperrors.Error carrying the server's reported Kind.
func (c *client) do(ctx context.Context, method, baseURL, path string, reqBody, out any) error {
	var bodyReader *bytes.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidation, "votectl.do", "encode request body", err)
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bodyReader)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "votectl.do", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependencyFailure, "votectl.do", fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return apperrors.Wrap(apperrors.KindDependencyFailure, "votectl.do", "decode response", err)
			}
		}
		return nil
	}

	var eb errBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	kind := eb.Kind
	if kind == "" {
		kind = apperrors.KindInternal
	}
	msg := eb.Error
	if msg == "" {
		msg = fmt.Sprintf("request to %s failed with status %d", path, resp.StatusCode)
	}
	return apperrors.New(kind, "votectl.do", msg)
}

func (c *client) eventsPost(ctx context.Context, path string, reqBody, out any) error {
	return c.do(ctx, http.MethodPost, c.eventsURL, path, reqBody, out)
}

func (c *client) electionsPost(ctx context.Context, path string, reqBody, out any) error {
	return c.do(ctx, http.MethodPost, c.electionsURL, path, reqBody, out)
}
