// Package auth implements the Authenticator capability over an
// oauth2.TokenSource. Credential storage and the login handshake live with
// the embedding application; this package only turns a session credential
// into request tokens and keeps the short-lived edit token fresh.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"

	"github.com/skimreader/skim/internal/skim"
)

// editTokenTTL mirrors the remote's token lifetime, µs-derived from the
// original protocol's 1.5e9 µs window.
const editTokenTTL = 25 * time.Minute

var _ skim.Authenticator = (*Client)(nil)

type Client struct {
	source  oauth2.TokenSource
	baseURL string
	http    *http.Client

	mu         sync.Mutex
	editToken  string
	editExpiry time.Time
}

// New builds an authenticator against the API at baseURL. The token source
// supplies the long-lived session credential; a static token works via
// [oauth2.StaticTokenSource].
func New(baseURL string, source oauth2.TokenSource) *Client {
	return &Client{
		source:  source,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) Token(ctx context.Context) (string, error) {
	tok, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("error getting session token: %w", err)
	}

	return tok.AccessToken, nil
}

// EditToken returns the mutation-authorization token, fetching a fresh one
// from the remote's token endpoint when the cached one has expired.
func (c *Client) EditToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editToken != "" && time.Now().Before(c.editExpiry) {
		return c.editToken, nil
	}

	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	var editToken string
	err = retry.Do(ctx, retry.WithMaxRetries(3, retry.NewFibonacci(time.Second)), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token", nil)
		if err != nil {
			return fmt.Errorf("error creating token request: %s", err)
		}
		req.Header.Set("Authorization", "GoogleLogin auth="+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("token request forbidden: %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 400 {
			return retry.RetryableError(fmt.Errorf("token request returned %d", resp.StatusCode))
		}

		byts, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		editToken = strings.TrimSpace(string(byts))

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error fetching edit token: %w", err)
	}

	c.editToken = editToken
	c.editExpiry = time.Now().Add(editTokenTTL)

	return c.editToken, nil
}

// Invalidate drops the cached edit token so the next mutating call starts
// from a fresh grant. Called after a 403.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.editToken = ""
	c.editExpiry = time.Time{}
}
