// Package reader is the authenticated client for the remote Reader-style
// API: per-category id listings, batched content fetches, tag edits and the
// subscription list.
package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skimreader/skim/internal/skim"
)

// ErrForbidden marks a 403 from a mutating endpoint; callers invalidate
// cached credentials when they see it.
var ErrForbidden = errors.New("request forbidden")

// ChunkSize is the most item ids the backend reliably accepts per request.
// Larger batches are silently truncated rather than rejected, so this is a
// hard contract, not a tuning knob.
const ChunkSize = 250

type Client struct {
	baseURL string
	auth    skim.Authenticator
	http    *http.Client
}

func New(baseURL string, auth skim.Authenticator) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		auth:    auth,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// endpoint builds an API url; output=json is always appended, matching what
// the backend expects on every call.
func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("output", "json")
	return fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode())
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %s", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth token: %w", err)
	}
	req.Header.Set("Authorization", "GoogleLogin auth="+token)
	req.Header.Set("User-Agent", "skim/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error performing request: %w", err)
	}
	defer resp.Body.Close()

	byts, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %s", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrForbidden)
	}
	// The backend answers some mutations with redirects; anything below 400
	// counts as accepted.
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return byts, nil
}

// idQueries maps each id set to its stream filter. unread is the reading
// list minus the read state; starred is its own stream.
var idQueries = map[skim.Category]url.Values{
	skim.CategoryAll:     {"s": []string{string(skim.TagReadingList)}},
	skim.CategoryUnread:  {"s": []string{string(skim.TagReadingList)}, "xt": []string{string(skim.TagRead)}},
	skim.CategoryStarred: {"s": []string{string(skim.TagStarred)}},
}

// ItemIDs lists the ids the remote currently reports for one category,
// capped at limit.
func (c *Client) ItemIDs(ctx context.Context, cat skim.Category, limit int) ([]skim.IDStamp, error) {
	base, ok := idQueries[cat]
	if !ok {
		return nil, fmt.Errorf("no id stream for category %q", cat)
	}
	params := url.Values{}
	for key, vals := range base {
		params[key] = vals
	}
	params.Set("n", strconv.Itoa(limit))

	byts, err := c.do(ctx, http.MethodGet, c.endpoint("stream/items/ids", params), nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s ids: %w", cat, err)
	}

	var resp idsResponse
	if err := json.Unmarshal(byts, &resp); err != nil {
		return nil, fmt.Errorf("error decoding id list: %s", err)
	}

	stamps := make([]skim.IDStamp, 0, len(resp.ItemRefs))
	for _, ref := range resp.ItemRefs {
		id, err := strconv.ParseInt(ref.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing item id %q: %s", ref.ID, err)
		}
		stamp, err := strconv.ParseInt(ref.TimestampUsec, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing item stamp %q: %s", ref.TimestampUsec, err)
		}
		stamps = append(stamps, skim.IDStamp{ID: id, Stamp: stamp})
	}

	return stamps, nil
}

// StreamContents fetches full content for up to ChunkSize items.
func (c *Client) StreamContents(ctx context.Context, ids []int64) ([]RawItem, error) {
	form := url.Values{}
	for _, id := range ids {
		form.Add("i", strconv.FormatInt(id, 10))
	}

	byts, err := c.do(ctx, http.MethodPost, c.endpoint("stream/items/contents", nil), form)
	if err != nil {
		return nil, fmt.Errorf("error fetching stream contents: %w", err)
	}

	var resp contentsResponse
	if err := json.Unmarshal(byts, &resp); err != nil {
		return nil, fmt.Errorf("error decoding stream contents: %s", err)
	}

	return resp.Items, nil
}

// EditTag adds or removes one state tag on up to ChunkSize items.
func (c *Client) EditTag(ctx context.Context, tag skim.StateTag, remove bool, ids []int64) error {
	editToken, err := c.auth.EditToken(ctx)
	if err != nil {
		return fmt.Errorf("error getting edit token: %w", err)
	}

	action := "a"
	if remove {
		action = "r"
	}
	form := url.Values{}
	for _, id := range ids {
		form.Add("i", strconv.FormatInt(id, 10))
	}
	form.Set(action, string(tag))
	form.Set("T", editToken)

	if _, err := c.do(ctx, http.MethodPost, c.endpoint("edit-tag", nil), form); err != nil {
		return fmt.Errorf("error editing tag: %w", err)
	}

	return nil
}

// SubscriptionList fetches the full subscription/label snapshot.
func (c *Client) SubscriptionList(ctx context.Context) ([]RemoteSubscription, error) {
	byts, err := c.do(ctx, http.MethodGet, c.endpoint("subscription/list", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching subscription list: %w", err)
	}

	var resp subscriptionListResponse
	if err := json.Unmarshal(byts, &resp); err != nil {
		return nil, fmt.Errorf("error decoding subscription list: %s", err)
	}

	return resp.Subscriptions, nil
}

// QuickAdd subscribes the account to a feed url and reports the stream id
// the remote assigned.
func (c *Client) QuickAdd(ctx context.Context, feedURL string) (string, error) {
	editToken, err := c.auth.EditToken(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting edit token: %w", err)
	}

	form := url.Values{}
	form.Set("quickadd", feedURL)
	form.Set("T", editToken)

	byts, err := c.do(ctx, http.MethodPost, c.endpoint("subscription/quickadd", nil), form)
	if err != nil {
		return "", fmt.Errorf("error subscribing: %w", err)
	}

	var resp quickAddResponse
	if err := json.Unmarshal(byts, &resp); err != nil {
		return "", fmt.Errorf("error decoding quickadd response: %s", err)
	}
	if resp.StreamID == "" {
		return "", fmt.Errorf("remote did not accept subscription")
	}

	return resp.StreamID, nil
}

// EditSubscriptionLabel attaches or detaches a label on a subscription.
func (c *Client) EditSubscriptionLabel(ctx context.Context, subID, labelID string, add bool) error {
	editToken, err := c.auth.EditToken(ctx)
	if err != nil {
		return fmt.Errorf("error getting edit token: %w", err)
	}

	action := "r"
	if add {
		action = "a"
	}
	form := url.Values{}
	form.Set("s", subID)
	form.Set("ac", "edit")
	form.Set(action, "user/-/"+labelID)
	form.Set("T", editToken)

	if _, err := c.do(ctx, http.MethodPost, c.endpoint("subscription/edit", nil), form); err != nil {
		return fmt.Errorf("error editing subscription: %w", err)
	}

	return nil
}
