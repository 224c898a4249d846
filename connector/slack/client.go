// Copyright 2026 The Kraken Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package slack implements connector.Connector over the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/krakenhq/kraken/connector"
	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/retry"
)

const (
	// DefaultBaseURL is the Slack Web API endpoint.
	DefaultBaseURL = "https://slack.com/api"

	// DefaultPageLimit is the number of messages requested per history page.
	DefaultPageLimit = 100
)

// permanentAPIErrors are Slack error codes that retrying cannot fix.
var permanentAPIErrors = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"account_inactive":  true,
	"token_revoked":     true,
	"missing_scope":     true,
	"channel_not_found": true,
	"not_in_channel":    true,
	"invalid_arguments": true,
	"invalid_cursor":    true,
}

// Client fetches channel history from the Slack Web API and enriches
// messages with resolved author names. It implements connector.Connector.
type Client struct {
	token      string
	baseURL    string
	pageLimit  int
	httpClient *http.Client
	logger     *slog.Logger

	// Workspace users are fetched once and cached for the client lifetime.
	userMu    sync.Mutex
	userCache map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Slack API endpoint (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithPageLimit sets the number of messages requested per page.
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewClient creates a Slack connector with the given bot token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("slack token required")
	}

	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		pageLimit:  DefaultPageLimit,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "slack-connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ connector.Connector = (*Client)(nil)

// FiltersServerSide reports that conversations.history honors the oldest
// bound on the server.
func (c *Client) FiltersServerSide() bool {
	return true
}

// historyMessage is one raw message from conversations.history.
type historyMessage struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
}

// historyResponse is the conversations.history envelope.
type historyResponse struct {
	OK               bool             `json:"ok"`
	Error            string           `json:"error"`
	Messages         []historyMessage `json:"messages"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// FetchPage retrieves one page of channel history created after since.
// Slack returns messages newest-first; the page is re-sorted ascending.
// System messages (subtype set) and empty-text messages are dropped here,
// mirroring what a human would consider channel content.
func (c *Client) FetchPage(ctx context.Context, channel string, since time.Time, pageToken string) (*connector.Page, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if !since.IsZero() {
		params.Set("oldest", slackTimestamp(since))
	}
	if pageToken != "" {
		params.Set("cursor", pageToken)
	}

	var resp historyResponse
	if err := c.call(ctx, "conversations.history", params, &resp); err != nil {
		return nil, err
	}

	users, err := c.userMap(ctx)
	if err != nil {
		// Author enrichment is best effort: fall back to raw user IDs.
		c.logger.Warn("failed to fetch user list, using raw user ids", "err", err)
		users = map[string]string{}
	}

	skipped := 0
	items := make([]*core.Item, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if msg.Subtype != "" || msg.Text == "" {
			skipped++
			continue
		}

		author := msg.User
		if name, ok := users[msg.User]; ok {
			author = name
		}

		createdAt, err := parseSlackTimestamp(msg.TS)
		if err != nil {
			c.logger.Warn("skipping message with malformed timestamp", "ts", msg.TS)
			skipped++
			continue
		}

		items = append(items, &core.Item{
			ExternalID: channel + "_" + msg.TS,
			Content:    msg.Text,
			Author:     author,
			Channel:    channel,
			CreatedAt:  createdAt,
			ThreadRef:  msg.ThreadTS,
			Permalink:  permalink(channel, msg.TS),
			Metadata: map[string]string{
				"type":    msg.Type,
				"user_id": msg.User,
			},
		})
	}

	slices.SortFunc(items, func(a, b *core.Item) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})

	return &connector.Page{
		Items:         items,
		NextPageToken: resp.ResponseMetadata.NextCursor,
		Skipped:       skipped,
	}, nil
}

// userListResponse is the users.list envelope.
type userListResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Members []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Deleted  bool   `json:"deleted"`
	} `json:"members"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// userMap fetches all workspace users once and caches the id -> name mapping.
func (c *Client) userMap(ctx context.Context) (map[string]string, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()

	if c.userCache != nil {
		return c.userCache, nil
	}

	users := make(map[string]string)
	cursor := ""
	for {
		params := url.Values{}
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp userListResponse
		if err := c.call(ctx, "users.list", params, &resp); err != nil {
			return nil, err
		}

		for _, member := range resp.Members {
			if member.Deleted {
				continue
			}
			name := member.RealName
			if name == "" {
				name = member.Name
			}
			if name == "" {
				name = member.ID
			}
			users[member.ID] = name
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}

	c.logger.Debug("cached workspace users", "count", len(users))
	c.userCache = users
	return users, nil
}

// apiEnvelope is the portion of every Slack response needed for error handling.
type apiEnvelope interface {
	ok() (bool, string)
}

func (r *historyResponse) ok() (bool, string)  { return r.OK, r.Error }
func (r *userListResponse) ok() (bool, string) { return r.OK, r.Error }

// call performs one Slack Web API request and decodes the response,
// classifying HTTP and API-level failures for the retry policy.
func (c *Client) call(ctx context.Context, method string, params url.Values, out apiEnvelope) error {
	op := "slack " + method

	endpoint := c.baseURL + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if retry.KindFromStatus(resp.StatusCode) == retry.KindTransient {
			return retry.Transient(op, err)
		}
		return retry.Permanent(op, err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(op, err)
	}

	if ok, apiErr := out.ok(); !ok {
		err := fmt.Errorf("slack api error: %s", apiErr)
		if permanentAPIErrors[apiErr] {
			return retry.Permanent(op, err)
		}
		// Unknown API errors (e.g. ratelimited, fatal_error) lean transient.
		return retry.Transient(op, err)
	}

	return nil
}

// slackTimestamp formats a time as a Slack "seconds.microseconds" timestamp.
func slackTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// parseSlackTimestamp parses a Slack "seconds.microseconds" timestamp.
func parseSlackTimestamp(ts string) (time.Time, error) {
	secPart, microPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var micro int64
	if microPart != "" {
		micro, err = strconv.ParseInt(microPart, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(sec, micro*1000).UTC(), nil
}

// permalink builds the archive link for a message.
func permalink(channel, ts string) string {
	return fmt.Sprintf("https://slack.com/archives/%s/p%s", channel, strings.ReplaceAll(ts, ".", ""))
}
