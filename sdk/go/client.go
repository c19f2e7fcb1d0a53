package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"scuolakit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the portal gamification HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// AwardAction awards the fixed XP value for one qualifying action.
func (c *Client) AwardAction(ctx context.Context, userID string, action string) (Award, error) {
	if strings.TrimSpace(userID) == "" {
		return Award{}, ErrEmptyUserID
	}
	q := url.Values{}
	q.Set("action", action)
	return c.postAward(ctx, userID, "xp", q)
}

// AwardXP awards an arbitrary non-negative number of points with a reason.
func (c *Client) AwardXP(ctx context.Context, userID string, points int64, reason string) (Award, error) {
	if strings.TrimSpace(userID) == "" {
		return Award{}, ErrEmptyUserID
	}
	q := url.Values{}
	q.Set("points", strconv.FormatInt(points, 10))
	q.Set("reason", reason)
	return c.postAward(ctx, userID, "xp", q)
}

// SubmitQuiz reports a quiz completion; XP is proportional to the score.
func (c *Client) SubmitQuiz(ctx context.Context, userID string, percentage int64) (Award, error) {
	if strings.TrimSpace(userID) == "" {
		return Award{}, ErrEmptyUserID
	}
	q := url.Values{}
	q.Set("percentage", strconv.FormatInt(percentage, 10))
	return c.postAward(ctx, userID, "quiz", q)
}

func (c *Client) postAward(ctx context.Context, userID, op string, q url.Values) (Award, error) {
	u := fmt.Sprintf("%s/users/%s/%s?%s", c.baseURL, url.PathEscape(userID), op, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return Award{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Award{}, err
	}
	defer resp.Body.Close()

	var award Award
	if err := decodeJSON(resp, &award); err != nil {
		return Award{}, err
	}
	return award, nil
}

// EvaluateBadges runs a badge evaluation pass and returns newly granted badges.
func (c *Client) EvaluateBadges(ctx context.Context, userID string) (Evaluation, error) {
	if strings.TrimSpace(userID) == "" {
		return Evaluation{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/badges/evaluate", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return Evaluation{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Evaluation{}, err
	}
	defer resp.Body.Close()

	var ev Evaluation
	if err := decodeJSON(resp, &ev); err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}

// GetUser fetches the user snapshot and held badges.
func (c *Client) GetUser(ctx context.Context, userID string) (Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Profile{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	var p Profile
	if err := decodeJSON(resp, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// BadgeProgress fetches earned/total/percentage for a user.
func (c *Client) BadgeProgress(ctx context.Context, userID string) (Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/progress", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Progress{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Progress{}, err
	}
	defer resp.Body.Close()

	var p Progress
	if err := decodeJSON(resp, &p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Leaderboard fetches the top XP earners.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	u := fmt.Sprintf("%s/leaderboard?limit=%d", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// Catalog fetches the badge catalog.
func (c *Client) Catalog(ctx context.Context) ([]BadgeInfo, error) {
	u := c.baseURL + "/badges"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Badges []BadgeInfo `json:"badges"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Badges, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
