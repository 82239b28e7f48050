// Package gamesvc is the HTTP client for the server-authoritative game
// service. Every call is context-bound; transient 5xx responses are retried
// with exponential backoff, 404 is surfaced as ErrNotFound so callers can
// degrade features the server has not deployed yet.
package gamesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrNotFound marks a 404 response. Draw-offer endpoints return it while the
// feature is not deployed; callers must treat it as "unsupported", not as a
// failure.
var ErrNotFound = errors.New("game service: not found")

// HeaderProvider injects per-request headers (auth token, user id).
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionDetail fetches the authoritative state of one game.
func (c *Client) SessionDetail(ctx context.Context, sessionID string) (*SessionDetailResponse, error) {
	var resp SessionDetailResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(sessionID), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MoveHistory fetches the ply list, PGN, and per-ply FEN snapshots.
func (c *Client) MoveHistory(ctx context.Context, sessionID string) (*MoveHistoryResponse, error) {
	var resp MoveHistoryResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(sessionID)+"/moves", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitMove sends one ply. The caller never re-sends on failure; the server
// is the arbiter of whether the move landed.
func (c *Client) SubmitMove(ctx context.Context, req SubmitMoveRequest) (*SubmitMoveResponse, error) {
	var resp SubmitMoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+url.PathEscape(req.SessionID)+"/move", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions lists the user's games filtered by status ("active",
// "completed").
func (c *Client) ListSessions(ctx context.Context, status string) (*SessionListResponse, error) {
	var resp SessionListResponse
	path := "/api/games?status=" + url.QueryEscape(status)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Resign(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+url.PathEscape(sessionID)+"/resign", nil, nil, false)
}

// SaveResult records a terminal result the client observed locally, e.g. a
// draw agreement.
func (c *Client) SaveResult(ctx context.Context, req SaveResultRequest) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+url.PathEscape(req.SessionID)+"/result", req, nil, false)
}

func (c *Client) ListDrawOffers(ctx context.Context, sessionID string) (*DrawOfferListResponse, error) {
	var resp DrawOfferListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(sessionID)+"/draw-offers", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) OfferDraw(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+url.PathEscape(sessionID)+"/draw-offers", nil, nil, false)
}

func (c *Client) RespondDraw(ctx context.Context, sessionID, offerID string, accept bool) error {
	path := "/api/games/" + url.PathEscape(sessionID) + "/draw-offers/" + url.PathEscape(offerID) + "/respond"
	return c.doJSON(ctx, fasthttp.MethodPost, path, DrawRespondRequest{Accept: accept}, nil, false)
}

func (c *Client) CancelDraw(ctx context.Context, sessionID, offerID string) error {
	path := "/api/games/" + url.PathEscape(sessionID) + "/draw-offers/" + url.PathEscape(offerID)
	return c.doJSON(ctx, fasthttp.MethodDelete, path, nil, nil, false)
}

// ListChallenges lists challenges by direction ("outgoing", "incoming").
func (c *Client) ListChallenges(ctx context.Context, direction string) (*ChallengeListResponse, error) {
	var resp ChallengeListResponse
	path := "/api/challenges?direction=" + url.QueryEscape(direction)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/challenges/"+url.PathEscape(challengeID)+"/accept", nil, nil, false)
}

func (c *Client) DeclineChallenge(ctx context.Context, challengeID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/challenges/"+url.PathEscape(challengeID)+"/decline", nil, nil, false)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("game service error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
