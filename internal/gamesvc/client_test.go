package gamesvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, opts...)
}

func TestSessionDetailDecodesGame(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/games/g42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SessionDetailResponse{
			Success: true,
			Game: GameDetail{
				Position:    "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
				Status:      "active",
				YourTurn:    true,
				YourColor:   "white",
				Opponent:    "coach-bot",
				TimeControl: 60,
			},
		})
	})
	c := newTestClient(t, handler)

	resp, err := c.SessionDetail(context.Background(), "g42")
	if err != nil {
		t.Fatalf("SessionDetail: %v", err)
	}
	if !resp.Success || resp.Game.Status != "active" || !resp.Game.YourTurn {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHeaderProviderApplied(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(SimpleResponse{Success: true})
	})
	c := newTestClient(t, handler, WithHeaderProvider(func() map[string]string {
		return map[string]string{"Authorization": "Bearer tkn"}
	}))

	if err := c.Resign(context.Background(), "g1"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if gotAuth != "Bearer tkn" {
		t.Fatalf("auth header not sent, got %q", gotAuth)
	}
}

func TestNotFoundIsSentinel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newTestClient(t, handler)

	_, err := c.ListDrawOffers(context.Background(), "g1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(SessionListResponse{Success: true})
	})
	c := newTestClient(t, handler, WithRetry(3))

	resp, err := c.ListSessions(context.Background(), "active")
	if err != nil {
		t.Fatalf("ListSessions after retries: %v", err)
	}
	if !resp.Success {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSubmitMoveNotRetried(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, handler, WithRetry(5))

	_, err := c.SubmitMove(context.Background(), SubmitMoveRequest{SessionID: "g1", Move: "e2e4"})
	if err == nil {
		t.Fatalf("expected error from 500")
	}
	if calls.Load() != 1 {
		t.Fatalf("move submission must not be re-sent, got %d attempts", calls.Load())
	}
}

func TestContextDeadlineRespected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	c := newTestClient(t, handler, WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.SessionDetail(ctx, "g1")
	if err == nil {
		t.Fatalf("expected deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("client ignored context deadline")
	}
}
