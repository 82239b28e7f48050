package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/gamesvc"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/identity"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// ActiveSessions populates the session switcher. The list is fetched once
// per controller and cached; each entry is annotated with the local user's
// color and the opponent's name.
func (c *Controller) ActiveSessions(ctx context.Context) ([]clientdto.SessionSummary, error) {
	c.discoOnce.Do(func() {
		resp, err := c.client.ListSessions(ctx, "active")
		if err != nil {
			c.discoErr = fmt.Errorf("list sessions: %w", err)
			return
		}
		c.mu.Lock()
		c.switcher = annotate(resp.Games, c.user)
		c.mu.Unlock()
	})
	if c.discoErr != nil {
		return nil, c.discoErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]clientdto.SessionSummary(nil), c.switcher...), nil
}

// annotate resolves color and opponent per entry by comparing participant
// ids against the identity blob, matching by name when the id is absent and
// defaulting to white when neither matches.
func annotate(entries []gamesvc.SessionListEntry, user identity.User) []clientdto.SessionSummary {
	out := make([]clientdto.SessionSummary, 0, len(entries))
	for _, e := range entries {
		s := clientdto.SessionSummary{
			ID:         e.ID,
			Status:     e.Status,
			LastMoveAt: e.LastMoveAt,
		}
		switch {
		case user.Known() && user.ID == e.BlackID:
			s.YourColor = clientdto.Black
			s.Opponent = e.WhiteName
		case user.Known() && user.ID == e.WhiteID:
			s.YourColor = clientdto.White
			s.Opponent = e.BlackName
		case user.Name != "" && user.Name == e.BlackName:
			s.YourColor = clientdto.Black
			s.Opponent = e.WhiteName
		default:
			s.YourColor = clientdto.White
			s.Opponent = e.BlackName
		}
		out = append(out, s)
	}
	return out
}

const (
	challengeDirOutgoing = "outgoing"
	challengeDirIncoming = "incoming"
)

// ChallengeWatcher polls outgoing challenges while no session is open and
// signals when one flips to accepted so the caller can navigate into the
// new game.
type ChallengeWatcher struct {
	client   gameClient
	interval time.Duration
	onAccept func(sessionID string)

	mu       sync.Mutex
	notified map[string]bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewChallengeWatcher builds a watcher. onAccept receives the new session
// id; it fires once per challenge.
func NewChallengeWatcher(client gameClient, interval time.Duration, onAccept func(sessionID string)) *ChallengeWatcher {
	if interval <= 0 {
		interval = defaultChallengeInterval
	}
	return &ChallengeWatcher{
		client:   client,
		interval: interval,
		onAccept: onAccept,
		notified: make(map[string]bool),
	}
}

// Start launches the poll loop until Stop or context end.
func (w *ChallengeWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				w.checkOnce(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (w *ChallengeWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Incoming lists challenges still awaiting our answer.
func (w *ChallengeWatcher) Incoming(ctx context.Context) ([]gamesvc.ChallengeEntry, error) {
	resp, err := w.client.ListChallenges(ctx, challengeDirIncoming)
	if err != nil {
		return nil, fmt.Errorf("list incoming challenges: %w", err)
	}
	pending := make([]gamesvc.ChallengeEntry, 0, len(resp.Challenges))
	for _, ch := range resp.Challenges {
		if ch.Status == "pending" {
			pending = append(pending, ch)
		}
	}
	return pending, nil
}

// Accept answers an incoming challenge and returns the session id of the
// game the server created for it.
func (w *ChallengeWatcher) Accept(ctx context.Context, challengeID string) (string, error) {
	if err := w.client.AcceptChallenge(ctx, challengeID); err != nil {
		return "", fmt.Errorf("accept challenge %s: %w", challengeID, err)
	}
	obslog.L().Info("challenge_answered",
		zap.String("challenge_id", challengeID),
		zap.String("answer", "accept"),
	)
	// The accept endpoint returns no body; the created game id shows up on
	// the challenge entry once the server has processed the accept.
	resp, err := w.client.ListChallenges(ctx, challengeDirIncoming)
	if err != nil {
		return "", fmt.Errorf("resolve accepted challenge %s: %w", challengeID, err)
	}
	for _, ch := range resp.Challenges {
		if ch.ID == challengeID {
			return ch.GameID, nil
		}
	}
	return "", nil
}

// Decline answers an incoming challenge negatively.
func (w *ChallengeWatcher) Decline(ctx context.Context, challengeID string) error {
	if err := w.client.DeclineChallenge(ctx, challengeID); err != nil {
		return fmt.Errorf("decline challenge %s: %w", challengeID, err)
	}
	obslog.L().Info("challenge_answered",
		zap.String("challenge_id", challengeID),
		zap.String("answer", "decline"),
	)
	return nil
}

func (w *ChallengeWatcher) checkOnce(ctx context.Context) {
	resp, err := w.client.ListChallenges(ctx, challengeDirOutgoing)
	if err != nil {
		obslog.L().Debug("challenge_poll_failed", zap.Error(err))
		return
	}
	for _, ch := range resp.Challenges {
		if ch.Status != "accepted" || ch.GameID == "" {
			continue
		}
		w.mu.Lock()
		seen := w.notified[ch.ID]
		w.notified[ch.ID] = true
		w.mu.Unlock()
		if seen {
			continue
		}
		obslog.L().Info("challenge_accepted",
			zap.String("challenge_id", ch.ID),
			zap.String("session_id", ch.GameID),
		)
		if w.onAccept != nil {
			w.onAccept(ch.GameID)
		}
	}
}
