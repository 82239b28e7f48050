package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/engine"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/gamesvc"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/identity"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/rules"
	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

var (
	// ErrLoading is returned for input arriving before the initial fetch
	// completed.
	ErrLoading = errors.New("session still loading")
	// ErrSessionOver is returned for input after the terminal transition.
	ErrSessionOver = errors.New("session is over")
	// ErrNotYourTurn is returned when the opponent is to move.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNoSession is returned when no session has been opened.
	ErrNoSession = errors.New("no open session")
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultTurnBudget        = 60 * time.Second
	defaultFailureThreshold  = 5
	defaultTeardownGrace     = 3 * time.Second
	defaultChallengeInterval = 10 * time.Second
)

// gameClient is the slice of the game service surface the controller needs.
// *gamesvc.Client satisfies it.
type gameClient interface {
	SessionDetail(ctx context.Context, sessionID string) (*gamesvc.SessionDetailResponse, error)
	MoveHistory(ctx context.Context, sessionID string) (*gamesvc.MoveHistoryResponse, error)
	SubmitMove(ctx context.Context, req gamesvc.SubmitMoveRequest) (*gamesvc.SubmitMoveResponse, error)
	ListSessions(ctx context.Context, status string) (*gamesvc.SessionListResponse, error)
	Resign(ctx context.Context, sessionID string) error
	SaveResult(ctx context.Context, req gamesvc.SaveResultRequest) error
	ListChallenges(ctx context.Context, direction string) (*gamesvc.ChallengeListResponse, error)
	AcceptChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID string) error
}

// Option configures a Controller.
type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithTurnBudget sets the fixed per-turn countdown budget.
func WithTurnBudget(d time.Duration) Option {
	return func(c *Controller) { c.turnBudget = d }
}

func WithFailureThreshold(n int) Option {
	return func(c *Controller) { c.failureThreshold = n }
}

// WithClock injects the time source used for countdown derivation. Tests
// use it; production keeps time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithTeardownGrace(d time.Duration) Option {
	return func(c *Controller) { c.teardownGrace = d }
}

// WithConnectivityCallback is invoked once when consecutive poll failures
// reach the threshold and polling hard-stops.
func WithConnectivityCallback(fn func(error)) Option {
	return func(c *Controller) { c.onConnectivity = fn }
}

// WithTerminalCallback is invoked once when the session transitions to
// Terminal, with the reason and result when known.
func WithTerminalCallback(fn func(reason, result string)) Option {
	return func(c *Controller) { c.onTerminal = fn }
}

// WithTeardownCallback runs after the terminal grace delay, typically to
// navigate away from the finished game.
func WithTeardownCallback(fn func()) Option {
	return func(c *Controller) { c.onTeardown = fn }
}

// WithEngine attaches an engine that plays the opposing side. When it is
// not the local user's turn the controller requests a best move and submits
// it; used for the vs-computer mode only.
func WithEngine(h engine.Handle) Option {
	return func(c *Controller) { c.engine = h }
}

// Controller owns the authoritative-vs-local reconciliation loop for one
// session. There is exactly one mutable session record per open game and
// this controller is its only writer.
type Controller struct {
	client gameClient
	user   identity.User

	pollInterval     time.Duration
	turnBudget       time.Duration
	failureThreshold int
	teardownGrace    time.Duration
	now              func() time.Time

	onConnectivity func(error)
	onTerminal     func(reason, result string)
	onTeardown     func()
	engine         engine.Handle

	mu        sync.Mutex
	snap      Snapshot
	opened    bool
	closed    bool
	failures  int
	engineFor string

	ctx       context.Context
	cancel    context.CancelFunc
	teardown  *time.Timer
	switcher  []clientdto.SessionSummary
	discoErr  error
	discoOnce sync.Once

	wg sync.WaitGroup
}

// NewController builds a controller bound to a game service client and the
// local user's identity. Open starts a session; the controller is inert
// until then.
func NewController(client gameClient, user identity.User, opts ...Option) *Controller {
	c := &Controller{
		client:           client,
		user:             user,
		pollInterval:     defaultPollInterval,
		turnBudget:       defaultTurnBudget,
		failureThreshold: defaultFailureThreshold,
		teardownGrace:    defaultTeardownGrace,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open fetches the full session detail and history, then starts the merged
// poll loop and the countdown tick. Move submission is rejected until Open
// returns.
func (c *Controller) Open(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionOver
	}
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("session %s already open", c.snap.SessionID)
	}
	c.opened = true
	c.snap = Snapshot{
		SessionID:         sessionID,
		Phase:             PhaseLoading,
		TurnBudgetSeconds: int(c.turnBudget / time.Second),
		ViewPly:           -1,
	}
	c.mu.Unlock()

	detail, history, err := c.fetchBoth(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		c.opened = false
		c.mu.Unlock()
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrSessionOver
	}
	c.ctx = sessionCtx
	c.cancel = cancel
	c.wg.Add(2)
	c.mu.Unlock()

	c.apply(detail, history)
	obslog.L().Info("session_opened",
		zap.String("session_id", sessionID),
		zap.String("your_color", string(c.Snapshot().YourColor)),
	)

	go c.pollLoop(sessionCtx)
	go c.countdownLoop(sessionCtx)
	return nil
}

// Snapshot returns the current immutable session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// SubmitMove validates locally, applies optimistically, and sends the move
// in the background. The move is never re-sent: on a send failure the
// controller re-fetches server state instead.
func (c *Controller) SubmitMove(_ context.Context, mv clientdto.Move) error {
	c.mu.Lock()
	switch {
	case !c.opened || c.closed:
		c.mu.Unlock()
		return ErrNoSession
	case c.snap.Phase == PhaseLoading:
		c.mu.Unlock()
		return ErrLoading
	case c.snap.Phase == PhaseTerminal:
		c.mu.Unlock()
		return ErrSessionOver
	case !c.snap.YourTurn:
		c.mu.Unlock()
		return ErrNotYourTurn
	}
	position := c.snap.Position
	sessionID := c.snap.SessionID
	sessionCtx := c.ctx
	c.mu.Unlock()

	// Illegal input never reaches the network.
	next, err := rules.ApplyMove(position, mv)
	if err != nil {
		return err
	}
	plies, err := rules.HistoryEntries(position, []string{mv.UCI()})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.snap.Position != position {
		// A poll landed between validation and apply; server already won.
		c.mu.Unlock()
		return nil
	}
	snap := c.snap.clone()
	snap.Position = next
	snap.YourTurn = false
	snap.LastMoveAt = c.now()
	ply := plies[0]
	ply.Index = len(snap.Moves)
	snap.Moves = append(snap.Moves, ply)
	snap.FENHistory = append(snap.FENHistory, next)
	snap.TimeLeftSeconds = snap.TurnBudgetSeconds
	c.snap = snap
	// Add while holding mu so Close (which flips closed under mu before
	// waiting) can never observe the group mid-Add.
	c.wg.Add(1)
	c.mu.Unlock()

	go c.sendMove(sessionCtx, sessionID, mv, next)
	c.maybeEngineTurn()
	return nil
}

func (c *Controller) sendMove(ctx context.Context, sessionID string, mv clientdto.Move, resulting string) {
	defer c.wg.Done()
	resp, err := c.client.SubmitMove(ctx, gamesvc.SubmitMoveRequest{
		SessionID:         sessionID,
		Move:              mv.UCI(),
		ResultingPosition: resulting,
	})
	if err != nil {
		obslog.L().Warn("move_submit_failed",
			zap.String("session_id", sessionID),
			zap.String("move", mv.UCI()),
			zap.Error(err),
		)
		// Resync; the server decides whether the move landed.
		c.refetch(ctx, sessionID)
		return
	}
	c.mu.Lock()
	if c.snap.SessionID == sessionID && !resp.LastMoveAt.IsZero() {
		snap := c.snap.clone()
		snap.LastMoveAt = resp.LastMoveAt
		c.snap = snap
	}
	c.mu.Unlock()
	obslog.L().Debug("move_submitted",
		zap.String("session_id", sessionID),
		zap.String("move", mv.UCI()),
	)
}

// GoToPly changes the displayed position to the one after ply i, or back to
// live for a negative or out-of-range index. The live position is untouched.
func (c *Controller) GoToPly(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snap.clone()
	if i < 0 || i >= len(snap.FENHistory) {
		snap.ViewPly = -1
		snap.ViewPosition = snap.Position
	} else {
		snap.ViewPly = i
		snap.ViewPosition = snap.FENHistory[i]
	}
	c.snap = snap
}

// Resign forfeits the open session. The result is recorded for the
// opponent and the controller transitions to Terminal.
func (c *Controller) Resign(ctx context.Context) error {
	c.mu.Lock()
	if !c.opened || c.closed || c.snap.Phase != PhaseActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	sessionID := c.snap.SessionID
	color := c.snap.YourColor
	c.mu.Unlock()

	if err := c.client.Resign(ctx, sessionID); err != nil {
		return fmt.Errorf("resign: %w", err)
	}
	result := clientdto.ResultWhiteWins
	if color == clientdto.White {
		result = clientdto.ResultBlackWins
	}
	if err := c.client.SaveResult(ctx, gamesvc.SaveResultRequest{SessionID: sessionID, Result: result}); err != nil {
		obslog.L().Warn("save_result_failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	c.markTerminal("resignation", result)
	return nil
}

// FinishWithResult applies an externally decided terminal outcome, such as
// an accepted draw. The result is persisted in the background.
func (c *Controller) FinishWithResult(reason, result string) {
	c.mu.Lock()
	if !c.opened || c.closed || c.snap.Phase != PhaseActive {
		c.mu.Unlock()
		return
	}
	sessionID := c.snap.SessionID
	c.wg.Add(1)
	c.mu.Unlock()

	// The terminal transition cancels the session context, so the save runs
	// on its own deadline.
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.client.SaveResult(ctx, gamesvc.SaveResultRequest{SessionID: sessionID, Result: result}); err != nil {
			obslog.L().Warn("save_result_failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
	c.markTerminal(reason, result)
}

// Close cancels every poll, timer, and in-flight send. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	teardown := c.teardown
	c.teardown = nil
	sessionID := c.snap.SessionID
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if teardown != nil {
		teardown.Stop()
	}
	c.wg.Wait()
	obslog.L().Info("session_closed", zap.String("session_id", sessionID))
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce runs one merged detail+history tick. It reports false when
// polling must stop.
func (c *Controller) pollOnce(ctx context.Context) bool {
	c.mu.Lock()
	if c.snap.Phase == PhaseTerminal || c.closed {
		c.mu.Unlock()
		return false
	}
	sessionID := c.snap.SessionID
	c.mu.Unlock()

	detail, history, err := c.fetchBoth(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return c.recordFailure(err)
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
	c.apply(detail, history)

	c.mu.Lock()
	stillActive := c.snap.Phase == PhaseActive
	c.mu.Unlock()
	return stillActive
}

func (c *Controller) recordFailure(err error) bool {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	threshold := c.failureThreshold
	sessionID := c.snap.SessionID
	cb := c.onConnectivity
	c.mu.Unlock()

	if failures < threshold {
		obslog.L().Debug("session_poll_failed",
			zap.String("session_id", sessionID),
			zap.Int("consecutive", failures),
			zap.Error(err),
		)
		return true
	}
	obslog.L().Error("session_connectivity_lost",
		zap.String("session_id", sessionID),
		zap.Int("consecutive", failures),
		zap.Error(err),
	)
	if cb != nil {
		cb(fmt.Errorf("%d consecutive poll failures: %w", failures, err))
	}
	return false
}

func (c *Controller) fetchBoth(ctx context.Context, sessionID string) (*gamesvc.SessionDetailResponse, *gamesvc.MoveHistoryResponse, error) {
	detail, err := c.client.SessionDetail(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	history, err := c.client.MoveHistory(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return detail, history, nil
}

func (c *Controller) refetch(ctx context.Context, sessionID string) {
	detail, history, err := c.fetchBoth(ctx, sessionID)
	if err != nil {
		obslog.L().Debug("session_refetch_failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	c.apply(detail, history)
}

// apply reconciles one server response into the snapshot. Server wins: the
// state is replaced wholesale when position or lastMoveAt differ, never
// merged field by field.
func (c *Controller) apply(detail *gamesvc.SessionDetailResponse, history *gamesvc.MoveHistoryResponse) {
	game := detail.Game

	if !strings.EqualFold(game.Status, "active") {
		reason := game.Reason
		result := ""
		if term, err := rules.IsGameOver(game.Position); err == nil && term.Over {
			if reason == "" {
				reason = string(term.Reason)
			}
			result = term.Result
		}
		c.mu.Lock()
		snap := c.replaceLocked(game, history)
		snap.Status = game.Status
		c.snap = snap
		c.mu.Unlock()
		c.markTerminal(reason, result)
		return
	}

	c.mu.Lock()
	changed := c.snap.Phase == PhaseLoading ||
		c.snap.Position != game.Position ||
		!c.snap.LastMoveAt.Equal(game.LastMove)
	if !changed {
		c.mu.Unlock()
		return
	}
	desync := c.snap.Phase == PhaseActive && c.snap.Position != game.Position
	snap := c.replaceLocked(game, history)
	snap.Phase = PhaseActive
	c.snap = snap
	sessionID := snap.SessionID
	c.mu.Unlock()

	if desync {
		obslog.L().Debug("session_poll_desync", zap.String("session_id", sessionID))
	}
	c.maybeEngineTurn()
}

// maybeEngineTurn kicks off one engine request when an engine is attached
// and it is the opposing side's move. At most one request per position.
func (c *Controller) maybeEngineTurn() {
	c.mu.Lock()
	if c.engine == nil || c.closed || c.snap.Phase != PhaseActive || c.snap.YourTurn {
		c.mu.Unlock()
		return
	}
	position := c.snap.Position
	if c.engineFor == position {
		c.mu.Unlock()
		return
	}
	c.engineFor = position
	sessionID := c.snap.SessionID
	ctx := c.ctx
	budget := c.turnBudget
	c.wg.Add(1)
	c.mu.Unlock()

	go c.engineMove(ctx, sessionID, position, budget)
}

func (c *Controller) engineMove(ctx context.Context, sessionID, position string, budget time.Duration) {
	defer c.wg.Done()
	mv := c.engine.BestMove(ctx, position, budget)
	if ctx.Err() != nil {
		return
	}
	next, err := rules.ApplyMove(position, mv)
	if err != nil {
		obslog.L().Warn("engine_move_rejected",
			zap.String("session_id", sessionID),
			zap.String("move", mv.UCI()),
			zap.Error(err),
		)
		return
	}
	if _, err := c.client.SubmitMove(ctx, gamesvc.SubmitMoveRequest{
		SessionID:         sessionID,
		Move:              mv.UCI(),
		ResultingPosition: next,
	}); err != nil {
		obslog.L().Warn("engine_move_submit_failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	obslog.L().Debug("engine_move_submitted",
		zap.String("session_id", sessionID),
		zap.String("move", mv.UCI()),
	)
	c.refetch(ctx, sessionID)
}

// replaceLocked builds the wholesale-replaced snapshot from a server
// response. Caller holds c.mu.
func (c *Controller) replaceLocked(game gamesvc.GameDetail, history *gamesvc.MoveHistoryResponse) Snapshot {
	snap := Snapshot{
		SessionID:         c.snap.SessionID,
		Phase:             c.snap.Phase,
		Position:          game.Position,
		YourColor:         sideFromString(game.YourColor),
		Orientation:       sideFromString(game.YourColor),
		YourTurn:          game.YourTurn,
		Opponent:          game.Opponent,
		Status:            game.Status,
		LastMoveAt:        game.LastMove,
		TurnBudgetSeconds: c.snap.TurnBudgetSeconds,
		ViewPly:           -1,
		ViewPosition:      game.Position,
	}
	if game.TimeControl > 0 {
		snap.TurnBudgetSeconds = game.TimeControl
	}
	if history != nil {
		snap.PGN = history.PGN
		snap.FENHistory = append([]string(nil), history.FENHistory...)
		if plies, err := rules.HistoryEntries(rules.StartPosition, history.Moves); err == nil {
			snap.Moves = plies
		} else {
			obslog.L().Warn("history_parse_failed", zap.String("session_id", snap.SessionID), zap.Error(err))
		}
	}
	snap.TimeLeftSeconds = c.timeLeftLocked(snap)
	return snap
}

func (c *Controller) markTerminal(reason, result string) {
	c.mu.Lock()
	if c.snap.Phase == PhaseTerminal {
		c.mu.Unlock()
		return
	}
	snap := c.snap.clone()
	snap.Phase = PhaseTerminal
	snap.TerminalReason = reason
	snap.Result = result
	c.snap = snap
	cancel := c.cancel
	cb := c.onTerminal
	teardownFn := c.onTeardown
	sessionID := snap.SessionID
	if teardownFn != nil && c.teardown == nil && !c.closed {
		c.teardown = time.AfterFunc(c.teardownGrace, teardownFn)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	obslog.L().Info("session_terminal",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
		zap.String("result", result),
	)
	if cb != nil {
		cb(reason, result)
	}
}

func (c *Controller) countdownLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.snap.Phase == PhaseActive {
				snap := c.snap.clone()
				snap.TimeLeftSeconds = c.timeLeftLocked(snap)
				c.snap = snap
			}
			c.mu.Unlock()
		}
	}
}

// timeLeftLocked derives the presentational countdown. It never goes
// negative and no action is taken at zero. Caller holds c.mu.
func (c *Controller) timeLeftLocked(snap Snapshot) int {
	if snap.Phase != PhaseActive || !snap.YourTurn {
		return snap.TurnBudgetSeconds
	}
	elapsed := int(c.now().Sub(snap.LastMoveAt) / time.Second)
	left := snap.TurnBudgetSeconds - elapsed
	if left < 0 {
		return 0
	}
	return left
}

func sideFromString(s string) clientdto.Side {
	if strings.EqualFold(s, "black") || strings.EqualFold(s, "b") {
		return clientdto.Black
	}
	return clientdto.White
}
