package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

const readyTimeout = 4 * time.Second

// process is the wire to a running engine. Tests substitute an in-memory
// implementation; production uses startUCIProcess.
type process interface {
	send(cmd string) error
	lines() <-chan string
	close() error
}

type starter func(binaryPath string) (process, error)

type requestKind int

const (
	kindMove requestKind = iota
	kindEval
)

// pendingRequest is one entry of the typed pending-request table. Requests
// are keyed by a uuid rather than a position fingerprint so near-identical
// positions can never collide. The reader goroutine dispatches engine
// output into lines.
type pendingRequest struct {
	id    string
	kind  requestKind
	fen   string
	depth int
	lines chan string
}

type localBackend struct {
	binaryPath   string
	fallbackPath string
	start        starter

	// mu serializes the wire: the UCI protocol supports one search at a
	// time, so concurrent callers queue here.
	mu       sync.Mutex
	proc     process
	procDone chan struct{}
	degraded bool
	closed   bool
	skill    int

	// pmu guards the request table; the reader goroutine takes it while
	// callers hold mu.
	pmu      sync.Mutex
	pending  map[string]*pendingRequest
	activeID string
}

func newLocal(cfg Config, start starter) *localBackend {
	return &localBackend{
		binaryPath:   cfg.BinaryPath,
		fallbackPath: cfg.FallbackBinaryPath,
		start:        start,
		skill:        cfg.SkillLevel,
		pending:      make(map[string]*pendingRequest),
	}
}

// register enters a request into the pending table and marks it active on
// the wire.
func (b *localBackend) register(kind requestKind, fen string, depth int) *pendingRequest {
	req := &pendingRequest{
		id:    uuid.NewString(),
		kind:  kind,
		fen:   fen,
		depth: depth,
		lines: make(chan string, 64),
	}
	b.pmu.Lock()
	b.pending[req.id] = req
	b.activeID = req.id
	b.pmu.Unlock()
	return req
}

func (b *localBackend) unregister(id string) {
	b.pmu.Lock()
	delete(b.pending, id)
	if b.activeID == id {
		b.activeID = ""
	}
	b.pmu.Unlock()
}

// readLoop is the per-process reader goroutine. It runs until the process
// output closes and dispatches each line to the active pending request.
func (b *localBackend) readLoop(proc process, done chan struct{}) {
	defer close(done)
	for line := range proc.lines() {
		b.dispatch(line)
	}
}

func (b *localBackend) dispatch(line string) {
	b.pmu.Lock()
	req := b.pending[b.activeID]
	b.pmu.Unlock()
	if req == nil {
		// Stale output from an abandoned search; dropped.
		return
	}
	select {
	case req.lines <- line:
	default:
	}
}

func (b *localBackend) BestMove(ctx context.Context, fen string, budget time.Duration) clientdto.Move {
	if budget <= 0 {
		budget = time.Second
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.degraded {
		return fallbackMove(fen)
	}
	if err := b.ensureProcess(); err != nil {
		return fallbackMove(fen)
	}

	// The whole call, readiness drain included, resolves within
	// budget + slack.
	deadline := time.Now().Add(budget + moveTimeoutSlack)
	req := b.register(kindMove, fen, 0)
	defer b.unregister(req.id)

	if !b.syncReady(ctx, req, minDuration(readyTimeout, budget+moveTimeoutSlack)) {
		b.dropProcess()
		return fallbackMove(fen)
	}
	if err := b.sendSearch(fen, fmt.Sprintf("go movetime %d\n", budget.Milliseconds())); err != nil {
		b.dropProcess()
		return fallbackMove(fen)
	}

	mv, ok := b.awaitBestMove(ctx, req, time.Until(deadline))
	if !ok {
		obslog.L().Warn("engine_fallback",
			zap.String("request_id", req.id),
			zap.String("kind", "move"),
			zap.Duration("budget", budget),
		)
		return fallbackMove(fen)
	}
	return mv
}

func (b *localBackend) Evaluate(ctx context.Context, fen string, depth int) clientdto.Evaluation {
	if depth <= 0 {
		depth = 10
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.degraded {
		return fallbackEvaluation(fen, depth)
	}
	if err := b.ensureProcess(); err != nil {
		return fallbackEvaluation(fen, depth)
	}

	envelope := time.Duration(depth) * evalTimeoutPerDepth
	deadline := time.Now().Add(envelope)
	req := b.register(kindEval, fen, depth)
	defer b.unregister(req.id)

	if !b.syncReady(ctx, req, minDuration(readyTimeout, envelope)) {
		b.dropProcess()
		return fallbackEvaluation(fen, depth)
	}
	if err := b.sendSearch(fen, fmt.Sprintf("go depth %d\n", depth)); err != nil {
		b.dropProcess()
		return fallbackEvaluation(fen, depth)
	}

	eval, ok := b.awaitEvaluation(ctx, req, time.Until(deadline))
	if !ok {
		obslog.L().Warn("engine_fallback",
			zap.String("request_id", req.id),
			zap.String("kind", "evaluation"),
			zap.Int("depth", depth),
		)
		return fallbackEvaluation(fen, depth)
	}
	return eval
}

func (b *localBackend) SetSkillLevel(level int) {
	if level < 0 {
		level = 0
	}
	if level > 20 {
		level = 20
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skill = level
	if b.proc != nil {
		_ = b.proc.send(fmt.Sprintf("setoption name Skill Level value %d\n", level))
	}
}

func (b *localBackend) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.dropProcess()
}

// ensureProcess starts and initializes the engine if needed. Primary binary
// failure falls back to the secondary build; when both fail the backend is
// marked degraded and serves opening-table moves from then on.
func (b *localBackend) ensureProcess() error {
	if b.proc != nil {
		return nil
	}

	proc, err := b.start(b.binaryPath)
	if err != nil && b.fallbackPath != "" {
		obslog.L().Warn("engine_primary_start_failed",
			zap.String("binary", b.binaryPath),
			zap.Error(err),
		)
		proc, err = b.start(b.fallbackPath)
	}
	if err != nil {
		b.degraded = true
		obslog.L().Warn("engine_degraded", zap.Error(err))
		return err
	}

	if err := b.initialize(proc); err != nil {
		_ = proc.close()
		b.degraded = true
		obslog.L().Warn("engine_degraded", zap.Error(err))
		return err
	}
	b.proc = proc
	b.procDone = make(chan struct{})
	go b.readLoop(proc, b.procDone)
	return nil
}

func (b *localBackend) initialize(proc process) error {
	if err := proc.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if !awaitToken(proc.lines(), "uciok", readyTimeout) {
		return fmt.Errorf("wait uciok: timeout")
	}
	if err := proc.send(fmt.Sprintf("setoption name Skill Level value %d\n", b.skill)); err != nil {
		return fmt.Errorf("apply options: %w", err)
	}
	if err := proc.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if !awaitToken(proc.lines(), "readyok", readyTimeout) {
		return fmt.Errorf("wait readyok: timeout")
	}
	return nil
}

// syncReady flushes stale output from a previously abandoned search before
// issuing a new one. The wait is bounded by the caller's own envelope so a
// wedged engine never holds a request past its fallback deadline.
func (b *localBackend) syncReady(ctx context.Context, req *pendingRequest, wait time.Duration) bool {
	if err := b.proc.send("isready\n"); err != nil {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case line := <-req.lines:
			if strings.Contains(line, "readyok") {
				return true
			}
		case <-b.procDone:
			return false
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (b *localBackend) sendSearch(fen, goCmd string) error {
	if err := b.proc.send(positionCommand(fen)); err != nil {
		return err
	}
	return b.proc.send(goCmd)
}

func (b *localBackend) awaitBestMove(ctx context.Context, req *pendingRequest, timeout time.Duration) (clientdto.Move, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line := <-req.lines:
			if strings.HasPrefix(line, "bestmove") {
				parts := strings.Fields(line)
				if len(parts) >= 2 && isWellFormedUCI(parts[1]) {
					return moveFromWire(parts[1]), true
				}
				return clientdto.Move{}, false
			}
		case <-b.procDone:
			b.dropProcess()
			return clientdto.Move{}, false
		case <-timer.C:
			return clientdto.Move{}, false
		case <-ctx.Done():
			return clientdto.Move{}, false
		}
	}
}

func (b *localBackend) awaitEvaluation(ctx context.Context, req *pendingRequest, timeout time.Duration) (clientdto.Evaluation, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		latest clientdto.Evaluation
		seen   bool
	)
	for {
		select {
		case line := <-req.lines:
			switch {
			case strings.HasPrefix(line, "info "):
				if eval, ok := parseInfoLine(line); ok {
					latest = eval
					seen = true
				}
			case strings.HasPrefix(line, "bestmove"):
				parts := strings.Fields(line)
				if len(parts) >= 2 && isWellFormedUCI(parts[1]) {
					latest.BestMove = parts[1]
					seen = true
				}
				if !seen {
					return clientdto.Evaluation{}, false
				}
				return latest, true
			}
		case <-b.procDone:
			b.dropProcess()
			return clientdto.Evaluation{}, false
		case <-timer.C:
			return clientdto.Evaluation{}, false
		case <-ctx.Done():
			return clientdto.Evaluation{}, false
		}
	}
}

// dropProcess kills the current process so the next call restarts it. Not a
// degradation by itself.
func (b *localBackend) dropProcess() {
	if b.proc != nil {
		_ = b.proc.close()
		b.proc = nil
	}
}

func positionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos\n"
	}
	return "position fen " + fen + "\n"
}

// parseInfoLine extracts depth, score, and principal variation from a UCI
// info line.
func parseInfoLine(line string) (clientdto.Evaluation, bool) {
	parts := strings.Fields(line)
	var eval clientdto.Evaluation
	scored := false

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					eval.Depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				val, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						cp := val
						eval.ScoreCentipawns = &cp
						scored = true
					case "mate":
						mate := val
						eval.MateInPlies = &mate
						scored = true
					}
				}
				i += 2
			}
		case "pv":
			if i+1 < len(parts) {
				eval.PrincipalVariation = append([]string(nil), parts[i+1:]...)
				eval.BestMove = parts[i+1]
			}
			i = len(parts)
		}
	}

	if !scored || len(eval.PrincipalVariation) == 0 {
		return clientdto.Evaluation{}, false
	}
	return eval, true
}

func awaitToken(lines <-chan string, token string, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if strings.Contains(line, token) {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func moveFromWire(s string) clientdto.Move {
	s = strings.ToLower(strings.TrimSpace(s))
	mv := clientdto.Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:5]
	}
	return mv
}

// execProcess wraps a real engine binary.
type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan string

	mu sync.Mutex
}

func startUCIProcess(binaryPath string) (process, error) {
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &execProcess{cmd: cmd, stdin: stdin, out: make(chan string, 64)}
	go func() {
		defer close(p.out)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			p.out <- strings.TrimSpace(scanner.Text())
		}
	}()
	return p, nil
}

func (p *execProcess) send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.stdin, cmd)
	return err
}

func (p *execProcess) lines() <-chan string { return p.out }

func (p *execProcess) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}
