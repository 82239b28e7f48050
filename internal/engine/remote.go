package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// analysisResponse is the third-party analysis service payload.
type analysisResponse struct {
	Success      bool     `json:"success"`
	BestMove     string   `json:"bestmove"` // "bestmove e2e4 ponder e7e5"
	Evaluation   *float64 `json:"evaluation"`
	Mate         *int     `json:"mate"`
	Continuation string   `json:"continuation"`
}

type inflightQuery struct {
	done chan struct{}
	eval clientdto.Evaluation
	ok   bool
}

type remoteBackend struct {
	baseURL string
	http    *fasthttp.Client

	mu       sync.Mutex
	skill    int
	closed   bool
	cache    map[string]clientdto.Evaluation
	inflight map[string]*inflightQuery
}

func newRemote(cfg Config) *remoteBackend {
	return &remoteBackend{
		baseURL:  strings.TrimRight(cfg.AnalysisBaseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		skill:    cfg.SkillLevel,
		cache:    make(map[string]clientdto.Evaluation),
		inflight: make(map[string]*inflightQuery),
	}
}

func (b *remoteBackend) BestMove(ctx context.Context, fen string, budget time.Duration) clientdto.Move {
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget+moveTimeoutSlack)
		defer cancel()
	}

	b.mu.Lock()
	depth := clampDepth(b.skill)
	b.mu.Unlock()

	eval, ok := b.query(ctx, fen, depth)
	if !ok || !isWellFormedUCI(eval.BestMove) {
		obslog.L().Warn("engine_fallback",
			zap.String("kind", "move"),
			zap.String("backend", "remote"),
			zap.String("best_move", eval.BestMove),
		)
		return fallbackMove(fen)
	}
	return moveFromWire(eval.BestMove)
}

func (b *remoteBackend) Evaluate(ctx context.Context, fen string, depth int) clientdto.Evaluation {
	depth = clampDepth(depth)
	eval, ok := b.query(ctx, fen, depth)
	if !ok {
		return fallbackEvaluation(fen, depth)
	}
	return eval
}

func (b *remoteBackend) SetSkillLevel(level int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skill = level
}

func (b *remoteBackend) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cache = make(map[string]clientdto.Evaluation)
	b.inflight = make(map[string]*inflightQuery)
}

// query resolves one (position, depth) analysis, with a result cache and
// in-flight de-duplication: concurrent identical queries share one pending
// HTTP call.
func (b *remoteBackend) query(ctx context.Context, fen string, depth int) (clientdto.Evaluation, bool) {
	key := fmt.Sprintf("%d|%s", depth, fen)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return clientdto.Evaluation{}, false
	}
	if eval, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return eval, true
	}
	if pending, ok := b.inflight[key]; ok {
		b.mu.Unlock()
		select {
		case <-pending.done:
			return pending.eval, pending.ok
		case <-ctx.Done():
			return clientdto.Evaluation{}, false
		}
	}
	pending := &inflightQuery{done: make(chan struct{})}
	b.inflight[key] = pending
	b.mu.Unlock()

	eval, ok := b.fetch(ctx, fen, depth)

	b.mu.Lock()
	pending.eval, pending.ok = eval, ok
	if ok {
		b.cache[key] = eval
	}
	delete(b.inflight, key)
	b.mu.Unlock()
	close(pending.done)

	return eval, ok
}

func (b *remoteBackend) fetch(ctx context.Context, fen string, depth int) (clientdto.Evaluation, bool) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	uri := fmt.Sprintf("%s?fen=%s&depth=%d", b.baseURL, url.QueryEscape(fen), depth)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if err := b.http.DoDeadline(req, resp, deadline); err != nil {
		obslog.L().Warn("analysis_request_failed", zap.Error(err))
		return clientdto.Evaluation{}, false
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		obslog.L().Warn("analysis_request_failed", zap.Int("status", resp.StatusCode()))
		return clientdto.Evaluation{}, false
	}

	var payload analysisResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil || !payload.Success {
		return clientdto.Evaluation{}, false
	}

	best := parseBestMoveField(payload.BestMove)
	if best == "" {
		return clientdto.Evaluation{}, false
	}

	eval := clientdto.Evaluation{
		Depth:    depth,
		BestMove: best,
	}
	if payload.Mate != nil {
		mate := *payload.Mate
		eval.MateInPlies = &mate
	} else if payload.Evaluation != nil {
		cp := int(*payload.Evaluation * 100)
		eval.ScoreCentipawns = &cp
	}
	if pv := strings.Fields(payload.Continuation); len(pv) > 0 {
		eval.PrincipalVariation = pv
	}
	return eval, true
}

// parseBestMoveField extracts the move from the service's "bestmove <uci>
// ponder <uci>" string. Returns "" on anything malformed or too short.
func parseBestMoveField(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	for i, f := range fields {
		if f == "bestmove" && i+1 < len(fields) {
			if isWellFormedUCI(fields[i+1]) {
				return strings.ToLower(fields[i+1])
			}
			return ""
		}
	}
	// Some deployments return the bare move.
	if len(fields) == 1 && isWellFormedUCI(fields[0]) {
		return strings.ToLower(fields[0])
	}
	return ""
}
