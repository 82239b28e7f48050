// Package engine drives move generation and evaluation through one of two
// interchangeable backends: a local UCI process or a remote HTTP analysis
// service. Every call resolves with a usable value; failures of any kind
// degrade to a fixed opening-move table so gameplay never stalls on the
// engine.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// Backend selects the engine implementation at construction time.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Config describes one engine handle. SkillLevel is 0-20 for the local
// backend and maps to a clamped search depth (1-15) for the remote one.
type Config struct {
	Backend    Backend
	SkillLevel int

	// Local backend.
	BinaryPath         string
	FallbackBinaryPath string

	// Remote backend.
	AnalysisBaseURL string
}

// Handle is the uniform asynchronous surface over both backends. Methods
// never fail: timeouts, process death, and malformed responses all resolve
// with fallback values.
type Handle interface {
	BestMove(ctx context.Context, fen string, budget time.Duration) clientdto.Move
	Evaluate(ctx context.Context, fen string, depth int) clientdto.Evaluation
	SetSkillLevel(level int)
	Terminate()
}

// New builds a handle for the configured backend. Handles never share
// state; each owns its own pending-request table.
func New(cfg Config) (Handle, error) {
	switch cfg.Backend {
	case BackendLocal:
		return newLocal(cfg, startUCIProcess), nil
	case BackendRemote:
		if strings.TrimSpace(cfg.AnalysisBaseURL) == "" {
			return nil, fmt.Errorf("analysis base url required for remote backend")
		}
		return newRemote(cfg), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}

const (
	moveTimeoutSlack    = 500 * time.Millisecond
	evalTimeoutPerDepth = time.Second

	minRemoteDepth = 1
	maxRemoteDepth = 15
)

func clampDepth(d int) int {
	if d < minRemoteDepth {
		return minRemoteDepth
	}
	if d > maxRemoteDepth {
		return maxRemoteDepth
	}
	return d
}

// isWellFormedUCI reports whether s is a syntactically valid coordinate move
// (4-5 chars, square pairs, optional promotion piece).
func isWellFormedUCI(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !validSquare(s[0:2]) || !validSquare(s[2:4]) {
		return false
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

func validSquare(sq string) bool {
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
