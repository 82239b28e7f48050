package engine

import (
	"testing"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

const StartTestFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestIsWellFormedUCI(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"e2e4", true},
		{"e7e8q", true},
		{"a1h8", true},
		{"E2E4", true},
		{"e2e", false},
		{"e2e4q1", false},
		{"i2e4", false},
		{"e9e4", false},
		{"e7e8k", false},
		{"", false},
		{"(none)", false},
	}
	for _, c := range cases {
		if got := isWellFormedUCI(c.in); got != c.ok {
			t.Errorf("isWellFormedUCI(%q) = %v, want %v", c.in, got, c.ok)
		}
	}
}

func TestSideToMove(t *testing.T) {
	if sideToMove(StartTestFEN) != clientdto.White {
		t.Fatalf("expected white to move")
	}
	if sideToMove("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1") != clientdto.Black {
		t.Fatalf("expected black to move")
	}
	if sideToMove("garbage") != clientdto.White {
		t.Fatalf("malformed fen should default to white")
	}
}

func TestFallbackMoveMatchesSide(t *testing.T) {
	for i := 0; i < 20; i++ {
		mv := fallbackMove(StartTestFEN)
		if !inOpeningTable(clientdto.White, mv) {
			t.Fatalf("white fallback %s outside table", mv.UCI())
		}
		mv = fallbackMove("8/8/8/8/8/8/8/8 b - - 0 1")
		if !inOpeningTable(clientdto.Black, mv) {
			t.Fatalf("black fallback %s outside table", mv.UCI())
		}
	}
}

func TestParseBestMoveField(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"bestmove e2e4 ponder e7e5", "e2e4"},
		{"bestmove e7e8q", "e7e8q"},
		{"e2e4", "e2e4"},
		{"bestmove xx", ""},
		{"", ""},
		{"ponder e7e5", ""},
	}
	for _, c := range cases {
		if got := parseBestMoveField(c.in); got != c.want {
			t.Errorf("parseBestMoveField(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Backend: "psychic"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := New(Config{Backend: BackendRemote}); err == nil {
		t.Fatalf("expected error for remote backend without base url")
	}
	if _, err := New(Config{Backend: BackendRemote, AnalysisBaseURL: "http://analysis.test"}); err != nil {
		t.Fatalf("remote config rejected: %v", err)
	}
}
