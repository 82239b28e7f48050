package rules

import (
	"errors"
	"testing"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

func TestLegalMovesStartPosition(t *testing.T) {
	moves, err := LegalMoves(StartPosition, "")
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 20 {
		t.Fatalf("expected 20 legal moves from the start position, got %d", len(moves))
	}

	fromE2, err := LegalMoves(StartPosition, "e2")
	if err != nil {
		t.Fatalf("LegalMoves from e2: %v", err)
	}
	if len(fromE2) != 2 {
		t.Fatalf("expected 2 pawn moves from e2, got %d", len(fromE2))
	}
	for _, mv := range fromE2 {
		if mv.From != "e2" {
			t.Fatalf("filter leaked move from %s", mv.From)
		}
	}
}

func TestApplyMoveLegalAndIllegal(t *testing.T) {
	next, err := ApplyMove(StartPosition, clientdto.Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("ApplyMove e2e4: %v", err)
	}
	if next == StartPosition {
		t.Fatalf("position did not change after a legal move")
	}
	turn, err := Turn(next)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if turn != clientdto.Black {
		t.Fatalf("expected black to move after e2e4, got %s", turn)
	}

	if _, err := ApplyMove(StartPosition, clientdto.Move{From: "e2", To: "e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if _, err := ApplyMove("not a fen", clientdto.Move{From: "e2", To: "e4"}); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestIsGameOverCheckmate(t *testing.T) {
	// Fool's mate final position, white is mated.
	const mated = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	term, err := IsGameOver(mated)
	if err != nil {
		t.Fatalf("IsGameOver: %v", err)
	}
	if !term.Over || term.Reason != ReasonCheckmate {
		t.Fatalf("expected checkmate, got %+v", term)
	}
	if term.Result != clientdto.ResultBlackWins {
		t.Fatalf("expected 0-1, got %s", term.Result)
	}

	term, err = IsGameOver(StartPosition)
	if err != nil {
		t.Fatalf("IsGameOver start: %v", err)
	}
	if term.Over {
		t.Fatalf("start position reported as terminal: %+v", term)
	}
}

func TestIsGameOverMovesFoolsMate(t *testing.T) {
	term, err := IsGameOverMoves("", []string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("IsGameOverMoves: %v", err)
	}
	if !term.Over || term.Reason != ReasonCheckmate || term.Result != clientdto.ResultBlackWins {
		t.Fatalf("unexpected terminal: %+v", term)
	}
}

func TestHistoryEntries(t *testing.T) {
	entries, err := HistoryEntries("", []string{"e2e4", "e7e5", "g1f3"})
	if err != nil {
		t.Fatalf("HistoryEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 plies, got %d", len(entries))
	}
	if entries[0].SAN != "e4" {
		t.Fatalf("expected SAN e4, got %q", entries[0].SAN)
	}
	if entries[2].UCI != "g1f3" || entries[2].Index != 2 {
		t.Fatalf("unexpected last ply: %+v", entries[2])
	}
	for i, e := range entries {
		if e.FENAfter == "" {
			t.Fatalf("ply %d missing fen", i)
		}
	}

	if _, err := HistoryEntries("", []string{"e2e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for bogus history, got %v", err)
	}
}
