// Package rules adapts the chess rules library into the narrow, pure,
// synchronous capability surface the session controller depends on: legal
// move listing, move application, turn ownership, and terminal detection.
package rules

import (
	"errors"
	"fmt"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

var (
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidPosition = errors.New("invalid position")
)

// StartPosition is the standard initial placement.
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Reason classifies why a game ended.
type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonRepetition           Reason = "repetition"
	ReasonInsufficientMaterial Reason = "insufficient-material"
	ReasonFiftyMove            Reason = "fifty-move"
)

// Terminal reports whether a position is game-over and how.
type Terminal struct {
	Over   bool
	Reason Reason
	Result string
}

func gameFromFEN(fen string) (*chesslib.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return chesslib.NewGame(), nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return chesslib.NewGame(option), nil
}

// LegalMoves lists every legal move in the position, optionally filtered to
// moves originating from a single square ("e2").
func LegalMoves(fen string, from string) ([]clientdto.Move, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	from = strings.ToLower(strings.TrimSpace(from))

	valid := game.ValidMoves()
	out := make([]clientdto.Move, 0, len(valid))
	for i := range valid {
		mv, ok := moveFromUCI(valid[i].String())
		if !ok {
			continue
		}
		if from != "" && mv.From != from {
			continue
		}
		out = append(out, mv)
	}
	return out, nil
}

// ApplyMove validates the move against the position and returns the FEN
// reached after it. Illegal moves return ErrIllegalMove without mutating
// anything.
func ApplyMove(fen string, mv clientdto.Move) (string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	uci := strings.ToLower(mv.UCI())
	if !isLegalUCI(game, uci) {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if err := game.PushNotationMove(uci, chesslib.UCINotation{}, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return game.FEN(), nil
}

// Turn reports which side moves next in the position.
func Turn(fen string) (clientdto.Side, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	if game.Position().Turn() == chesslib.White {
		return clientdto.White, nil
	}
	return clientdto.Black, nil
}

// IsGameOver inspects a bare position. Repetition cannot be detected from a
// single FEN; callers holding the move list should use IsGameOverMoves.
func IsGameOver(fen string) (Terminal, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Terminal{}, err
	}
	return terminalFromGame(game), nil
}

// IsGameOverMoves replays the move list from the starting position so that
// repetition and fifty-move terminations are visible.
func IsGameOverMoves(startFEN string, movesUCI []string) (Terminal, error) {
	game, err := replay(startFEN, movesUCI)
	if err != nil {
		return Terminal{}, err
	}
	return terminalFromGame(game), nil
}

// HistoryEntries converts a move list into per-ply records carrying SAN and
// the position after each ply.
func HistoryEntries(startFEN string, movesUCI []string) ([]clientdto.Ply, error) {
	game, err := gameFromFEN(startFEN)
	if err != nil {
		return nil, err
	}
	entries := make([]clientdto.Ply, 0, len(movesUCI))
	for i, raw := range movesUCI {
		uci := strings.ToLower(strings.TrimSpace(raw))
		pos := game.Position()
		decoded, derr := (chesslib.UCINotation{}).Decode(pos, uci)
		if derr != nil {
			return nil, fmt.Errorf("ply %d %q: %w", i, raw, ErrIllegalMove)
		}
		san := (chesslib.AlgebraicNotation{}).Encode(pos, decoded)
		if err := game.PushNotationMove(uci, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("ply %d %q: %w", i, raw, ErrIllegalMove)
		}
		entries = append(entries, clientdto.Ply{
			Index:    i,
			SAN:      san,
			UCI:      uci,
			FENAfter: game.FEN(),
		})
	}
	return entries, nil
}

func replay(startFEN string, movesUCI []string) (*chesslib.Game, error) {
	game, err := gameFromFEN(startFEN)
	if err != nil {
		return nil, err
	}
	for i, mv := range movesUCI {
		if err := game.PushNotationMove(strings.ToLower(strings.TrimSpace(mv)), chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("ply %d %q: %w", i, mv, ErrIllegalMove)
		}
	}
	return game, nil
}

func terminalFromGame(game *chesslib.Game) Terminal {
	outcome := game.Outcome()
	if outcome == chesslib.NoOutcome {
		return Terminal{}
	}
	t := Terminal{Over: true, Reason: reasonFromMethod(game.Method())}
	switch outcome {
	case chesslib.WhiteWon:
		t.Result = clientdto.ResultWhiteWins
	case chesslib.BlackWon:
		t.Result = clientdto.ResultBlackWins
	default:
		t.Result = clientdto.ResultDraw
	}
	return t
}

func reasonFromMethod(method chesslib.Method) Reason {
	s := strings.ToLower(method.String())
	switch {
	case strings.Contains(s, "checkmate"):
		return ReasonCheckmate
	case strings.Contains(s, "stalemate"):
		return ReasonStalemate
	case strings.Contains(s, "repetition"):
		return ReasonRepetition
	case strings.Contains(s, "insufficient"):
		return ReasonInsufficientMaterial
	case strings.Contains(s, "fifty"):
		return ReasonFiftyMove
	default:
		return Reason(s)
	}
}

func isLegalUCI(game *chesslib.Game, uci string) bool {
	valid := game.ValidMoves()
	for i := range valid {
		if strings.EqualFold(valid[i].String(), uci) {
			return true
		}
	}
	return false
}

func moveFromUCI(s string) (clientdto.Move, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 4 || len(s) > 5 {
		return clientdto.Move{}, false
	}
	mv := clientdto.Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:5]
	}
	return mv, true
}
