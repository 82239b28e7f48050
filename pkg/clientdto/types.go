package clientdto

import "time"

// Side identifies a chess color.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

// Move is a single ply in coordinate form. Promotion is empty or one of
// "q", "r", "b", "n".
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in engine coordinate notation ("e2e4", "e7e8q").
func (m Move) UCI() string { return m.From + m.To + m.Promotion }

// Ply is one half-move of a finished or ongoing game, paired with the
// position reached after it.
type Ply struct {
	Index    int    `json:"index"`
	SAN      string `json:"san"`
	UCI      string `json:"uci"`
	FENAfter string `json:"fen_after"`
}

// Evaluation is the result of an engine analysis query. Exactly one of
// ScoreCentipawns and MateInPlies is set when the query succeeded; both may
// be nil on a fallback result.
type Evaluation struct {
	ScoreCentipawns    *int     `json:"score_cp,omitempty"`
	MateInPlies        *int     `json:"mate,omitempty"`
	Depth              int      `json:"depth"`
	BestMove           string   `json:"best_move,omitempty"`
	PrincipalVariation []string `json:"pv,omitempty"`
}

// DrawOffer mirrors one entry of the server's offer list. CanRespond marks
// an incoming offer awaiting the local user's decision.
type DrawOffer struct {
	ID          string    `json:"id"`
	OffererID   string    `json:"offerer_id"`
	OffererName string    `json:"offerer_name"`
	CanRespond  bool      `json:"can_respond"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionSummary is one row of the active-session switcher.
type SessionSummary struct {
	ID         string    `json:"id"`
	Opponent   string    `json:"opponent"`
	YourColor  Side      `json:"your_color"`
	Status     string    `json:"status"`
	LastMoveAt time.Time `json:"last_move_at"`
}

// Game results in standard notation.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)
