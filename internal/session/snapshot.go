package session

import (
	"time"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// Phase is the controller's coarse lifecycle state.
type Phase string

const (
	PhaseLoading  Phase = "loading"
	PhaseActive   Phase = "active"
	PhaseTerminal Phase = "terminal"
)

// Snapshot is an immutable view of one game session. The controller replaces
// the whole value on every reconciliation; callers receive a copy and may
// hold it indefinitely.
type Snapshot struct {
	SessionID   string
	Phase       Phase
	Position    string
	Orientation clientdto.Side
	YourColor   clientdto.Side
	YourTurn    bool
	Opponent    string
	Status      string

	TerminalReason string
	Result         string

	LastMoveAt        time.Time
	TimeLeftSeconds   int
	TurnBudgetSeconds int

	Moves      []clientdto.Ply
	FENHistory []string
	PGN        string

	// ViewPly is the ply index currently displayed; -1 means live. GoToPly
	// only changes the view, never the live position.
	ViewPly      int
	ViewPosition string
}

// clone deep-copies the slices so a returned snapshot stays stable while the
// controller keeps reconciling.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Moves != nil {
		out.Moves = append([]clientdto.Ply(nil), s.Moves...)
	}
	if s.FENHistory != nil {
		out.FENHistory = append([]string(nil), s.FENHistory...)
	}
	return out
}

// Terminal reports whether the session has reached a final state.
func (s Snapshot) Terminal() bool { return s.Phase == PhaseTerminal }
