package engine

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ReaperOAK/KCAdashboard-sub001/pkg/clientdto"
)

// Opening-move table used whenever a backend cannot produce a move. Keyed by
// side to move; every entry is a plausible developing move from a normal
// position. The moves are not validated against the position — the table is
// a last resort that keeps the game loop alive.
var openingTable = map[clientdto.Side][]clientdto.Move{
	clientdto.White: {
		{From: "e2", To: "e4"},
		{From: "d2", To: "d4"},
		{From: "g1", To: "f3"},
		{From: "c2", To: "c4"},
		{From: "b1", To: "c3"},
	},
	clientdto.Black: {
		{From: "e7", To: "e5"},
		{From: "d7", To: "d5"},
		{From: "g8", To: "f6"},
		{From: "c7", To: "c5"},
		{From: "b8", To: "c6"},
	},
}

var (
	fallbackMu  sync.Mutex
	fallbackRnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// sideToMove reads the active-color field of a FEN, defaulting to white on
// malformed input.
func sideToMove(fen string) clientdto.Side {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) >= 2 && fields[1] == "b" {
		return clientdto.Black
	}
	return clientdto.White
}

func fallbackMove(fen string) clientdto.Move {
	table := openingTable[sideToMove(fen)]
	fallbackMu.Lock()
	idx := fallbackRnd.Intn(len(table))
	fallbackMu.Unlock()
	return table[idx]
}

func fallbackEvaluation(fen string, depth int) clientdto.Evaluation {
	mv := fallbackMove(fen)
	return clientdto.Evaluation{
		Depth:    depth,
		BestMove: mv.UCI(),
	}
}
