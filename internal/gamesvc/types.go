package gamesvc

import "time"

// Wire types for the game service JSON API. Field names follow the server's
// payloads; timestamps are RFC3339.

type GameDetail struct {
	Position    string    `json:"position"`
	Status      string    `json:"status"` // active | completed | redirected
	YourTurn    bool      `json:"yourTurn"`
	YourColor   string    `json:"yourColor"`
	LastMove    time.Time `json:"lastMove"`
	Opponent    string    `json:"opponent"`
	TimeControl int       `json:"timeControl"`
	Reason      string    `json:"reason,omitempty"`
}

type SessionDetailResponse struct {
	Success bool       `json:"success"`
	Game    GameDetail `json:"game"`
}

type MoveHistoryResponse struct {
	Success    bool     `json:"success"`
	PGN        string   `json:"pgn"`
	Moves      []string `json:"moves"`
	FENHistory []string `json:"fen_history"`
}

type SubmitMoveRequest struct {
	SessionID         string `json:"sessionId"`
	Move              string `json:"move"`
	ResultingPosition string `json:"resultingPosition"`
}

type SubmitMoveResponse struct {
	Success    bool      `json:"success"`
	LastMoveAt time.Time `json:"lastMoveAt"`
}

type SessionListEntry struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	WhiteID     string    `json:"white_id"`
	WhiteName   string    `json:"white_name"`
	BlackID     string    `json:"black_id"`
	BlackName   string    `json:"black_name"`
	LastMoveAt  time.Time `json:"last_move_at"`
	TimeControl int       `json:"time_control"`
}

type SessionListResponse struct {
	Success bool               `json:"success"`
	Games   []SessionListEntry `json:"games"`
}

type SimpleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type SaveResultRequest struct {
	SessionID string `json:"sessionId"`
	Result    string `json:"result"`
}

type DrawOfferEntry struct {
	ID          string    `json:"id"`
	OffererID   string    `json:"offerer_id"`
	OffererName string    `json:"offerer_name"`
	CanRespond  bool      `json:"can_respond"`
	CreatedAt   time.Time `json:"created_at"`
}

type DrawOfferListResponse struct {
	Success   bool             `json:"success"`
	Offers    []DrawOfferEntry `json:"offers"`
	GameEnded bool             `json:"game_ended"`
}

type DrawRespondRequest struct {
	Accept bool `json:"accept"`
}

type ChallengeEntry struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"` // pending | accepted | declined
	GameID       string    `json:"game_id,omitempty"`
	ChallengerID string    `json:"challenger_id"`
	TargetID     string    `json:"target_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChallengeListResponse struct {
	Success    bool             `json:"success"`
	Challenges []ChallengeEntry `json:"challenges"`
}
