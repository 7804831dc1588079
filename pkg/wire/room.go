package wire

// Move is the client-supplied move shape. From/To are algebraic squares;
// the remaining fields are advisory annotations produced by the sender's
// rules engine and forwarded untouched.
type Move struct {
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
	SAN       string `json:"san,omitempty"`
	LAN       string `json:"lan,omitempty"`
	FEN       string `json:"fen,omitempty"`
}

// MoveRecord is a Move as stored in the room history.
type MoveRecord struct {
	Move
	PlayerID  string `json:"playerId"`
	CreatedAt int64  `json:"createdAt"`
}

// PlayerInfo describes one room member in a snapshot.
type PlayerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	JoinedAt int64  `json:"joinedAt"`
}

// RoomSettings mirrors the options given at room creation.
type RoomSettings struct {
	PreferredColor string `json:"preferredColor"`
}

// GameResult is the terminal outcome of a game. Winner and Loser are
// empty for draw-shaped results; Outcome is "white", "black" or "draw".
type GameResult struct {
	Winner  string `json:"winner"`
	Loser   string `json:"loser"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// RoomSnapshot is the client-facing view of a room, returned in acks and
// broadcast in room:update. Timestamps are unix milliseconds.
type RoomSnapshot struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	CreatedAt int64        `json:"createdAt"`
	Settings  RoomSettings `json:"settings"`
	Moves     []MoveRecord `json:"moves"`
	Players   []PlayerInfo `json:"players"`
	Result    *GameResult  `json:"result"`
}
