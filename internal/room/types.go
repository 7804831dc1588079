package room

import (
	"time"

	"chesstrainer/pkg/wire"
)

// Color identifies a chess side, or the "random" preference.
type Color string

const (
	White  Color = "white"
	Black  Color = "black"
	Random Color = "random"
)

// Opposite returns the other side, or "" for non-side values.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return ""
}

// Status represents a room lifecycle state. It is derived: waiting with
// 0-1 players, ready with 2, ended once a result is recorded.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
	StatusEnded   Status = "ended"
)

// Player is one room member, keyed by its connection id.
type Player struct {
	ID       string
	Name     string
	Color    Color
	JoinedAt time.Time
}

// Settings holds the creation-time options of a room.
type Settings struct {
	PreferredColor Color
}

// Room pairs up to two players for one online game. Moves are
// append-only; Result is cleared on every move and membership change.
type Room struct {
	ID        string
	CreatedAt time.Time
	HostID    string
	Players   map[string]Player
	Status    Status
	Settings  Settings
	Moves     []wire.MoveRecord
	Result    *wire.GameResult
}

// Errors surfaced verbatim to the requester through a failed ack.
var (
	ErrRoomNotFound = staticErr("room not found")
	ErrRoomFull     = staticErr("room already has two players")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
