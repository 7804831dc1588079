// Package wire defines the relay wire protocol shared by the server and
// the client: the message envelope, request payloads, broadcast events,
// and the room snapshot shape.
package wire

import "encoding/json"

// Request events (client -> server, acknowledged unless noted).
const (
	EventRoomCreate = "room:create"
	EventRoomJoin   = "room:join"
	EventRoomLeave  = "room:leave"
	EventMovePlay   = "move:play"
	EventGameResign = "game:resign" // fire-and-forget, no ack
)

// Broadcast events (server -> room members).
const (
	EventRoomUpdate   = "room:update"
	EventMovePlayed   = "move:played"
	EventGameResigned = "game:resigned"
)

// TypeAck marks an acknowledgment frame. Acks carry the seq of the
// request they answer; broadcast events carry no seq.
const TypeAck = "ack"

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack answers exactly one request. Room and PlayerID are set on
// successful room:create / room:join.
type Ack struct {
	Type     string        `json:"type"`
	Seq      uint64        `json:"seq"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Room     *RoomSnapshot `json:"room,omitempty"`
	PlayerID string        `json:"playerId,omitempty"`
}

// CreateRoomPayload opens a new room with the sender as first player.
type CreateRoomPayload struct {
	PlayerName     string `json:"playerName,omitempty"`
	PreferredColor string `json:"preferredColor,omitempty" validate:"omitempty,oneof=white black random"`
}

// JoinRoomPayload adds the sender to an existing room.
type JoinRoomPayload struct {
	RoomID         string `json:"roomId" validate:"required"`
	PlayerName     string `json:"playerName,omitempty"`
	PreferredColor string `json:"preferredColor,omitempty" validate:"omitempty,oneof=white black random"`
}

// LeaveRoomPayload removes the sender from a room.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// PlayMovePayload records a move and relays it to the peer.
type PlayMovePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	Move   Move   `json:"move"`
}

// ResignPayload concedes the game in a room.
type ResignPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// RoomUpdatePayload carries the fresh snapshot after any room mutation.
type RoomUpdatePayload struct {
	Room *RoomSnapshot `json:"room"`
}

// MovePlayedPayload relays a peer's move to everyone except its sender.
type MovePlayedPayload struct {
	Move     Move   `json:"move"`
	PlayerID string `json:"playerId"`
}

// GameResignedPayload announces a resignation to the resigner's peers.
type GameResignedPayload struct {
	PlayerID string `json:"playerId"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
