package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chesstrainer/internal/obslog"
	"chesstrainer/internal/room"
	"chesstrainer/pkg/wire"
)

const writeTimeout = 5 * time.Second

// Handler is the relay protocol surface: it validates and dispatches
// client requests against the room store, acknowledges the requester,
// and broadcasts state deltas to room members. One ServeConn loop runs
// per browser tab; the store serializes all mutations.
type Handler struct {
	store *room.Store

	mu      sync.Mutex
	members map[string]map[string]*conn // room id -> conn id -> conn
}

type conn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func NewHandler(store *room.Store) *Handler {
	return &Handler{
		store:   store,
		members: make(map[string]map[string]*conn),
	}
}

// ServeConn reads frames until the transport drops, then reconciles the
// room the connection belonged to. connID doubles as the player id.
func (h *Handler) ServeConn(ctx context.Context, connID string, ws *websocket.Conn) {
	c := &conn{id: connID, ws: ws}
	obslog.L().Info("conn_open", zap.String("conn_id", connID))

	for {
		var env wire.Envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			break
		}
		h.dispatch(ctx, c, env)
	}

	h.handleDisconnect(c)
	obslog.L().Info("conn_close", zap.String("conn_id", connID))
}

func (h *Handler) dispatch(ctx context.Context, c *conn, env wire.Envelope) {
	switch env.Type {
	case wire.EventRoomCreate:
		h.handleCreate(ctx, c, env)
	case wire.EventRoomJoin:
		h.handleJoin(ctx, c, env)
	case wire.EventRoomLeave:
		h.handleLeave(ctx, c, env)
	case wire.EventMovePlay:
		h.handleMove(ctx, c, env)
	case wire.EventGameResign:
		h.handleResign(c, env)
	default:
		h.nack(c, env.Seq, "unknown event: "+env.Type)
	}
}

func (h *Handler) handleCreate(ctx context.Context, c *conn, env wire.Envelope) {
	var p wire.CreateRoomPayload
	if err := wire.DecodePayload(env.Payload, &p); err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	snap, err := h.store.CreateRoom(c.id, p.PlayerName, room.Color(p.PreferredColor))
	if err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	h.subscribe(c, snap.ID)
	h.send(c, wire.Ack{Type: wire.TypeAck, Seq: env.Seq, OK: true, Room: &snap, PlayerID: c.id})
	h.broadcast(snap.ID, wire.EventRoomUpdate, wire.RoomUpdatePayload{Room: &snap}, "")
}

func (h *Handler) handleJoin(ctx context.Context, c *conn, env wire.Envelope) {
	var p wire.JoinRoomPayload
	if err := wire.DecodePayload(env.Payload, &p); err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	snap, err := h.store.AddPlayer(p.RoomID, c.id, p.PlayerName, room.Color(p.PreferredColor))
	if err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	h.subscribe(c, snap.ID)
	h.send(c, wire.Ack{Type: wire.TypeAck, Seq: env.Seq, OK: true, Room: &snap, PlayerID: c.id})
	h.broadcast(snap.ID, wire.EventRoomUpdate, wire.RoomUpdatePayload{Room: &snap}, "")
}

func (h *Handler) handleLeave(ctx context.Context, c *conn, env wire.Envelope) {
	var p wire.LeaveRoomPayload
	if err := wire.DecodePayload(env.Payload, &p); err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	snap, deleted, err := h.store.LeaveRoom(p.RoomID, c.id)
	if err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	h.unsubscribe(c, p.RoomID)
	h.send(c, wire.Ack{Type: wire.TypeAck, Seq: env.Seq, OK: true})
	if !deleted {
		h.broadcast(snap.ID, wire.EventRoomUpdate, wire.RoomUpdatePayload{Room: &snap}, "")
	}
	obslog.L().Info("room_leave",
		zap.String("room_id", p.RoomID),
		zap.String("player_id", c.id),
		zap.Bool("deleted", deleted),
	)
}

func (h *Handler) handleMove(ctx context.Context, c *conn, env wire.Envelope) {
	var p wire.PlayMovePayload
	if err := wire.DecodePayload(env.Payload, &p); err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	rec := wire.MoveRecord{Move: p.Move, PlayerID: c.id}
	if _, err := h.store.RecordMove(p.RoomID, rec); err != nil {
		h.nack(c, env.Seq, err.Error())
		return
	}
	h.broadcast(p.RoomID, wire.EventMovePlayed, wire.MovePlayedPayload{Move: p.Move, PlayerID: c.id}, c.id)
	h.send(c, wire.Ack{Type: wire.TypeAck, Seq: env.Seq, OK: true})
	obslog.L().Info("move_play",
		zap.String("room_id", p.RoomID),
		zap.String("player_id", c.id),
		zap.String("from", p.Move.From),
		zap.String("to", p.Move.To),
	)
}

// handleResign is fire-and-forget: no ack is ever sent. The resigner's
// color decides the winner; an undeterminable color records a
// draw-shaped result.
func (h *Handler) handleResign(c *conn, env wire.Envelope) {
	var p wire.ResignPayload
	if err := wire.DecodePayload(env.Payload, &p); err != nil {
		obslog.L().Debug("resign_invalid", zap.String("conn_id", c.id), zap.Error(err))
		return
	}
	winner := h.store.PlayerColor(p.RoomID, c.id).Opposite()
	snap, err := h.store.SetResult(p.RoomID, resignResult(winner))
	if err != nil {
		obslog.L().Debug("resign_unknown_room", zap.String("room_id", p.RoomID), zap.Error(err))
		return
	}
	h.broadcast(p.RoomID, wire.EventGameResigned, wire.GameResignedPayload{PlayerID: c.id}, c.id)
	h.broadcast(p.RoomID, wire.EventRoomUpdate, wire.RoomUpdatePayload{Room: &snap}, "")
	obslog.L().Info("game_resign",
		zap.String("room_id", p.RoomID),
		zap.String("player_id", c.id),
		zap.String("winner", string(winner)),
	)
}

// handleDisconnect runs after an abrupt transport drop, where no
// room:leave was received. The surviving peer, if any, gets a fresh
// snapshot; an emptied room is deleted with no one left to notify.
func (h *Handler) handleDisconnect(c *conn) {
	snap, deleted, found := h.store.RemovePlayerByConn(c.id)
	h.unsubscribeAll(c)
	if found && !deleted {
		h.broadcast(snap.ID, wire.EventRoomUpdate, wire.RoomUpdatePayload{Room: &snap}, "")
	}
}

func resignResult(winner room.Color) *wire.GameResult {
	if winner == "" {
		return &wire.GameResult{Outcome: "draw", Reason: "resign"}
	}
	return &wire.GameResult{
		Winner:  string(winner),
		Loser:   string(winner.Opposite()),
		Outcome: string(winner),
		Reason:  "resign",
	}
}

func (h *Handler) subscribe(c *conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[string]*conn)
	}
	h.members[roomID][c.id] = c
}

func (h *Handler) unsubscribe(c *conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c, roomID)
}

func (h *Handler) unsubscribeAll(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.members {
		h.dropLocked(c, roomID)
	}
}

func (h *Handler) dropLocked(c *conn, roomID string) {
	group, ok := h.members[roomID]
	if !ok {
		return
	}
	delete(group, c.id)
	if len(group) == 0 {
		delete(h.members, roomID)
	}
}

// broadcast sends an event to every member of a room's group, except
// exceptID when non-empty. Write failures are logged and skipped; they
// never affect other members.
func (h *Handler) broadcast(roomID, event string, payload any, exceptID string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("broadcast_marshal", zap.String("event", event), zap.Error(err))
		return
	}
	env := wire.Envelope{Type: event, Payload: raw}

	h.mu.Lock()
	targets := make([]*conn, 0, len(h.members[roomID]))
	for id, member := range h.members[roomID] {
		if id == exceptID {
			continue
		}
		targets = append(targets, member)
	}
	h.mu.Unlock()

	for _, t := range targets {
		h.send(t, env)
	}
}

func (h *Handler) nack(c *conn, seq uint64, msg string) {
	h.send(c, wire.Ack{Type: wire.TypeAck, Seq: seq, OK: false, Error: msg})
}

func (h *Handler) send(c *conn, v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		obslog.L().Warn("conn_write", zap.String("conn_id", c.id), zap.Error(err))
	}
}
