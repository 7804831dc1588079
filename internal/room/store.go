package room

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chesstrainer/internal/obslog"
	"chesstrainer/pkg/wire"
)

// Store is the authoritative in-memory registry of game rooms. State
// lives only for the process lifetime; restarting the relay loses all
// rooms. Mutators return the post-mutation snapshot so callers never
// touch shared Room state.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// CreateRoom registers a new room and adds the creator as its first
// player. The preferred color is stored as an advisory default and also
// used for the creator's own assignment.
func (s *Store) CreateRoom(connID, playerName string, preferred Color) (wire.RoomSnapshot, error) {
	if playerName == "" {
		playerName = "Host"
	}
	if preferred == "" {
		preferred = White
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newRoomIDLocked()
	if err != nil {
		return wire.RoomSnapshot{}, err
	}
	r := &Room{
		ID:        id,
		CreatedAt: time.Now(),
		HostID:    connID,
		Players:   make(map[string]Player),
		Status:    StatusWaiting,
		Settings:  Settings{PreferredColor: preferred},
		Moves:     []wire.MoveRecord{},
	}
	s.rooms[id] = r
	s.addPlayerLocked(r, connID, playerName, preferred)
	obslog.L().Info("room_create",
		zap.String("room_id", id),
		zap.String("host_id", connID),
		zap.String("preferred_color", string(preferred)),
	)
	return serialize(r), nil
}

// AddPlayer joins a connection to an existing room, resolving a color
// for it. A third member is rejected outright; rejoining with the same
// connection id overwrites the existing entry.
func (s *Store) AddPlayer(roomID, connID, playerName string, preferred Color) (wire.RoomSnapshot, error) {
	if playerName == "" {
		playerName = "Guest"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return wire.RoomSnapshot{}, ErrRoomNotFound
	}
	if _, member := r.Players[connID]; !member && len(r.Players) >= 2 {
		return wire.RoomSnapshot{}, ErrRoomFull
	}
	s.addPlayerLocked(r, connID, playerName, preferred)
	obslog.L().Info("room_join",
		zap.String("room_id", roomID),
		zap.String("player_id", connID),
		zap.String("color", string(r.Players[connID].Color)),
	)
	return serialize(r), nil
}

func (s *Store) addPlayerLocked(r *Room, connID, playerName string, preferred Color) {
	r.Players[connID] = Player{
		ID:       connID,
		Name:     playerName,
		Color:    resolveColor(r, preferred),
		JoinedAt: time.Now(),
	}
	if len(r.Players) >= 2 {
		r.Status = StatusReady
		r.Result = nil
	}
}

// resolveColor honors a free preferred color, falls back to the
// available pick when absent, random, or taken, and defaults anything
// unrecognized to white.
func resolveColor(r *Room, preferred Color) Color {
	if preferred == "" || preferred == Random {
		return pickAvailableColor(r)
	}
	for _, p := range r.Players {
		if p.Color == preferred {
			return pickAvailableColor(r)
		}
	}
	if preferred == White || preferred == Black {
		return preferred
	}
	return White
}

func pickAvailableColor(r *Room) Color {
	inUse := make(map[Color]bool, len(r.Players))
	for _, p := range r.Players {
		inUse[p.Color] = true
	}
	if !inUse[White] {
		return White
	}
	if !inUse[Black] {
		return Black
	}
	if coinFlip() {
		return White
	}
	return Black
}

// RecordMove appends a move to the room history and clears any recorded
// result. The relay performs no legality check; turn order is enforced
// by the rules engine on each client.
func (s *Store) RecordMove(roomID string, rec wire.MoveRecord) (wire.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return wire.RoomSnapshot{}, ErrRoomNotFound
	}
	rec.CreatedAt = time.Now().UnixMilli()
	r.Moves = append(r.Moves, rec)
	r.Result = nil
	return serialize(r), nil
}

// SetResult records a terminal result; a non-nil result forces the room
// into the ended state. A nil result only clears the previous one.
func (s *Store) SetResult(roomID string, res *wire.GameResult) (wire.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return wire.RoomSnapshot{}, ErrRoomNotFound
	}
	if res == nil {
		r.Result = nil
	} else {
		cp := *res
		r.Result = &cp
		r.Status = StatusEnded
	}
	return serialize(r), nil
}

// LeaveRoom removes a player and always degrades the room to waiting,
// clearing any result. The room is deleted the instant it empties;
// deleted reports that.
func (s *Store) LeaveRoom(roomID, connID string) (snap wire.RoomSnapshot, deleted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return wire.RoomSnapshot{}, false, ErrRoomNotFound
	}
	return s.removeLocked(r, connID), !s.exists(roomID), nil
}

// RemovePlayerByConn scans all rooms for the connection and removes it,
// for ungraceful disconnects where the caller does not know the room.
// found is false when the connection was in no room.
func (s *Store) RemovePlayerByConn(connID string) (snap wire.RoomSnapshot, deleted, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rooms {
		if _, ok := r.Players[connID]; ok {
			snap = s.removeLocked(r, connID)
			return snap, !s.exists(id), true
		}
	}
	return wire.RoomSnapshot{}, false, false
}

func (s *Store) removeLocked(r *Room, connID string) wire.RoomSnapshot {
	delete(r.Players, connID)
	r.Status = StatusWaiting
	r.Result = nil
	snap := serialize(r)
	if len(r.Players) == 0 {
		delete(s.rooms, r.ID)
		obslog.L().Info("room_delete", zap.String("room_id", r.ID))
	}
	return snap
}

func (s *Store) exists(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// Serialize returns the client-facing snapshot, or nil for an unknown
// room id.
func (s *Store) Serialize(roomID string) *wire.RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	snap := serialize(r)
	return &snap
}

// PlayerColor reports the color held by a connection in a room, or ""
// when either is unknown.
func (s *Store) PlayerColor(roomID, connID string) Color {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ""
	}
	return r.Players[connID].Color
}

func serialize(r *Room) wire.RoomSnapshot {
	players := make([]wire.PlayerInfo, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, wire.PlayerInfo{
			ID:       p.ID,
			Name:     p.Name,
			Color:    string(p.Color),
			JoinedAt: p.JoinedAt.UnixMilli(),
		})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].ID < players[j].ID
	})

	var res *wire.GameResult
	if r.Result != nil {
		cp := *r.Result
		res = &cp
	}
	return wire.RoomSnapshot{
		ID:        r.ID,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.UnixMilli(),
		Settings:  wire.RoomSettings{PreferredColor: string(r.Settings.PreferredColor)},
		Moves:     append([]wire.MoveRecord(nil), r.Moves...),
		Players:   players,
		Result:    res,
	}
}

// newRoomIDLocked allocates a short id unique among live rooms.
func (s *Store) newRoomIDLocked() (string, error) {
	for i := 0; i < 5; i++ {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		id := hex.EncodeToString(b)
		if _, taken := s.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to allocate room id")
}

func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	return err == nil && n.Int64() == 0
}
