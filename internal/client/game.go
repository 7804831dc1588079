package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	nchess "github.com/corentings/chess/v2"

	"chesstrainer/pkg/wire"
)

var (
	ErrNotInRoom        = errors.New("not in a room")
	ErrGameOver         = errors.New("game already has a result")
	ErrReviewingHistory = errors.New("cannot move while reviewing history")
	ErrIllegalMove      = errors.New("illegal move")
)

// Requester is the slice of Socket the reducer needs; tests inject a
// fake.
type Requester interface {
	Request(ctx context.Context, event string, payload any) (wire.Ack, error)
	Emit(ctx context.Context, event string, payload any) error
}

// OnlineState mirrors the last known room state for the UI.
type OnlineState struct {
	Connected bool
	RoomID    string
	PlayerID  string
	Players   []wire.PlayerInfo
	Status    string
	Result    *wire.GameResult
	LastError string
}

// HistoryEntry is one applied move with its derived annotations. Color
// is "w" or "b" for the mover; Captured is the taken piece letter, ""
// for quiet moves.
type HistoryEntry struct {
	wire.Move
	Ply      int
	Color    string
	Captured string
}

// CaptureInfo aggregates captures up to the viewed ply. The letters are
// piece types taken BY that side; advantage is white minus black in
// pawn units (p1 n3 b3 r5 q9).
type CaptureInfo struct {
	White             []string
	Black             []string
	MaterialAdvantage int
}

var pieceValues = map[string]int{"p": 1, "n": 3, "b": 3, "r": 5, "q": 9}

// Game reconciles server-pushed room snapshots with an optimistic local
// board and derives a replay-capable timeline: positions[i] is the FEN
// after the first i moves, and a ply cursor allows rewinding without
// touching the authoritative move list.
type Game struct {
	mu   sync.Mutex
	sock Requester

	game       *nchess.Game
	history    []HistoryEntry
	positions  []string
	currentPly int

	state       OnlineState
	localResult *wire.GameResult
	colorPref   string
}

func NewGame(sock Requester) *Game {
	g := &Game{sock: sock, colorPref: "white"}
	g.resetBoardLocked()
	return g
}

// Attach subscribes the reducer to a socket's broadcast events.
func (g *Game) Attach(s *Socket) {
	s.OnState(g.HandleConnState)
	s.On(wire.EventRoomUpdate, func(raw json.RawMessage) {
		var p wire.RoomUpdatePayload
		if json.Unmarshal(raw, &p) == nil {
			g.HandleRoomUpdate(p)
		}
	})
	s.On(wire.EventMovePlayed, func(raw json.RawMessage) {
		var p wire.MovePlayedPayload
		if json.Unmarshal(raw, &p) == nil {
			g.HandleMovePlayed(p)
		}
	})
	s.On(wire.EventGameResigned, func(raw json.RawMessage) {
		var p wire.GameResignedPayload
		if json.Unmarshal(raw, &p) == nil {
			g.HandleGameResigned(p)
		}
	})
}

// CreateRoom opens a room with the local color preference. A "random"
// preference is omitted from the payload so the server picks.
func (g *Game) CreateRoom(ctx context.Context, playerName string) (*wire.RoomSnapshot, error) {
	g.mu.Lock()
	pref := g.colorPref
	g.mu.Unlock()
	if pref == "random" {
		pref = ""
	}

	ack, err := g.sock.Request(ctx, wire.EventRoomCreate, wire.CreateRoomPayload{
		PlayerName:     playerName,
		PreferredColor: pref,
	})
	if err != nil {
		g.setError(err)
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetBoardLocked()
	g.state.PlayerID = ack.PlayerID
	g.state.Result = nil
	g.state.LastError = ""
	if ack.Room != nil {
		g.state.RoomID = ack.Room.ID
		g.state.Players = ack.Room.Players
		g.state.Status = ack.Room.Status
	}
	g.adoptAssignedColorLocked()
	return ack.Room, nil
}

// JoinRoom enters an existing room by id.
func (g *Game) JoinRoom(ctx context.Context, roomID, playerName string) (*wire.RoomSnapshot, error) {
	ack, err := g.sock.Request(ctx, wire.EventRoomJoin, wire.JoinRoomPayload{
		RoomID:     roomID,
		PlayerName: playerName,
	})
	if err != nil {
		g.setError(err)
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetBoardLocked()
	g.state.RoomID = roomID
	g.state.PlayerID = ack.PlayerID
	g.state.Result = nil
	g.state.LastError = ""
	if ack.Room != nil {
		g.state.Players = ack.Room.Players
		g.state.Status = ack.Room.Status
	}
	g.adoptAssignedColorLocked()
	return ack.Room, nil
}

// LeaveRoom exits the current room and resets the local view.
func (g *Game) LeaveRoom(ctx context.Context) error {
	g.mu.Lock()
	roomID := g.state.RoomID
	g.mu.Unlock()
	if roomID == "" {
		return nil
	}
	if _, err := g.sock.Request(ctx, wire.EventRoomLeave, wire.LeaveRoomPayload{RoomID: roomID}); err != nil {
		g.setError(err)
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	connected := g.state.Connected
	g.state = OnlineState{Connected: connected}
	g.resetBoardLocked()
	return nil
}

// PlayMove applies a local move optimistically and relays it. Moves are
// only permitted at the latest ply and before any terminal result. A
// relay rejection is surfaced but the local move is not rolled back.
func (g *Game) PlayMove(ctx context.Context, from, to, promotion string) error {
	g.mu.Lock()
	if g.mergedResultLocked() != nil {
		g.mu.Unlock()
		return ErrGameOver
	}
	if g.currentPly != len(g.positions)-1 {
		g.mu.Unlock()
		return ErrReviewingHistory
	}
	roomID := g.state.RoomID
	mv := wire.Move{From: from, To: to, Promotion: promotion}
	entry, err := g.applyLocked(mv)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	g.currentPly = len(g.positions) - 1
	g.mu.Unlock()

	if roomID == "" {
		return nil
	}
	_, err = g.sock.Request(ctx, wire.EventMovePlay, wire.PlayMovePayload{
		RoomID: roomID,
		Move:   entry.Move,
	})
	if err != nil {
		g.setError(err)
		return err
	}
	return nil
}

// Resign concedes the game. The request is fire-and-forget; the local
// result is set immediately, matching the relay's broadcast.
func (g *Game) Resign(ctx context.Context) error {
	g.mu.Lock()
	roomID := g.state.RoomID
	selfColor := g.selfColorLocked()
	g.mu.Unlock()
	if roomID == "" {
		return ErrNotInRoom
	}
	if err := g.sock.Emit(ctx, wire.EventGameResign, wire.ResignPayload{RoomID: roomID}); err != nil {
		g.setError(err)
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var winner string
	if selfColor != "" {
		winner = oppositeColor(selfColor)
	}
	g.state.Result = resignResult(winner)
	g.state.Status = "ended"
	return nil
}

// HandleMovePlayed applies a peer's move. Remote moves are trusted
// unconditionally; the relay is the single source of truth once both
// players have joined.
func (g *Game) HandleMovePlayed(p wire.MovePlayedPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.applyLocked(p.Move); err != nil {
		return
	}
	g.currentPly = len(g.positions) - 1
}

// HandleRoomUpdate merges an authoritative snapshot. Whenever the room
// is not in a live 2-player state, the board degrades to a fresh start.
func (g *Game) HandleRoomUpdate(p wire.RoomUpdatePayload) {
	if p.Room == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Room.ID != "" {
		g.state.RoomID = p.Room.ID
	}
	g.state.Players = p.Room.Players
	g.state.Status = p.Room.Status
	g.state.Result = p.Room.Result
	g.adoptAssignedColorLocked()
	if p.Room.Status != "ready" {
		g.resetBoardLocked()
	}
}

// HandleGameResigned records the peer's resignation.
func (g *Game) HandleGameResigned(p wire.GameResignedPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var loser string
	for _, pl := range g.state.Players {
		if pl.ID == p.PlayerID {
			loser = pl.Color
			break
		}
	}
	var winner string
	if loser != "" {
		winner = oppositeColor(loser)
	}
	g.state.Result = resignResult(winner)
	g.state.Status = "ended"
}

// HandleConnState reacts to transport connectivity changes.
func (g *Game) HandleConnState(connected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Connected = connected
	if !connected {
		g.state.Status = ""
		g.state.Result = nil
		g.resetBoardLocked()
	}
}

// GoToPly moves the replay cursor, clamped to the timeline bounds.
func (g *Game) GoToPly(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPly = clamp(n, 0, len(g.positions)-1)
}

func (g *Game) GoToStart() { g.GoToPly(0) }

func (g *Game) GoToEnd() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPly = len(g.positions) - 1
}

func (g *Game) StepBackward() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPly = clamp(g.currentPly-1, 0, len(g.positions)-1)
}

func (g *Game) StepForward() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPly = clamp(g.currentPly+1, 0, len(g.positions)-1)
}

// Position returns the FEN under the replay cursor.
func (g *Game) Position() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[g.currentPly]
}

func (g *Game) Positions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.positions...)
}

func (g *Game) History() []HistoryEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]HistoryEntry(nil), g.history...)
}

func (g *Game) CurrentPly() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPly
}

func (g *Game) IsOnLatestPly() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPly == len(g.positions)-1
}

// State returns a copy of the online view state.
func (g *Game) State() OnlineState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state
	st.Players = append([]wire.PlayerInfo(nil), g.state.Players...)
	if g.state.Result != nil {
		cp := *g.state.Result
		st.Result = &cp
	}
	return st
}

// Result merges the two result sources; the relay-supplied result wins
// over the locally derived one.
func (g *Game) Result() *wire.GameResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	res := g.mergedResultLocked()
	if res == nil {
		return nil
	}
	cp := *res
	return &cp
}

// Captures aggregates captured pieces and material advantage up to the
// viewed ply.
func (g *Game) Captures() CaptureInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	info := CaptureInfo{}
	for i := 0; i < g.currentPly && i < len(g.history); i++ {
		e := g.history[i]
		if e.Captured == "" {
			continue
		}
		v := pieceValues[e.Captured]
		if e.Color == "w" {
			info.White = append(info.White, e.Captured)
			info.MaterialAdvantage += v
		} else {
			info.Black = append(info.Black, e.Captured)
			info.MaterialAdvantage -= v
		}
	}
	return info
}

// BoardOrientation is the side the local player sits on, defaulting to
// white until the server assigns a color.
func (g *Game) BoardOrientation() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.selfColorLocked() == "black" {
		return "black"
	}
	return "white"
}

func (g *Game) ColorPreference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.colorPref
}

func (g *Game) SetColorPreference(c string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.colorPref = c
}

func (g *Game) mergedResultLocked() *wire.GameResult {
	if g.state.Result != nil {
		return g.state.Result
	}
	return g.localResult
}

func (g *Game) selfColorLocked() string {
	for _, p := range g.state.Players {
		if p.ID == g.state.PlayerID {
			return p.Color
		}
	}
	return ""
}

// adoptAssignedColorLocked aligns the local preference once the server
// assigns a color.
func (g *Game) adoptAssignedColorLocked() {
	if c := g.selfColorLocked(); c != "" {
		g.colorPref = c
	}
}

func (g *Game) setError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.LastError = err.Error()
}

func (g *Game) resetBoardLocked() {
	g.game = nchess.NewGame()
	g.history = nil
	g.positions = []string{g.game.FEN()}
	g.currentPly = 0
	g.localResult = nil
}

// applyLocked validates a move against the rules engine, applies it,
// and extends the timeline. The returned entry carries the derived SAN,
// LAN and resulting FEN for the wire.
func (g *Game) applyLocked(mv wire.Move) (HistoryEntry, error) {
	pos := g.game.Position()
	notation := nchess.UCINotation{}

	uci := mv.From + mv.To
	move, err := notation.Decode(pos, uci)
	if err != nil {
		promo := mv.Promotion
		if promo == "" {
			promo = "q"
		}
		uci = mv.From + mv.To + promo
		move, err = notation.Decode(pos, uci)
		if err != nil {
			return HistoryEntry{}, ErrIllegalMove
		}
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, move)
	captured := capturedPiece(pos, move)
	mover := "b"
	if pos.Turn() == nchess.White {
		mover = "w"
	}

	if err := g.game.Move(move, nil); err != nil {
		return HistoryEntry{}, ErrIllegalMove
	}

	entry := HistoryEntry{
		Move: wire.Move{
			From:      mv.From,
			To:        mv.To,
			Promotion: mv.Promotion,
			SAN:       san,
			LAN:       uci,
			FEN:       g.game.FEN(),
		},
		Ply:      len(g.history) + 1,
		Color:    mover,
		Captured: captured,
	}
	g.history = append(g.history, entry)
	g.positions = append(g.positions, g.game.FEN())
	g.localResult = resultFromGame(g.game)
	return entry, nil
}

// capturedPiece reports the piece taken by a move, adjusting the square
// for en passant, or "" for quiet moves.
func capturedPiece(pos *nchess.Position, move *nchess.Move) string {
	if !move.HasTag(nchess.Capture) && !move.HasTag(nchess.EnPassant) {
		return ""
	}
	sq := move.S2()
	if move.HasTag(nchess.EnPassant) {
		if pos.Turn() == nchess.White {
			sq = nchess.NewSquare(sq.File(), sq.Rank()-1)
		} else {
			sq = nchess.NewSquare(sq.File(), sq.Rank()+1)
		}
	}
	return pieceLetter(pos.Board().Piece(sq).Type())
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.Pawn:
		return "p"
	case nchess.Knight:
		return "n"
	case nchess.Bishop:
		return "b"
	case nchess.Rook:
		return "r"
	case nchess.Queen:
		return "q"
	case nchess.King:
		return "k"
	}
	return ""
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
