package client

import (
	"context"
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"chesstrainer/pkg/wire"
)

type sentFrame struct {
	event   string
	payload any
}

// fakeSocket satisfies Requester and records traffic instead of dialing.
type fakeSocket struct {
	requests []sentFrame
	emits    []sentFrame
	ack      wire.Ack
	err      error
}

func (f *fakeSocket) Request(_ context.Context, event string, payload any) (wire.Ack, error) {
	f.requests = append(f.requests, sentFrame{event, payload})
	return f.ack, f.err
}

func (f *fakeSocket) Emit(_ context.Context, event string, payload any) error {
	f.emits = append(f.emits, sentFrame{event, payload})
	return f.err
}

func okAck(roomID, playerID, selfColor string) wire.Ack {
	return wire.Ack{
		Type: wire.TypeAck,
		OK:   true,
		Room: &wire.RoomSnapshot{
			ID:     roomID,
			Status: "ready",
			Players: []wire.PlayerInfo{
				{ID: playerID, Name: "self", Color: selfColor},
				{ID: "peer", Name: "peer", Color: oppositeColor(selfColor)},
			},
		},
		PlayerID: playerID,
	}
}

func playMoves(t *testing.T, g *Game, moves ...string) {
	t.Helper()
	for _, mv := range moves {
		promo := ""
		if len(mv) > 4 {
			promo = mv[4:5]
		}
		if err := g.PlayMove(context.Background(), mv[:2], mv[2:4], promo); err != nil {
			t.Fatalf("PlayMove(%s): %v", mv, err)
		}
	}
}

func TestTimelineKeepsOnePositionPerPly(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "e2e4", "e7e5", "g1f3")

	hist := g.History()
	pos := g.Positions()
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
	if len(pos) != len(hist)+1 {
		t.Fatalf("positions must be history+1, got %d vs %d", len(pos), len(hist))
	}
	if g.CurrentPly() != 3 || !g.IsOnLatestPly() {
		t.Fatalf("cursor must sit on latest ply, got %d", g.CurrentPly())
	}
	if hist[0].SAN != "e4" || hist[0].LAN != "e2e4" {
		t.Fatalf("unexpected first entry: %+v", hist[0])
	}
	if hist[0].Color != "w" || hist[1].Color != "b" {
		t.Fatalf("mover colors wrong: %q %q", hist[0].Color, hist[1].Color)
	}
	for i, e := range hist {
		if e.Ply != i+1 {
			t.Fatalf("ply numbering broken at %d: %d", i, e.Ply)
		}
		if e.FEN != pos[i+1] {
			t.Fatalf("entry FEN must match the timeline at ply %d", i+1)
		}
	}
}

func TestReplayCursorClamps(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "e2e4", "e7e5")
	start := g.Positions()[0]

	g.GoToPly(-5)
	if g.CurrentPly() != 0 || g.Position() != start {
		t.Fatalf("underflow must clamp to the start")
	}
	g.StepBackward()
	if g.CurrentPly() != 0 {
		t.Fatalf("cannot step before the start")
	}
	g.GoToPly(99)
	if g.CurrentPly() != 2 {
		t.Fatalf("overflow must clamp to the latest ply, got %d", g.CurrentPly())
	}
	g.StepForward()
	if g.CurrentPly() != 2 {
		t.Fatalf("cannot step past the latest ply")
	}
	g.GoToStart()
	g.StepForward()
	if g.CurrentPly() != 1 {
		t.Fatalf("expected ply 1, got %d", g.CurrentPly())
	}
	g.GoToEnd()
	if !g.IsOnLatestPly() {
		t.Fatalf("GoToEnd must land on the latest ply")
	}
}

func TestNoMovesWhileReviewing(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "e2e4", "e7e5")
	g.GoToPly(1)

	err := g.PlayMove(context.Background(), "g1", "f3", "")
	if !errors.Is(err, ErrReviewingHistory) {
		t.Fatalf("expected ErrReviewingHistory, got %v", err)
	}
	if len(g.History()) != 2 {
		t.Fatalf("history must be untouched")
	}
}

func TestIllegalMoveRejected(t *testing.T) {
	g := NewGame(&fakeSocket{})
	err := g.PlayMove(context.Background(), "e2", "e5", "")
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if len(g.History()) != 0 || len(g.Positions()) != 1 {
		t.Fatalf("rejected move must not touch the timeline")
	}
}

func TestPlayMoveRelaysDerivedNotation(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	playMoves(t, g, "e2e4")

	if len(sock.requests) != 2 {
		t.Fatalf("expected create+move requests, got %d", len(sock.requests))
	}
	sent, ok := sock.requests[1].payload.(wire.PlayMovePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", sock.requests[1].payload)
	}
	if sent.RoomID != "r1" {
		t.Fatalf("expected room r1, got %q", sent.RoomID)
	}
	if sent.Move.SAN != "e4" || sent.Move.LAN != "e2e4" || sent.Move.FEN == "" {
		t.Fatalf("derived notation missing from the wire move: %+v", sent.Move)
	}
}

func TestLocalMoveSkipsTheWire(t *testing.T) {
	sock := &fakeSocket{}
	g := NewGame(sock)
	playMoves(t, g, "e2e4")
	if len(sock.requests) != 0 {
		t.Fatalf("moves outside a room must stay local, sent %d", len(sock.requests))
	}
}

func TestRejectedRelayMoveIsNotRolledBack(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	sock.err = errors.New("room not found")
	err := g.PlayMove(context.Background(), "e2", "e4", "")
	if err == nil {
		t.Fatalf("expected relay error to surface")
	}
	if len(g.History()) != 1 {
		t.Fatalf("optimistic move must survive the rejection")
	}
	if g.State().LastError != "room not found" {
		t.Fatalf("expected last error recorded, got %q", g.State().LastError)
	}
}

func TestCheckmateProducesLocalResult(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	res := g.Result()
	if res == nil {
		t.Fatalf("expected a terminal result")
	}
	if res.Winner != "black" || res.Outcome != "black" || res.Reason != "checkmate" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := g.PlayMove(context.Background(), "e2", "e4", ""); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver after mate, got %v", err)
	}
}

func TestServerResultWinsOverLocal(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	server := &wire.GameResult{Winner: "white", Loser: "black", Outcome: "white", Reason: "resign"}
	g.HandleRoomUpdate(wire.RoomUpdatePayload{Room: &wire.RoomSnapshot{
		ID:     "r1",
		Status: "ended",
		Result: server,
	}})

	res := g.Result()
	if res == nil || *res != *server {
		t.Fatalf("server result must win, got %+v", res)
	}
}

func TestRoomUpdateResetsBoardWhenNotReady(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	playMoves(t, g, "e2e4", "e7e5")

	g.HandleRoomUpdate(wire.RoomUpdatePayload{Room: &wire.RoomSnapshot{
		ID:      "r1",
		Status:  "waiting",
		Players: []wire.PlayerInfo{{ID: "p1", Name: "self", Color: "white"}},
	}})

	if len(g.Positions()) != 1 || len(g.History()) != 0 {
		t.Fatalf("board must reset when the room leaves ready state")
	}
	st := g.State()
	if st.Status != "waiting" || len(st.Players) != 1 {
		t.Fatalf("snapshot not merged: %+v", st)
	}
}

func TestPeerMoveAdvancesCursor(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	playMoves(t, g, "e2e4")
	g.GoToStart()

	g.HandleMovePlayed(wire.MovePlayedPayload{
		Move:     wire.Move{From: "e7", To: "e5"},
		PlayerID: "peer",
	})

	if len(g.History()) != 2 {
		t.Fatalf("peer move must be applied, history=%d", len(g.History()))
	}
	if !g.IsOnLatestPly() {
		t.Fatalf("peer move must snap the cursor to the latest ply")
	}
}

func TestResignSetsOptimisticResult(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := g.Resign(context.Background()); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if len(sock.emits) != 1 || sock.emits[0].event != wire.EventGameResign {
		t.Fatalf("expected one game:resign emit, got %+v", sock.emits)
	}
	res := g.Result()
	if res == nil || res.Winner != "black" || res.Reason != "resign" {
		t.Fatalf("self resign must award the peer, got %+v", res)
	}
	if g.State().Status != "ended" {
		t.Fatalf("expected ended status")
	}
}

func TestResignOutsideRoom(t *testing.T) {
	g := NewGame(&fakeSocket{})
	if err := g.Resign(context.Background()); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
}

func TestPeerResignationAwardsSelf(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "black")}
	g := NewGame(sock)
	if _, err := g.JoinRoom(context.Background(), "r1", "self"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	g.HandleGameResigned(wire.GameResignedPayload{PlayerID: "peer"})

	res := g.Result()
	if res == nil || res.Winner != "black" || res.Loser != "white" || res.Reason != "resign" {
		t.Fatalf("unexpected result after peer resignation: %+v", res)
	}
}

func TestDisconnectClearsView(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "white")}
	g := NewGame(sock)
	g.HandleConnState(true)
	if _, err := g.CreateRoom(context.Background(), "self"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	playMoves(t, g, "e2e4")

	g.HandleConnState(false)

	st := g.State()
	if st.Connected || st.Status != "" || st.Result != nil {
		t.Fatalf("disconnect must clear the view, got %+v", st)
	}
	if len(g.Positions()) != 1 {
		t.Fatalf("disconnect must reset the board")
	}
}

func TestCapturesFollowTheCursor(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "e2e4", "d7d5", "e4d5", "d8d5")

	info := g.Captures()
	if len(info.White) != 1 || info.White[0] != "p" {
		t.Fatalf("white captures wrong: %+v", info.White)
	}
	if len(info.Black) != 1 || info.Black[0] != "p" {
		t.Fatalf("black captures wrong: %+v", info.Black)
	}
	if info.MaterialAdvantage != 0 {
		t.Fatalf("even trade must balance, got %d", info.MaterialAdvantage)
	}

	g.GoToPly(3)
	info = g.Captures()
	if len(info.White) != 1 || len(info.Black) != 0 || info.MaterialAdvantage != 1 {
		t.Fatalf("captures must track the viewed ply, got %+v", info)
	}
}

func TestBoardOrientationFollowsAssignedColor(t *testing.T) {
	sock := &fakeSocket{ack: okAck("r1", "p1", "black")}
	g := NewGame(sock)
	if g.BoardOrientation() != "white" {
		t.Fatalf("default orientation must be white")
	}
	if _, err := g.JoinRoom(context.Background(), "r1", "self"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if g.BoardOrientation() != "black" {
		t.Fatalf("orientation must follow the assigned color")
	}
	if g.ColorPreference() != "black" {
		t.Fatalf("preference must adopt the assigned color")
	}
}

func TestHistoryReplaysToTheSamePosition(t *testing.T) {
	g := NewGame(&fakeSocket{})
	playMoves(t, g, "e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5c6", "d7c6")

	replay := nchess.NewGame()
	for _, e := range g.History() {
		mv, err := nchess.UCINotation{}.Decode(replay.Position(), e.LAN)
		if err != nil {
			t.Fatalf("decode %s: %v", e.LAN, err)
		}
		if err := replay.Move(mv, nil); err != nil {
			t.Fatalf("replay %s: %v", e.LAN, err)
		}
	}
	pos := g.Positions()
	if replay.FEN() != pos[len(pos)-1] {
		t.Fatalf("replayed FEN diverged:\n%s\n%s", replay.FEN(), pos[len(pos)-1])
	}
}
