// Command trainer-cli is a terminal client for the chess trainer: it
// plays online through the relay or locally against a UCI engine.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	nchess "github.com/corentings/chess/v2"

	"chesstrainer/internal/client"
	"chesstrainer/internal/config"
	"chesstrainer/internal/engine/uci"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	sock := client.NewSocket(
		client.SocketURL(cfg.Client.ServerURL, cfg.Server.SocketPath),
		client.WithAckTimeout(time.Duration(cfg.Client.AckTimeoutSec)*time.Second),
	)
	game := client.NewGame(sock)
	game.Attach(sock)
	sock.OnState(func(connected bool) {
		if !connected {
			fmt.Println("! disconnected from relay")
		}
	})

	app := &cli{cfg: cfg, sock: sock, game: game}

	rl, err := readline.New("trainer> ")
	if err != nil {
		log.Fatalf("readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("chess trainer — type 'help' for commands")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if quit := app.exec(strings.Fields(strings.TrimSpace(line))); quit {
			break
		}
	}
	app.shutdown()
}

type cli struct {
	cfg    *config.Config
	sock   *client.Socket
	game   *client.Game
	engine *uci.Session
}

func (a *cli) exec(args []string) (quit bool) {
	if len(args) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "help":
		printHelp()
	case "connect":
		a.connect(ctx)
	case "create":
		if len(args) > 1 {
			a.game.SetColorPreference(args[1])
		}
		snap, err := a.game.CreateRoom(ctx, a.cfg.Client.PlayerName)
		if err != nil {
			fmt.Println("!", err)
			return false
		}
		fmt.Printf("room %s created, waiting for opponent\n", snap.ID)
	case "join":
		if len(args) < 2 {
			fmt.Println("usage: join <roomId>")
			return false
		}
		snap, err := a.game.JoinRoom(ctx, args[1], a.cfg.Client.PlayerName)
		if err != nil {
			fmt.Println("!", err)
			return false
		}
		fmt.Printf("joined room %s as %s\n", snap.ID, a.game.BoardOrientation())
	case "leave":
		if err := a.game.LeaveRoom(ctx); err != nil {
			fmt.Println("!", err)
		}
	case "move":
		if len(args) < 2 {
			fmt.Println("usage: move e2e4")
			return false
		}
		a.move(ctx, args[1])
	case "resign":
		if err := a.game.Resign(ctx); err != nil {
			fmt.Println("!", err)
		}
	case "board":
		printBoard(a.game.Position())
	case "history":
		for _, e := range a.game.History() {
			fmt.Printf("%3d. %s\n", e.Ply, e.SAN)
		}
	case "start":
		a.game.GoToStart()
		printBoard(a.game.Position())
	case "end":
		a.game.GoToEnd()
		printBoard(a.game.Position())
	case "back":
		a.game.StepBackward()
		printBoard(a.game.Position())
	case "fwd":
		a.game.StepForward()
		printBoard(a.game.Position())
	case "engine":
		a.startEngine(ctx, args)
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command:", args[0])
	}
	return false
}

func (a *cli) connect(ctx context.Context) {
	if err := client.ProbeHealth(a.cfg.Client.ServerURL, 3*time.Second); err != nil {
		fmt.Println("!", err)
		return
	}
	if err := a.sock.Connect(ctx); err != nil {
		fmt.Println("!", err)
		return
	}
	fmt.Println("connected to", a.cfg.Client.ServerURL)
}

func (a *cli) move(ctx context.Context, mv string) {
	if len(mv) < 4 {
		fmt.Println("moves are long algebraic, e.g. e2e4 or e7e8q")
		return
	}
	promo := ""
	if len(mv) > 4 {
		promo = mv[4:5]
	}
	if err := a.game.PlayMove(ctx, mv[:2], mv[2:4], promo); err != nil {
		fmt.Println("!", err)
		return
	}
	printBoard(a.game.Position())
	if res := a.game.Result(); res != nil {
		fmt.Printf("game over: %s (%s)\n", res.Outcome, res.Reason)
		return
	}
	a.engineReply(ctx)
}

// engineReply lets the engine answer when playing locally against it.
func (a *cli) engineReply(ctx context.Context) {
	if a.engine == nil || a.game.State().RoomID != "" {
		return
	}
	var lans []string
	for _, e := range a.game.History() {
		lans = append(lans, e.LAN)
	}
	mv, err := a.engine.BestMove(ctx, "", lans, uci.Limits{
		MoveTimeMillis: a.cfg.Engine.MoveTimeMillis,
	})
	if err != nil {
		fmt.Println("! engine:", err)
		return
	}
	promo := ""
	if len(mv) > 4 {
		promo = mv[4:5]
	}
	if err := a.game.PlayMove(ctx, mv[:2], mv[2:4], promo); err != nil {
		fmt.Println("! engine move rejected:", err)
		return
	}
	fmt.Println("engine plays", mv)
	printBoard(a.game.Position())
	if res := a.game.Result(); res != nil {
		fmt.Printf("game over: %s (%s)\n", res.Outcome, res.Reason)
	}
}

func (a *cli) startEngine(ctx context.Context, args []string) {
	path := a.cfg.Engine.BinaryPath
	if len(args) > 1 {
		path = args[1]
	}
	if path == "" {
		fmt.Println("usage: engine <path-to-uci-binary> (or set engine.binary_path)")
		return
	}
	if a.engine != nil {
		_ = a.engine.Close()
	}
	s, err := uci.NewSession(ctx, path, uci.Options{
		SkillLevel: a.cfg.Engine.SkillLevel,
	})
	if err != nil {
		fmt.Println("!", err)
		return
	}
	a.engine = s
	fmt.Println("engine ready — play with 'move', it answers while you are not in a room")
}

func (a *cli) shutdown() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	_ = a.sock.Close()
}

func printBoard(fen string) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		fmt.Println(fen)
		return
	}
	g := nchess.NewGame(opt)
	fmt.Print(g.Position().Board().Draw())
}

func printHelp() {
	fmt.Println(`commands:
  connect              probe the relay and open the socket
  create [color]       create a room (white|black|random)
  join <roomId>        join a room
  leave                leave the current room
  move e2e4            play a move (e7e8q to promote)
  resign               resign the game
  board|history        show the current position / move list
  start|back|fwd|end   navigate the replay timeline
  engine [path]        start a UCI engine for local play
  quit`)
}
