package client

import (
	nchess "github.com/corentings/chess/v2"

	"chesstrainer/pkg/wire"
)

func oppositeColor(c string) string {
	if c == "white" {
		return "black"
	}
	return "white"
}

// resultFromGame derives a terminal result from the rules engine, or
// nil while the game is still live.
func resultFromGame(g *nchess.Game) *wire.GameResult {
	switch g.Outcome() {
	case nchess.WhiteWon:
		return winResult("white")
	case nchess.BlackWon:
		return winResult("black")
	case nchess.Draw:
		return &wire.GameResult{Outcome: "draw", Reason: drawReason(g.Method())}
	default:
		return nil
	}
}

func winResult(winner string) *wire.GameResult {
	return &wire.GameResult{
		Winner:  winner,
		Loser:   oppositeColor(winner),
		Outcome: winner,
		Reason:  "checkmate",
	}
}

func drawReason(m nchess.Method) string {
	switch m {
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return "repetition"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return "draw"
	}
}

// resignResult shapes the outcome of a resignation. With no winner it
// degrades to a draw-shaped result, matching the relay.
func resignResult(winner string) *wire.GameResult {
	if winner == "" {
		return &wire.GameResult{Outcome: "draw", Reason: "resign"}
	}
	return &wire.GameResult{
		Winner:  winner,
		Loser:   oppositeColor(winner),
		Outcome: winner,
		Reason:  "resign",
	}
}
