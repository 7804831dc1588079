// Package uci drives an external UCI chess engine over stdin/stdout for
// the trainer's play-vs-engine mode. One session wraps one engine
// process.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultReadyTimeout = 4 * time.Second

// Options configure the engine at startup.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
}

// Limits bound one search.
type Limits struct {
	Depth          int
	MoveTimeMillis int
}

type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	search sync.Mutex
}

// NewSession starts the engine binary and completes the UCI handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	cmd := exec.CommandContext(ctx, binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdoutPipe),
	}
	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	if err := s.send("uci\n"); err != nil {
		return err
	}
	if err := s.waitFor(ctx, "uciok"); err != nil {
		return fmt.Errorf("uci handshake: %w", err)
	}
	if opt.Threads > 0 {
		if err := s.send(fmt.Sprintf("setoption name Threads value %d\n", opt.Threads)); err != nil {
			return err
		}
	}
	if opt.HashMB > 0 {
		if err := s.send(fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB)); err != nil {
			return err
		}
	}
	if opt.SkillLevel > 0 {
		if err := s.send(fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel)); err != nil {
			return err
		}
	}
	if err := s.send("isready\n"); err != nil {
		return err
	}
	return s.waitFor(ctx, "readyok")
}

// BestMove searches the position reached by moves (UCI, from the start
// position unless fen is set) and returns the engine's choice.
func (s *Session) BestMove(ctx context.Context, fen string, moves []string, limits Limits) (string, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.send(buildPositionCommand(fen, moves)); err != nil {
		return "", fmt.Errorf("send position: %w", err)
	}
	if err := s.send(buildGoCommand(limits)); err != nil {
		return "", fmt.Errorf("send go: %w", err)
	}

	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return "", err
		}
		if mv, ok := parseBestMove(line); ok {
			if mv == "(none)" {
				return "", fmt.Errorf("no legal move")
			}
			return mv, nil
		}
	}
}

// Close asks the engine to quit and reaps the process.
func (s *Session) Close() error {
	_ = s.send("quit\n")
	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(defaultReadyTimeout):
		_ = s.cmd.Process.Kill()
		return <-done
	}
}

func (s *Session) send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, cmd)
	return err
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) waitFor(ctx context.Context, token string) error {
	deadline, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	for {
		line, err := s.readLine(deadline)
		if err != nil {
			return err
		}
		if line == token {
			return nil
		}
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var b strings.Builder
	if fen == "" || fen == "startpos" {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(fen)
	}
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	b.WriteString("\n")
	return b.String()
}

func buildGoCommand(l Limits) string {
	switch {
	case l.Depth > 0:
		return fmt.Sprintf("go depth %d\n", l.Depth)
	case l.MoveTimeMillis > 0:
		return fmt.Sprintf("go movetime %d\n", l.MoveTimeMillis)
	default:
		return "go movetime 1000\n"
	}
}

func parseBestMove(line string) (string, bool) {
	if !strings.HasPrefix(line, "bestmove") {
		return "", false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	return fields[1], true
}
