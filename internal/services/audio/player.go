package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/bobmcallan/lectio/internal/common"
)

// Player starts playback of a decoded clip.
type Player interface {
	Start(ctx context.Context, clip Clip) (Playback, error)
}

// Playback is one running clip. Done is closed when it ends, naturally or
// after Stop.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}

// ExecPlayer pipes the clip into an external command such as ffplay.
type ExecPlayer struct {
	command []string
	logger  *common.Logger
}

// NewExecPlayer creates a player for command. The command reads the clip on stdin.
func NewExecPlayer(command []string, logger *common.Logger) *ExecPlayer {
	return &ExecPlayer{command: command, logger: logger}
}

// Start launches the command. The process outlives ctx; use Stop to end it.
func (p *ExecPlayer) Start(_ context.Context, clip Clip) (Playback, error) {
	if len(p.command) == 0 {
		return nil, errors.New("no audio player configured")
	}
	path, err := exec.LookPath(p.command[0])
	if err != nil {
		return nil, fmt.Errorf("audio player %q not found: %w", p.command[0], err)
	}

	cmd := exec.Command(path, p.command[1:]...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio player: %w", err)
	}

	pb := &execPlayback{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if err != nil && !pb.stopped() {
			p.logger.Warn().Err(err).Str("player", p.command[0]).Msg("Audio player exited with error")
		}
		close(pb.done)
	}()
	return pb, nil
}

type execPlayback struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	stop bool
}

func (p *execPlayback) Stop() {
	p.mu.Lock()
	if p.stop {
		p.mu.Unlock()
		return
	}
	p.stop = true
	p.mu.Unlock()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *execPlayback) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop
}

func (p *execPlayback) Done() <-chan struct{} {
	return p.done
}

var _ Player = (*ExecPlayer)(nil)
