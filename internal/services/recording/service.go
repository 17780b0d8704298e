// Package recording captures a spoken take of the current verse and uploads it.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/interfaces"
	"github.com/bobmcallan/lectio/internal/models"
)

// Recorder starts a capture.
type Recorder interface {
	Start(ctx context.Context) (Take, error)
}

// Take is a capture in progress. Stop ends it and returns the WAV bytes.
type Take interface {
	Stop() ([]byte, error)
}

// Invalidator forgets cached audio availability for a verse.
type Invalidator interface {
	Invalidate(ref string)
}

// Service toggles capture and uploads finished takes.
type Service struct {
	client   interfaces.AudioClient
	recorder Recorder
	audio    Invalidator
	logger   *common.Logger
	newName  func() string

	mu        sync.Mutex
	state     models.RecordingState
	starting  bool
	take      Take
	pos       models.Position
	observers []func()
}

// NewService creates a recording service. audio may be nil.
func NewService(client interfaces.AudioClient, recorder Recorder, audio Invalidator, logger *common.Logger) *Service {
	return &Service{
		client:   client,
		recorder: recorder,
		audio:    audio,
		logger:   logger,
		newName:  func() string { return uuid.New().String() + ".wav" },
	}
}

// State returns the recording state.
func (s *Service) State() models.RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers fn to run after every state change.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Service) set(state models.RecordingState) {
	s.mu.Lock()
	s.state = state
	observers := append([]func(){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Toggle starts a take for pos, or stops the running take and uploads it
// for the verse it was started on. A capture still starting or an upload in
// progress ignores the call.
func (s *Service) Toggle(ctx context.Context, pos models.Position) {
	s.mu.Lock()
	if s.state.Uploading || s.starting {
		s.mu.Unlock()
		return
	}
	take, started := s.take, s.pos
	s.take = nil
	if take != nil {
		s.state.Uploading = true
	} else {
		s.starting = true
	}
	s.mu.Unlock()

	if take == nil {
		s.start(ctx, pos)
		return
	}
	s.finish(ctx, started, take)
}

func (s *Service) start(ctx context.Context, pos models.Position) {
	take, err := s.recorder.Start(ctx)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("ref", pos.Ref()).Msg("Failed to start recording")
		s.set(models.RecordingState{Message: "Recording unavailable"})
		return
	}

	s.mu.Lock()
	s.starting = false
	s.take = take
	s.pos = pos
	s.mu.Unlock()

	s.logger.Info().Str("ref", pos.Ref()).Msg("Recording started")
	s.set(models.RecordingState{Recording: true, Message: "Recording " + pos.Ref()})
}

func (s *Service) finish(ctx context.Context, pos models.Position, take Take) {
	ref := pos.Ref()
	s.set(models.RecordingState{Uploading: true, Message: "Uploading " + ref})

	data, err := take.Stop()
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", ref).Msg("Recording failed")
		s.set(models.RecordingState{Message: "Recording failed"})
		return
	}
	if len(data) == 0 {
		s.set(models.RecordingState{Message: "Nothing recorded"})
		return
	}

	name := s.newName()
	if err := s.client.UploadRecording(ctx, pos, name, data); err != nil {
		s.logger.Error().Err(err).Str("ref", ref).Str("file", name).Msg("Recording upload failed")
		s.set(models.RecordingState{Message: "Upload failed"})
		return
	}

	if s.audio != nil {
		s.audio.Invalidate(ref)
	}
	s.logger.Info().Str("ref", ref).Str("file", name).Int("bytes", len(data)).Msg("Recording uploaded")
	s.set(models.RecordingState{Message: "Recording saved for " + ref})
}

// ExecRecorder runs a capture command that writes WAV to stdout, such as arecord.
type ExecRecorder struct {
	command []string
}

// NewExecRecorder creates a recorder for command.
func NewExecRecorder(command []string) *ExecRecorder {
	return &ExecRecorder{command: command}
}

// Start launches the capture command.
func (r *ExecRecorder) Start(_ context.Context) (Take, error) {
	if len(r.command) == 0 {
		return nil, errors.New("no recording command configured")
	}
	path, err := exec.LookPath(r.command[0])
	if err != nil {
		return nil, fmt.Errorf("recorder %q not found: %w", r.command[0], err)
	}

	t := &execTake{cmd: exec.Command(path, r.command[1:]...)}
	t.cmd.Stdout = &t.out
	if err := t.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	return t, nil
}

type execTake struct {
	cmd *exec.Cmd
	out bytes.Buffer
}

// Stop interrupts the command so it can finish the WAV stream, then waits.
func (t *execTake) Stop() ([]byte, error) {
	if err := t.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = t.cmd.Process.Kill()
	}
	// Interrupted recorders exit non-zero; what matters is the captured audio.
	if err := t.cmd.Wait(); err != nil && t.out.Len() == 0 {
		return nil, fmt.Errorf("recorder exited: %w", err)
	}
	return t.out.Bytes(), nil
}

var _ Recorder = (*ExecRecorder)(nil)
