package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// DefaultChunkBytes is the read size used when none is configured.
const DefaultChunkBytes = 4096

const (
	stopGrace     = 2 * time.Second
	chunkBuffer   = 64
	pipeWaitDelay = time.Second
)

// ErrRecorderNotFound is returned when the capture command is not on PATH.
var ErrRecorderNotFound = errors.New("audio recorder not found")

// DefaultRecorderArgs capture 16-bit mono WAV at 44.1 kHz to stdout.
func DefaultRecorderArgs() []string {
	return []string{"-q", "-f", "S16_LE", "-r", "44100", "-c", "1", "-t", "wav", "-"}
}

// ProcessCapture records by reading the stdout of an external capture process.
type ProcessCapture struct {
	command    string
	args       []string
	chunkBytes int
	log        *logger.Logger
}

// NewProcessCapture creates a capture backend. Empty args select
// DefaultRecorderArgs.
func NewProcessCapture(command string, args []string, chunkBytes int, log *logger.Logger) *ProcessCapture {
	if len(args) == 0 {
		args = DefaultRecorderArgs()
	}

	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}

	return &ProcessCapture{command: command, args: args, chunkBytes: chunkBytes, log: log}
}

// Open starts the capture process.
func (c *ProcessCapture) Open(ctx context.Context) (core.CaptureTrack, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	path, err := exec.LookPath(c.command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRecorderNotFound, c.command, err)
	}

	cmd := exec.Command(path, c.args...)
	cmd.WaitDelay = pipeWaitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s output: %w", c.command, err)
	}

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.command, err)
	}

	track := &processTrack{
		cmd:      cmd,
		chunks:   make(chan []byte, chunkBuffer),
		readDone: make(chan struct{}),
		exited:   make(chan struct{}),
	}

	go track.read(stdout, c.chunkBytes)

	go func() {
		<-track.readDone

		waitErr := cmd.Wait()
		if waitErr != nil && !track.wasStopped() {
			c.log.Warn("Recorder %s exited with error: %v: %s", c.command, waitErr, strings.TrimSpace(stderr.String()))
		}

		close(track.exited)
	}()

	return track, nil
}

type processTrack struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	chunks   chan []byte
	readDone chan struct{}
	exited   chan struct{}
	stopped  bool
}

func (t *processTrack) Chunks() <-chan []byte {
	return t.chunks
}

// Stop interrupts the recorder so it flushes, then kills it if it lingers.
func (t *processTrack) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()

		return nil
	}

	t.stopped = true
	t.mu.Unlock()

	err := t.cmd.Process.Signal(os.Interrupt)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to interrupt recorder: %w", err)
	}

	select {
	case <-t.exited:
		return nil
	case <-time.After(stopGrace):
	}

	err = t.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill recorder: %w", err)
	}

	<-t.exited

	return nil
}

func (t *processTrack) read(stdout io.Reader, chunkBytes int) {
	defer close(t.readDone)
	defer close(t.chunks)

	for {
		buf := make([]byte, chunkBytes)

		n, err := stdout.Read(buf)
		if n > 0 {
			t.chunks <- buf[:n]
		}

		if err != nil {
			return
		}
	}
}

func (t *processTrack) wasStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}
