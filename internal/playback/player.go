package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// VolumePlaceholder in player arguments is replaced by the gain as a 0-100
// integer.
const VolumePlaceholder = "{volume}"

const (
	gainScale     = 100
	pipeWaitDelay = time.Second
)

// ErrPlayerNotFound is returned when the player command is not on PATH.
var ErrPlayerNotFound = errors.New("audio player not found")

// DefaultPlayerArgs feed stdin to ffplay without a window and exit at the end.
func DefaultPlayerArgs() []string {
	return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", VolumePlaceholder, "-i", "pipe:0"}
}

// ProcessDevice plays buffers by piping them into an external player process.
type ProcessDevice struct {
	command string
	args    []string
	log     *logger.Logger
}

// NewProcessDevice creates a device that runs command with args. Empty args
// select DefaultPlayerArgs.
func NewProcessDevice(command string, args []string, log *logger.Logger) *ProcessDevice {
	if len(args) == 0 {
		args = DefaultPlayerArgs()
	}

	return &ProcessDevice{command: command, args: args, log: log}
}

// Start launches the player. onEnded runs once when the process exits,
// whether it finished or was stopped.
func (d *ProcessDevice) Start(buf *core.AudioBuffer, gain float64, onEnded func()) (core.Source, error) {
	path, err := exec.LookPath(d.command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPlayerNotFound, d.command, err)
	}

	cmd := exec.Command(path, expandArgs(d.args, gain)...)
	cmd.Stdin = bytes.NewReader(buf.Data)
	cmd.Stdout = io.Discard
	cmd.WaitDelay = pipeWaitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", d.command, err)
	}

	source := &processSource{cmd: cmd, exited: make(chan struct{})}

	go func() {
		waitErr := cmd.Wait()
		if waitErr != nil && !source.wasStopped() {
			d.log.Warn("Player %s exited with error: %v: %s", d.command, waitErr, strings.TrimSpace(stderr.String()))
		}

		close(source.exited)

		if onEnded != nil {
			onEnded()
		}
	}()

	return source, nil
}

type processSource struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	exited  chan struct{}
}

// Stop kills the player and waits for it to exit. Stopping twice is a no-op.
func (p *processSource) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()

		return nil
	}

	p.stopped = true
	p.mu.Unlock()

	select {
	case <-p.exited:
		return nil
	default:
	}

	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}

	<-p.exited

	return nil
}

func (p *processSource) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stopped
}

func expandArgs(args []string, gain float64) []string {
	volume := strconv.Itoa(int(math.Round(clamp(gain) * gainScale)))
	expanded := make([]string, len(args))

	for i, arg := range args {
		expanded[i] = strings.ReplaceAll(arg, VolumePlaceholder, volume)
	}

	return expanded
}
