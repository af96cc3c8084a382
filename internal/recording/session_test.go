package recording_test

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermissionDenied = errors.New("permission denied")

type fakeTrack struct {
	once    sync.Once
	chunks  chan []byte
	stopped chan struct{}
}

func newFakeTrack() *fakeTrack {
	return &fakeTrack{chunks: make(chan []byte, 16), stopped: make(chan struct{})}
}

func (f *fakeTrack) Chunks() <-chan []byte { return f.chunks }

func (f *fakeTrack) Stop() error {
	f.once.Do(func() {
		close(f.chunks)
		close(f.stopped)
	})

	return nil
}

type fakeCapture struct {
	mu     sync.Mutex
	err    error
	tracks []*fakeTrack
}

func (f *fakeCapture) Open(context.Context) (core.CaptureTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	track := newFakeTrack()
	f.tracks = append(f.tracks, track)

	return track, nil
}

func (f *fakeCapture) last() *fakeTrack {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.tracks[len(f.tracks)-1]
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "recording-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestStartStop_FinalizesChunks(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	session := recording.NewSession(capture, newTestLogger(t), time.Hour)

	require.NoError(t, session.Start(context.Background()))
	assert.Equal(t, recording.StateRecording, session.State())
	assert.Empty(t, session.Samples())

	track := capture.last()
	track.chunks <- []byte("abc")
	track.chunks <- []byte("def")

	sample, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), sample.Data)
	assert.Equal(t, recording.StateIdle, session.State())

	select {
	case <-track.stopped:
	default:
		t.Fatal("device track was not released")
	}

	recorded, ok := session.Recorded()
	require.True(t, ok)
	assert.Equal(t, sample, recorded)
	assert.Equal(t, []core.Sample{sample}, session.Samples())
}

func TestStart_DeviceFailureStaysIdle(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{err: errPermissionDenied}, newTestLogger(t), 0)

	err := session.Start(context.Background())

	var deviceErr *core.DeviceAccessError
	require.ErrorAs(t, err, &deviceErr)
	require.ErrorIs(t, err, errPermissionDenied)
	assert.Equal(t, recording.StateIdle, session.State())
}

func TestSecondsCounterTicks(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{}, newTestLogger(t), 10*time.Millisecond)

	require.NoError(t, session.Start(context.Background()))
	assert.Eventually(t, func() bool { return session.Seconds() >= 2 }, 2*time.Second, 5*time.Millisecond)

	_, err := session.Stop()
	require.NoError(t, err)

	stopped := session.Seconds()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, session.Seconds(), stopped+1)
}

func TestStart_RefusedWhileSampleExists(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{}, newTestLogger(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))
	require.ErrorIs(t, session.Start(ctx), recording.ErrAlreadyRecording)

	_, err := session.Stop()
	require.NoError(t, err)

	var validationErr *core.ValidationError
	require.ErrorAs(t, session.Start(ctx), &validationErr)

	session.Reset()
	_, ok := session.Recorded()
	assert.False(t, ok)
	assert.Zero(t, session.Seconds())

	require.NoError(t, session.Start(ctx))
	_, err = session.Stop()
	require.NoError(t, err)
}

func TestSelectFile_ClearsRecording(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{}, newTestLogger(t), time.Hour)
	ctx := context.Background()

	require.NoError(t, session.Start(ctx))
	require.ErrorIs(t, session.SelectFile("take.mp3", []byte("file")), recording.ErrAlreadyRecording)

	_, err := session.Stop()
	require.NoError(t, err)

	require.NoError(t, session.SelectFile("take.mp3", []byte("file")))

	_, ok := session.Recorded()
	assert.False(t, ok)
	assert.Equal(t, []core.Sample{{Name: "take.mp3", Data: []byte("file")}}, session.Samples())

	require.NoError(t, session.Start(ctx))
	assert.Empty(t, session.Samples(), "starting a take drops the selected file")

	_, err = session.Stop()
	require.NoError(t, err)
}

func TestSelectFile_Empty(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{}, newTestLogger(t), 0)

	var validationErr *core.ValidationError
	require.ErrorAs(t, session.SelectFile("empty.wav", nil), &validationErr)
}

func TestStop_WhenIdle(t *testing.T) {
	t.Parallel()

	session := recording.NewSession(&fakeCapture{}, newTestLogger(t), 0)

	_, err := session.Stop()
	require.ErrorIs(t, err, recording.ErrNotRecording)
}

func TestProcessCapture(t *testing.T) {
	t.Parallel()

	_, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}

	log := newTestLogger(t)
	capture := recording.NewProcessCapture("sh", []string{"-c", "printf captured; exec sleep 30"}, 4, log)
	session := recording.NewSession(capture, log, time.Hour)

	require.NoError(t, session.Start(context.Background()))

	time.Sleep(200 * time.Millisecond)

	sample, err := session.Stop()
	require.NoError(t, err)
	assert.Equal(t, "captured", string(sample.Data))
}

func TestProcessCapture_MissingCommand(t *testing.T) {
	t.Parallel()

	capture := recording.NewProcessCapture("voice-studio-no-such-recorder", nil, 0, newTestLogger(t))
	session := recording.NewSession(capture, newTestLogger(t), 0)

	err := session.Start(context.Background())

	var deviceErr *core.DeviceAccessError
	require.ErrorAs(t, err, &deviceErr)
	require.ErrorIs(t, err, recording.ErrRecorderNotFound)
}

type slowTrack struct {
	*fakeTrack
	stopCalled chan struct{}
	release    chan struct{}
}

func (s *slowTrack) Stop() error {
	close(s.stopCalled)
	<-s.release

	return s.fakeTrack.Stop()
}

type slowCapture struct {
	track *slowTrack
}

func (s *slowCapture) Open(context.Context) (core.CaptureTrack, error) {
	return s.track, nil
}

func TestStop_ConcurrentCallsFinalizeOnce(t *testing.T) {
	t.Parallel()

	track := &slowTrack{
		fakeTrack:  newFakeTrack(),
		stopCalled: make(chan struct{}),
		release:    make(chan struct{}),
	}
	session := recording.NewSession(&slowCapture{track: track}, newTestLogger(t), time.Hour)

	require.NoError(t, session.Start(context.Background()))
	track.chunks <- []byte("take")

	type result struct {
		sample core.Sample
		err    error
	}

	first := make(chan result, 1)

	go func() {
		sample, err := session.Stop()
		first <- result{sample: sample, err: err}
	}()

	<-track.stopCalled

	_, err := session.Stop()
	require.ErrorIs(t, err, recording.ErrNotRecording)

	close(track.release)

	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, []byte("take"), got.sample.Data)
	assert.Equal(t, recording.StateIdle, session.State())

	_, err = session.Stop()
	require.ErrorIs(t, err, recording.ErrNotRecording)
}
