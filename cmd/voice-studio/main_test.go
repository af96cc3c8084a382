package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyEnv  = "VOICE_STUDIO_CLI_TEST_KEY"
	testAPIKey  = "cli-secret"
	testTTSBody = "ID3-hello"
	testHistory = "ID3-history"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "cli-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.Header.Get("xi-api-key"))
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade"}]}`))
	})
	mux.HandleFunc("POST /v1/text-to-speech/{voiceId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1", r.PathValue("voiceId"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(testTTSBody))
	})
	mux.HandleFunc("GET /v1/history", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"history":[{"history_item_id":"h1","text":"Earlier","voice_id":"v1","voice_name":"Rachel","date_unix":1700000000}]}`))
	})
	mux.HandleFunc("GET /v1/history/{id}/audio", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(testHistory))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// writeConfig starts a relay in front of providerURL and writes a config file
// pointing the CLI at it.
func writeConfig(t *testing.T, providerURL string) (string, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Provider.BaseURL = providerURL
	cfg.Provider.APIKeyEnv = testKeyEnv

	relayEnv := &env{cfg: cfg, log: newTestLogger(t), stderr: io.Discard}
	relayServer := httptest.NewServer(relayEnv.relayHandler())
	t.Cleanup(relayServer.Close)

	dir := t.TempDir()
	exportDir := filepath.Join(dir, "exports")
	body := fmt.Sprintf(`
[provider]
api_key_env = %q

[studio]
relay_url = %q

[storage]
dir = %q
export_dir = %q

[paths]
base_logs_dir = %q
`, testKeyEnv, relayServer.URL, filepath.Join(dir, "state"), exportDir, dir)

	path := filepath.Join(dir, "voice-studio.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path, exportDir
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	app := &cli{}
	root := newRootCmd(app)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(bytes.NewReader(nil))

	err := root.ExecuteContext(context.Background())
	require.NoError(t, app.close())

	return stdout.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	t.Setenv(testKeyEnv, testAPIKey)

	provider := fakeProvider(t)
	configPath, exportDir := writeConfig(t, provider.URL)
	work := t.TempDir()

	out, err := runCLI(t, configPath, "voices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Rachel")
	assert.Contains(t, out, "built-in")

	out, err = runCLI(t, configPath, "voices", "list", "--json")
	require.NoError(t, err)

	var voices []core.Voice
	require.NoError(t, json.Unmarshal([]byte(out), &voices))
	assert.Equal(t, []core.Voice{{ID: "v1", Name: "Rachel", Category: core.CategoryBuiltIn}}, voices)

	audioPath := filepath.Join(work, "hello.mp3")
	out, err = runCLI(t, configPath, "speak", "--no-play", "-o", audioPath, "Hello world")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated")
	assert.Contains(t, out, "Rachel")

	written, err := os.ReadFile(audioPath)
	require.NoError(t, err)
	assert.Equal(t, testTTSBody, string(written))

	out, err = runCLI(t, configPath, "history", "local", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello world")

	out, err = runCLI(t, configPath, "presets", "save", "Calm", "--voice", "v1", "--stability", "0.3")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved preset Calm")

	out, err = runCLI(t, configPath, "presets", "list", "--json")
	require.NoError(t, err)

	var presets []core.Preset
	require.NoError(t, json.Unmarshal([]byte(out), &presets))
	require.Len(t, presets, 1)
	assert.InDelta(t, 0.3, presets[0].Settings.Stability, 1e-9)
	assert.InDelta(t, core.DefaultSimilarityBoost, presets[0].Settings.SimilarityBoost, 1e-9)

	out, err = runCLI(t, configPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "h1")
	assert.Contains(t, out, "Earlier")

	historyPath := filepath.Join(work, "h1.mp3")
	_, err = runCLI(t, configPath, "history", "audio", "h1", "-o", historyPath)
	require.NoError(t, err)

	written, err = os.ReadFile(historyPath)
	require.NoError(t, err)
	assert.Equal(t, testHistory, string(written))

	out, err = runCLI(t, configPath, "export", "h1")
	require.NoError(t, err)
	assert.Contains(t, out, "tts-h1.mp3")

	exported, err := os.ReadFile(filepath.Join(exportDir, "tts-h1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, testHistory, string(exported))

	_, err = runCLI(t, configPath, "history", "local", "clear")
	require.NoError(t, err)

	out, err = runCLI(t, configPath, "history", "local", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Hello world")
}

func TestCLI_BlankTextRejected(t *testing.T) {
	t.Setenv(testKeyEnv, testAPIKey)

	provider := fakeProvider(t)
	configPath, _ := writeConfig(t, provider.URL)

	_, err := runCLI(t, configPath, "speak", "--no-play", "   ")

	var validationErr *core.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCLI_AutoPlayOffSkipsPlayer(t *testing.T) {
	t.Setenv(testKeyEnv, testAPIKey)

	provider := fakeProvider(t)
	configPath, _ := writeConfig(t, provider.URL)

	rewrite := func(old, replacement string) {
		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configPath, []byte(strings.Replace(string(data), old, replacement, 1)), 0o600))
	}

	rewrite("[paths]", "[playback]\ncommand = \"voice-studio-no-such-player\"\n\n[paths]")

	_, err := runCLI(t, configPath, "speak", "--volume", "0.5", "Hello world")
	require.ErrorIs(t, err, playback.ErrPlayerNotFound)

	rewrite("[studio]", "[studio]\nauto_play = false")

	out, err := runCLI(t, configPath, "speak", "Hello world")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated")
}

func TestCLI_MissingCredential(t *testing.T) {
	t.Setenv(testKeyEnv, "")

	provider := fakeProvider(t)
	configPath, _ := writeConfig(t, provider.URL)

	_, err := runCLI(t, configPath, "voices", "list")

	var remoteErr *core.RemoteOperationError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
	assert.Equal(t, "Server configuration error", remoteErr.Message)
}

func TestReadText(t *testing.T) {
	t.Parallel()

	text, err := readText([]string{"Hi"}, bytes.NewReader([]byte("ignored")))
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)

	text, err = readText([]string{"-"}, bytes.NewReader([]byte("from stdin\n")))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	text, err = readText(nil, bytes.NewReader([]byte("piped\n\n")))
	require.NoError(t, err)
	assert.Equal(t, "piped", text)
}

func TestSettingsFlags_OnlyChangedOverride(t *testing.T) {
	t.Parallel()

	var flags settingsFlags

	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--style", "0.4", "--speaker-boost=false"}))

	base := core.VoiceSettings{Stability: 0.9, SimilarityBoost: 0.1, Style: 0, UseSpeakerBoost: true}
	got := flags.apply(cmd, base)

	assert.Equal(t, core.VoiceSettings{Stability: 0.9, SimilarityBoost: 0.1, Style: 0.4, UseSpeakerBoost: false}, got)
}

func TestOutputFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      []string
		wantErr   bool
		wantVol   float64
		wantMuted bool
	}{
		{name: "untouched", args: nil, wantVol: 0.6},
		{name: "volume and mute", args: []string{"--volume", "0.3", "--mute"}, wantVol: 0.3, wantMuted: true},
		{name: "zero volume", args: []string{"--volume", "0"}, wantVol: 0},
		{name: "out of range", args: []string{"--volume", "1.5"}, wantErr: true, wantVol: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var flags outputFlags

			cmd := &cobra.Command{Use: "test"}
			flags.register(cmd)
			require.NoError(t, cmd.Flags().Parse(tt.args))

			output := playback.NewOutput(nil, 0.6)
			err := flags.apply(cmd, output)

			if tt.wantErr {
				var validationErr *core.ValidationError
				require.ErrorAs(t, err, &validationErr)
			} else {
				require.NoError(t, err)
			}

			assert.InDelta(t, tt.wantVol, output.Volume(), 1e-9)
			assert.Equal(t, tt.wantMuted, output.Muted())
		})
	}
}

func TestCloneSamples(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	dir := t.TempDir()

	first := filepath.Join(dir, "one.wav")
	second := filepath.Join(dir, "two.mp3")
	notes := filepath.Join(dir, "notes.txt")

	require.NoError(t, os.WriteFile(first, []byte("one"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("two"), 0o600))
	require.NoError(t, os.WriteFile(notes, []byte("text"), 0o600))

	newRecorder := func() *recording.Session {
		return recording.NewSession(recording.NewProcessCapture("voice-studio-no-such-recorder", nil, 0, log), log, time.Second)
	}

	ctx := context.Background()

	samples, err := cloneSamples(ctx, newRecorder(), []string{first}, false, takeLimits{length: time.Second}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []core.Sample{{Name: "one.wav", Data: []byte("one")}}, samples)

	samples, err = cloneSamples(ctx, newRecorder(), []string{first, second}, false, takeLimits{length: time.Second}, io.Discard)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	var validationErr *core.ValidationError

	_, err = cloneSamples(ctx, newRecorder(), []string{notes}, false, takeLimits{length: time.Second}, io.Discard)
	require.ErrorAs(t, err, &validationErr)

	_, err = cloneSamples(ctx, newRecorder(), []string{first}, true, takeLimits{length: time.Second}, io.Discard)
	require.ErrorAs(t, err, &validationErr)

	_, err = cloneSamples(ctx, newRecorder(), nil, true, takeLimits{length: time.Second}, io.Discard)

	var deviceErr *core.DeviceAccessError
	require.ErrorAs(t, err, &deviceErr)
}

type chunkTrack struct {
	once   sync.Once
	chunks chan []byte
}

func (c *chunkTrack) Chunks() <-chan []byte { return c.chunks }

func (c *chunkTrack) Stop() error {
	c.once.Do(func() { close(c.chunks) })

	return nil
}

type chunkCapture struct{}

func (chunkCapture) Open(context.Context) (core.CaptureTrack, error) {
	track := &chunkTrack{chunks: make(chan []byte, 1)}
	track.chunks <- []byte("take")

	return track, nil
}

func TestCloneSamples_EnterStopsTakeAndKeepsIt(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	rec := recording.NewSession(chunkCapture{}, log, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer

	limits := takeLimits{length: time.Hour, early: stopOnEnter(strings.NewReader("\n"))}

	samples, err := cloneSamples(ctx, rec, nil, true, limits, &out)
	require.NoError(t, err)
	require.NoError(t, ctx.Err())
	assert.Equal(t, []core.Sample{{Name: "recording.wav", Data: []byte("take")}}, samples)
	assert.Contains(t, out.String(), "press Enter to stop early")
}

func TestCloneSamples_CancelAbortsTake(t *testing.T) {
	t.Parallel()

	rec := recording.NewSession(chunkCapture{}, newTestLogger(t), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cloneSamples(ctx, rec, nil, true, takeLimits{length: time.Hour}, io.Discard)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStopOnEnter_EndOfInputNeverStops(t *testing.T) {
	t.Parallel()

	early := stopOnEnter(strings.NewReader("no newline"))

	select {
	case <-early:
		t.Fatal("end of input stopped the take")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, printTable(&out, []any{"ID", "NAME"}, [][]any{{"v1", "Rachel"}, {"voice-22", "Me"}}))

	assert.Equal(t, "ID        NAME\nv1        Rachel\nvoice-22  Me\n", out.String())
}
