package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu          sync.Mutex
	credential  bool
	err         error
	voices      []provider.VoiceInfo
	history     []core.RemoteHistoryItem
	audio       []byte
	lastTTS     provider.TTSRequest
	lastVoiceID string
	lastName    string
	lastSamples []core.Sample
	deleted     []string
}

func (f *fakeUpstream) HasCredential() bool { return f.credential }

func (f *fakeUpstream) TextToSpeech(_ context.Context, voiceID string, req provider.TTSRequest) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastVoiceID = voiceID
	f.lastTTS = req

	if f.err != nil {
		return nil, "", f.err
	}

	return f.audio, "audio/mpeg", nil
}

func (f *fakeUpstream) ListVoices(context.Context) (*provider.VoicesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &provider.VoicesResponse{Voices: f.voices}, nil
}

func (f *fakeUpstream) AddVoice(_ context.Context, name string, samples []core.Sample) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastName = name
	f.lastSamples = samples

	if f.err != nil {
		return "", f.err
	}

	return "cloned-1", nil
}

func (f *fakeUpstream) EditVoiceName(_ context.Context, voiceID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastVoiceID = voiceID
	f.lastName = name

	return f.err
}

func (f *fakeUpstream) DeleteVoice(_ context.Context, voiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, voiceID)

	return f.err
}

func (f *fakeUpstream) History(context.Context) (*provider.HistoryResponse, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &provider.HistoryResponse{History: f.history}, nil
}

func (f *fakeUpstream) HistoryAudio(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}

	return f.audio, "audio/mpeg", nil
}

func (f *fakeUpstream) DeleteHistoryItem(_ context.Context, historyItemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, historyItemID)

	return f.err
}

func newTestServer(t *testing.T, upstream *fakeUpstream, opts relay.Options) *httptest.Server {
	t.Helper()

	log, err := logger.New(t.TempDir(), "relay-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	server := httptest.NewServer(relay.NewServer(upstream, log, opts).Router())
	t.Cleanup(server.Close)

	return server
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()

	var body relay.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body.Error
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeUpstream{}, relay.Options{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMissingCredential(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: false}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Get(server.URL + "/voices")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Server configuration error", decodeError(t, resp))
}

func TestTTS(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: true, audio: []byte("mp3-bytes")}
	server := newTestServer(t, upstream, relay.Options{})

	payload := `{"text":"Hello","voiceId":"v1","stability":0.4,"similarity_boost":0.8,"style":0.1,"use_speaker_boost":true}`

	resp, err := http.Post(server.URL+"/tts", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))

	var got bytes.Buffer
	_, err = got.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", got.String())

	upstream.mu.Lock()
	defer upstream.mu.Unlock()

	assert.Equal(t, "v1", upstream.lastVoiceID)
	assert.Equal(t, "Hello", upstream.lastTTS.Text)
	assert.InDelta(t, 0.8, upstream.lastTTS.VoiceSettings.SimilarityBoost, 0.0001)
	assert.True(t, upstream.lastTTS.VoiceSettings.UseSpeakerBoost)
}

func TestTTS_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "malformed", payload: `{`, want: "Invalid request body"},
		{name: "empty text", payload: `{"text":"  ","voiceId":"v1"}`, want: "Text is required"},
		{name: "missing voice", payload: `{"text":"hi"}`, want: "Voice ID is required"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, &fakeUpstream{credential: true}, relay.Options{})

			resp, err := http.Post(server.URL+"/tts", "application/json", strings.NewReader(testCase.payload))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, testCase.want, decodeError(t, resp))
		})
	}
}

func TestProviderStatusPassthrough(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{
		credential: true,
		err:        &provider.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid API key"},
	}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Get(server.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid API key", decodeError(t, resp))
}

func TestUnexpectedUpstreamFailure(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: true, err: errors.New("connection refused")}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Get(server.URL + "/voices")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to fetch voices", decodeError(t, resp))
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{
		credential: true,
		voices: []provider.VoiceInfo{
			{VoiceID: "v1", Name: "Rachel", Category: "premade"},
			{VoiceID: "v2", Name: "Mine", Category: "cloned"},
		},
	}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Get(server.URL + "/voices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body relay.VoiceListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Voices, 2)
	assert.Equal(t, "cloned", body.Voices[1].Category)
}

func TestCloneVoice(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: true}
	server := newTestServer(t, upstream, relay.Options{})

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)
	require.NoError(t, writer.WriteField("name", "My Voice"))

	part, err := writer.CreateFormFile("files", "sample.mp3")
	require.NoError(t, err)

	_, err = part.Write([]byte("sample-data"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(server.URL+"/clone-voice", writer.FormDataContentType(), &form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body relay.CloneResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cloned-1", body.VoiceID)
	assert.True(t, body.Success)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()

	assert.Equal(t, "My Voice", upstream.lastName)
	require.Len(t, upstream.lastSamples, 1)
	assert.Equal(t, []byte("sample-data"), upstream.lastSamples[0].Data)
}

func TestCloneVoice_NoFiles(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeUpstream{credential: true}, relay.Options{})

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)
	require.NoError(t, writer.WriteField("name", "My Voice"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(server.URL+"/clone-voice", writer.FormDataContentType(), &form)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRenameAndDeleteVoice(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: true}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Post(server.URL+"/clone-voice/v9/name", "application/json", strings.NewReader(`{"name":"Renamed"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/clone-voice/v9", http.NoBody)
	require.NoError(t, err)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	upstream.mu.Lock()
	defer upstream.mu.Unlock()

	assert.Equal(t, "Renamed", upstream.lastName)
	assert.Equal(t, []string{"v9"}, upstream.deleted)
}

func TestHistoryAudio_Disposition(t *testing.T) {
	t.Parallel()

	upstream := &fakeUpstream{credential: true, audio: []byte("history-audio")}
	server := newTestServer(t, upstream, relay.Options{})

	resp, err := http.Get(server.URL + "/history/h42/audio")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="tts-h42.mp3"`, resp.Header.Get("Content-Disposition"))
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeUpstream{credential: true}, relay.Options{
		RateLimitRPM:   1,
		RateLimitBurst: 1,
	})

	first, err := http.Get(server.URL + "/history")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(server.URL + "/history")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	limiter := relay.NewRateLimiter(0, 1)
	assert.False(t, limiter.Enabled())

	for range 10 {
		assert.True(t, limiter.Allow("client"))
	}
}

func TestRateLimiter_PerKey(t *testing.T) {
	t.Parallel()

	limiter := relay.NewRateLimiter(1, 1)

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
}
