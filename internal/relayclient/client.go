// Package relayclient is the studio's gateway: it reaches the speech provider
// through the proxy relay and converts every failure into the studio error
// taxonomy.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/relay"
)

// Relay routes.
const (
	pathVoices       = "/voices"
	pathCloneVoice   = "/clone-voice"
	pathVoiceNameFmt = "/clone-voice/%s/name"
	pathVoiceFmt     = "/clone-voice/%s"
	pathTTS          = "/tts"
	pathHistory      = "/history"
	pathHistoryFmt   = "/history/%s"
	pathHistoryAudio = "/history/%s/audio"
)

const (
	contentTypeJSON   = "application/json"
	providerCloned    = "cloned"
	maxErrorBodyBytes = 64 << 10
	msgEmptyAudio     = "response contained no audio"
)

// Client implements core.Gateway against a relay base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the relay at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListVoices fetches every voice and maps provider categories onto built-in
// and cloned.
func (c *Client) ListVoices(ctx context.Context) ([]core.Voice, error) {
	var listing relay.VoiceListResponse

	err := c.doJSON(ctx, core.OpListVoices, http.MethodGet, pathVoices, nil, &listing)
	if err != nil {
		return nil, err
	}

	voices := make([]core.Voice, 0, len(listing.Voices))

	for _, entry := range listing.Voices {
		category := core.CategoryBuiltIn
		if entry.Category == providerCloned {
			category = core.CategoryCloned
		}

		voices = append(voices, core.Voice{
			ID:         entry.VoiceID,
			Name:       entry.Name,
			Category:   category,
			PreviewURL: entry.PreviewURL,
		})
	}

	return voices, nil
}

// Synthesize posts the request to /tts and returns the audio bytes.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	body := relay.TTSRequestBody{
		Text:            req.Text,
		VoiceID:         req.VoiceID,
		ModelID:         req.ModelID,
		Stability:       req.Settings.Stability,
		SimilarityBoost: req.Settings.SimilarityBoost,
		Style:           req.Settings.Style,
		UseSpeakerBoost: req.Settings.UseSpeakerBoost,
	}

	return c.fetchAudio(ctx, core.OpSynthesize, http.MethodPost, pathTTS, body)
}

// CloneVoice uploads the samples and returns the new voice id.
func (c *Client) CloneVoice(ctx context.Context, name string, samples []core.Sample) (string, error) {
	form, contentType, err := buildCloneForm(name, samples)
	if err != nil {
		return "", &core.RemoteOperationError{Op: core.OpCloneVoice, Message: err.Error(), Err: err}
	}

	resp, err := c.send(ctx, core.OpCloneVoice, http.MethodPost, pathCloneVoice, form, contentType)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var cloned relay.CloneResponse

	err = decode(core.OpCloneVoice, resp, &cloned)
	if err != nil {
		return "", err
	}

	if cloned.VoiceID == "" {
		return "", &core.ProviderContractError{
			Op:      core.OpCloneVoice,
			Message: "clone succeeded but no voice id was returned",
		}
	}

	return cloned.VoiceID, nil
}

// RenameVoice changes a voice's display name.
func (c *Client) RenameVoice(ctx context.Context, voiceID, name string) error {
	path := fmt.Sprintf(pathVoiceNameFmt, url.PathEscape(voiceID))

	return c.doJSON(ctx, core.OpRenameVoice, http.MethodPost, path, relay.RenameRequestBody{Name: name}, nil)
}

// DeleteVoice removes a voice.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	path := fmt.Sprintf(pathVoiceFmt, url.PathEscape(voiceID))

	return c.doJSON(ctx, core.OpDeleteVoice, http.MethodDelete, path, nil, nil)
}

// FetchHistory lists the provider-side history.
func (c *Client) FetchHistory(ctx context.Context) ([]core.RemoteHistoryItem, error) {
	var listing relay.HistoryListResponse

	err := c.doJSON(ctx, core.OpFetchHistory, http.MethodGet, pathHistory, nil, &listing)
	if err != nil {
		return nil, err
	}

	if listing.History == nil {
		return []core.RemoteHistoryItem{}, nil
	}

	return listing.History, nil
}

// DeleteHistoryItem removes one provider history item.
func (c *Client) DeleteHistoryItem(ctx context.Context, historyItemID string) error {
	path := fmt.Sprintf(pathHistoryFmt, url.PathEscape(historyItemID))

	return c.doJSON(ctx, core.OpDeleteHistory, http.MethodDelete, path, nil, nil)
}

// FetchHistoryAudio downloads the audio of one provider history item.
func (c *Client) FetchHistoryAudio(ctx context.Context, historyItemID string) ([]byte, error) {
	path := fmt.Sprintf(pathHistoryAudio, url.PathEscape(historyItemID))

	return c.fetchAudio(ctx, core.OpFetchHistoryAudio, http.MethodGet, path, nil)
}

func (c *Client) fetchAudio(ctx context.Context, op core.Operation, method, path string, payload any) ([]byte, error) {
	body, contentType, err := encodeJSON(op, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, op, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.RemoteOperationError{Op: op, Message: "failed to read audio", Err: err}
	}

	if len(audio) == 0 {
		return nil, &core.RemoteOperationError{Op: op, Status: resp.StatusCode, Message: msgEmptyAudio}
	}

	return audio, nil
}

// doJSON sends an optional JSON payload and decodes an optional JSON result.
func (c *Client) doJSON(ctx context.Context, op core.Operation, method, path string, payload, target any) error {
	body, contentType, err := encodeJSON(op, payload)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, op, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	return decode(op, resp, target)
}

// send performs the request and turns transport failures and non-2xx
// statuses into *core.RemoteOperationError. The caller owns the body.
func (c *Client) send(
	ctx context.Context,
	op core.Operation,
	method, path string,
	body io.Reader,
	contentType string,
) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &core.RemoteOperationError{Op: op, Message: "failed to build request", Err: err}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.RemoteOperationError{Op: op, Message: "relay unreachable", Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		return nil, &core.RemoteOperationError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp)}
	}

	return resp, nil
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body relay.ErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}

	message := strings.TrimSpace(string(raw))
	if message == "" {
		return http.StatusText(resp.StatusCode)
	}

	return message
}

func decode(op core.Operation, resp *http.Response, target any) error {
	err := json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return &core.RemoteOperationError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: "malformed response",
			Err:     err,
		}
	}

	return nil
}

func encodeJSON(op core.Operation, payload any) (io.Reader, string, error) {
	if payload == nil {
		return nil, "", nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", &core.RemoteOperationError{Op: op, Message: "failed to encode request", Err: err}
	}

	return bytes.NewReader(data), contentTypeJSON, nil
}

func buildCloneForm(name string, samples []core.Sample) (io.Reader, string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	err := writer.WriteField(relay.FormFieldName, name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write name field: %w", err)
	}

	for _, sample := range samples {
		part, partErr := writer.CreateFormFile(relay.FormFieldFiles, sample.Name)
		if partErr != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", partErr)
		}

		_, partErr = part.Write(sample.Data)
		if partErr != nil {
			return nil, "", fmt.Errorf("failed to write sample %s: %w", sample.Name, partErr)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
