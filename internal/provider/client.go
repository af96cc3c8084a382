// Package provider implements the HTTP client for the remote speech provider
// (an ElevenLabs-compatible API). Only the proxy relay talks to it directly; the
// credential never leaves the server process.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

// API endpoints and paths.
const (
	apiVoices       = "/v1/voices"
	apiVoicesAdd    = "/v1/voices/add"
	apiVoiceFmt     = "/v1/voices/%s"
	apiVoiceEditFmt = "/v1/voices/%s/edit"
	apiTextToSpeech = "/v1/text-to-speech/%s"
	apiHistory      = "/v1/history"
	apiHistoryFmt   = "/v1/history/%s"
	apiHistoryAudio = "/v1/history/%s/audio"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Multipart field names.
const (
	formFieldName  = "name"
	formFieldFiles = "files"
)

// Error messages.
const (
	errFmtCreateRequest  = "failed to create %s request: %w"
	errFmtSendRequest    = "failed to send request to provider at %s: %w"
	errFmtDecodeResponse = "failed to decode %s response: %w"
	errFmtReadAudio      = "failed to read audio data: %w"
)

var (
	// ErrEmptyAudio is returned when the provider answers 200 with no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrMissingVoiceID is returned when voice creation succeeds without an id.
	ErrMissingVoiceID = errors.New("provider response is missing voice_id")
)

// APIError carries a provider failure with its original status code so the
// relay can pass it through.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the provider API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
}

// TTSRequest is the text-to-speech payload.
type TTSRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings core.VoiceSettings `json:"voice_settings"`
}

// VoicesResponse is the voice listing payload.
type VoicesResponse struct {
	Voices []VoiceInfo `json:"voices"`
}

// VoiceInfo is one provider voice. Category is the provider's own label
// ("premade", "cloned", "generated", "professional").
type VoiceInfo struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// AddVoiceResponse is returned by voice cloning.
type AddVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// HistoryResponse is the provider history listing.
type HistoryResponse struct {
	History           []core.RemoteHistoryItem `json:"history"`
	LastHistoryItemID string                   `json:"last_history_item_id,omitempty"`
	HasMore           bool                     `json:"has_more"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewClient creates a provider client. The timeout applies to every request.
func NewClient(baseURL, apiKey, modelID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		modelID: modelID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c.apiKey != ""
}

// TextToSpeech synthesizes text with the given voice and returns the audio
// bytes together with their content type.
func (c *Client) TextToSpeech(ctx context.Context, voiceID string, req TTSRequest) ([]byte, string, error) {
	if req.ModelID == "" {
		req.ModelID = c.modelID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf(apiTextToSpeech, url.PathEscape(voiceID))

	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), contentTypeJSON, contentTypeMPEG)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	return readAudio(resp)
}

// ListVoices returns every voice available to the account.
func (c *Client) ListVoices(ctx context.Context) (*VoicesResponse, error) {
	var voices VoicesResponse

	err := c.getJSON(ctx, apiVoices, "voices", &voices)
	if err != nil {
		return nil, err
	}

	return &voices, nil
}

// AddVoice clones a voice from one or more samples and returns its id.
func (c *Client) AddVoice(ctx context.Context, name string, samples []core.Sample) (string, error) {
	body, contentType, err := buildVoiceForm(name, samples)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, apiVoicesAdd, body, contentType, contentTypeJSON)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var added AddVoiceResponse

	err = json.NewDecoder(resp.Body).Decode(&added)
	if err != nil {
		return "", fmt.Errorf(errFmtDecodeResponse, "add voice", err)
	}

	if added.VoiceID == "" {
		return "", ErrMissingVoiceID
	}

	return added.VoiceID, nil
}

// EditVoiceName renames a voice.
func (c *Client) EditVoiceName(ctx context.Context, voiceID, name string) error {
	body, contentType, err := buildVoiceForm(name, nil)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf(apiVoiceEditFmt, url.PathEscape(voiceID))

	resp, err := c.do(ctx, http.MethodPost, endpoint, body, contentType, contentTypeJSON)
	if err != nil {
		return err
	}

	return drainAndClose(resp)
}

// DeleteVoice removes a voice.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	endpoint := fmt.Sprintf(apiVoiceFmt, url.PathEscape(voiceID))

	resp, err := c.do(ctx, http.MethodDelete, endpoint, http.NoBody, "", contentTypeJSON)
	if err != nil {
		return err
	}

	return drainAndClose(resp)
}

// History returns the provider-side generation history.
func (c *Client) History(ctx context.Context) (*HistoryResponse, error) {
	var history HistoryResponse

	err := c.getJSON(ctx, apiHistory, "history", &history)
	if err != nil {
		return nil, err
	}

	return &history, nil
}

// HistoryAudio downloads the audio of one history item.
func (c *Client) HistoryAudio(ctx context.Context, historyItemID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf(apiHistoryAudio, url.PathEscape(historyItemID))

	resp, err := c.do(ctx, http.MethodGet, endpoint, http.NoBody, "", contentTypeMPEG)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	return readAudio(resp)
}

// DeleteHistoryItem removes one history item.
func (c *Client) DeleteHistoryItem(ctx context.Context, historyItemID string) error {
	endpoint := fmt.Sprintf(apiHistoryFmt, url.PathEscape(historyItemID))

	resp, err := c.do(ctx, http.MethodDelete, endpoint, http.NoBody, "", contentTypeJSON)
	if err != nil {
		return err
	}

	return drainAndClose(resp)
}

func (c *Client) getJSON(ctx context.Context, endpoint, what string, target any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, http.NoBody, "", contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf(errFmtDecodeResponse, what, err)
	}

	return nil
}

// do sends a request and converts any non-2xx status into an *APIError. The
// caller owns the returned body.
func (c *Client) do(
	ctx context.Context,
	method, endpoint string,
	body io.Reader,
	contentType, accept string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, endpoint, err)
	}

	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	req.Header.Set(headerAccept, accept)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp, nil
}

// parseErrorResponse extracts the provider's detail message, falling back to
// the raw body so diagnostics are preserved.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	message := strings.TrimSpace(string(raw))

	var parsed errorResponse

	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Detail) > 0 {
		var detail errorDetail

		var text string

		switch {
		case json.Unmarshal(parsed.Detail, &detail) == nil && detail.Message != "":
			message = detail.Message
		case json.Unmarshal(parsed.Detail, &text) == nil && text != "":
			message = text
		}
	}

	if message == "" {
		message = resp.Status
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func readAudio(resp *http.Response) ([]byte, string, error) {
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf(errFmtReadAudio, err)
	}

	if len(audio) == 0 {
		return nil, "", ErrEmptyAudio
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType == "" {
		contentType = contentTypeMPEG
	}

	return audio, contentType, nil
}

func drainAndClose(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Body.Close()
}

func buildVoiceForm(name string, samples []core.Sample) (io.Reader, string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	err := writer.WriteField(formFieldName, name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write name field: %w", err)
	}

	for _, sample := range samples {
		part, partErr := writer.CreateFormFile(formFieldFiles, sample.Name)
		if partErr != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", partErr)
		}

		_, partErr = part.Write(sample.Data)
		if partErr != nil {
			return nil, "", fmt.Errorf("failed to copy file data: %w", partErr)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
