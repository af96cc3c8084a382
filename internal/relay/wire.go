package relay

import "github.com/book-expert/voice-studio/internal/core"

// Multipart field names accepted by POST /clone-voice.
const (
	FormFieldName  = "name"
	FormFieldFiles = "files"
)

// TTSRequestBody is the JSON body of POST /tts.
type TTSRequestBody struct {
	Text            string  `json:"text"`
	VoiceID         string  `json:"voiceId"`
	ModelID         string  `json:"modelId,omitempty"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Settings returns the voice settings carried by the body.
func (b TTSRequestBody) Settings() core.VoiceSettings {
	return core.VoiceSettings{
		Stability:       b.Stability,
		SimilarityBoost: b.SimilarityBoost,
		Style:           b.Style,
		UseSpeakerBoost: b.UseSpeakerBoost,
	}
}

// RenameRequestBody is the JSON body of POST /clone-voice/{voiceId}/name.
type RenameRequestBody struct {
	Name string `json:"name"`
}

// CloneResponse is returned by POST /clone-voice.
type CloneResponse struct {
	VoiceID string `json:"voice_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SuccessResponse acknowledges rename and delete operations.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// HistoryListResponse is returned by GET /history.
type HistoryListResponse struct {
	History []core.RemoteHistoryItem `json:"history"`
}

// VoiceListResponse is returned by GET /voices.
type VoiceListResponse struct {
	Voices []VoiceEntry `json:"voices"`
}

// VoiceEntry is a provider voice as relayed to the studio.
type VoiceEntry struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// ErrorBody is the failure shape of every relay endpoint.
type ErrorBody struct {
	Error string `json:"error"`
}
