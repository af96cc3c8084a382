package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/go-chi/chi/v5"
)

// Client-facing messages.
const (
	msgInvalidBody      = "Invalid request body"
	msgTextRequired     = "Text is required"
	msgVoiceRequired    = "Voice ID is required"
	msgNameRequired     = "Name is required"
	msgFilesRequired    = "At least one audio sample is required"
	msgUnsupportedFile  = "Unsupported sample file: %s"
	msgCloneSucceeded   = "Voice cloned successfully"
	msgListVoicesFailed = "Failed to fetch voices"
	msgCloneFailed      = "Failed to clone voice"
	msgRenameFailed     = "Failed to rename voice"
	msgDeleteFailed     = "Failed to delete voice"
	msgTTSFailed        = "Failed to generate speech"
	msgHistoryFailed    = "Failed to fetch history"
	msgAudioFailed      = "Failed to fetch history audio"
	msgDeleteItemFailed = "Failed to delete history item"
)

const (
	contentDispositionFmt = `attachment; filename="tts-%s.mp3"`
	defaultMaxUpload      = 50 << 20
	logFmtUpstreamFailed  = "%s: %v"
)

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.upstream.ListVoices(r.Context())
	if err != nil {
		s.relayError(w, err, msgListVoicesFailed)

		return
	}

	response := VoiceListResponse{Voices: make([]VoiceEntry, 0, len(voices.Voices))}
	for _, voice := range voices.Voices {
		response.Voices = append(response.Voices, VoiceEntry(voice))
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	maxUpload := s.maxUpload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	err := r.ParseMultipartForm(maxUpload)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)

		return
	}

	name := strings.TrimSpace(r.FormValue(FormFieldName))
	if name == "" {
		writeError(w, http.StatusBadRequest, msgNameRequired)

		return
	}

	samples, status, message := readSamples(r.MultipartForm.File[FormFieldFiles])
	if status != http.StatusOK {
		writeError(w, status, message)

		return
	}

	voiceID, err := s.upstream.AddVoice(r.Context(), name, samples)
	if err != nil && !errors.Is(err, provider.ErrMissingVoiceID) {
		s.relayError(w, err, msgCloneFailed)

		return
	}

	if voiceID == "" {
		s.log.Warn("Provider accepted clone of %q without a voice id", name)
	}

	writeJSON(w, http.StatusOK, CloneResponse{
		VoiceID: voiceID,
		Success: true,
		Message: msgCloneSucceeded,
	})
}

func (s *Server) handleRenameVoice(w http.ResponseWriter, r *http.Request) {
	var body RenameRequestBody

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)

		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, msgNameRequired)

		return
	}

	err = s.upstream.EditVoiceName(r.Context(), chi.URLParam(r, paramVoiceID), name)
	if err != nil {
		s.relayError(w, err, msgRenameFailed)

		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	err := s.upstream.DeleteVoice(r.Context(), chi.URLParam(r, paramVoiceID))
	if err != nil {
		s.relayError(w, err, msgDeleteFailed)

		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var body TTSRequestBody

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)

		return
	}

	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, msgTextRequired)

		return
	}

	if body.VoiceID == "" {
		writeError(w, http.StatusBadRequest, msgVoiceRequired)

		return
	}

	audio, contentType, err := s.upstream.TextToSpeech(r.Context(), body.VoiceID, provider.TTSRequest{
		Text:          body.Text,
		ModelID:       body.ModelID,
		VoiceSettings: body.Settings(),
	})
	if err != nil {
		s.relayError(w, err, msgTTSFailed)

		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.upstream.History(r.Context())
	if err != nil {
		s.relayError(w, err, msgHistoryFailed)

		return
	}

	items := history.History
	if items == nil {
		items = []core.RemoteHistoryItem{}
	}

	writeJSON(w, http.StatusOK, HistoryListResponse{History: items})
}

func (s *Server) handleHistoryAudio(w http.ResponseWriter, r *http.Request) {
	historyItemID := chi.URLParam(r, paramHistoryItemID)

	audio, contentType, err := s.upstream.HistoryAudio(r.Context(), historyItemID)
	if err != nil {
		s.relayError(w, err, msgAudioFailed)

		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(contentDispositionFmt, fileutil.SanitizeFilename(historyItemID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) handleDeleteHistoryItem(w http.ResponseWriter, r *http.Request) {
	err := s.upstream.DeleteHistoryItem(r.Context(), chi.URLParam(r, paramHistoryItemID))
	if err != nil {
		s.relayError(w, err, msgDeleteItemFailed)

		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// relayError keeps the provider's status and message when it has one and
// falls back to a generic 500 otherwise.
func (s *Server) relayError(w http.ResponseWriter, err error, fallback string) {
	s.log.Error(logFmtUpstreamFailed, fallback, err)

	var apiErr *provider.APIError

	switch {
	case errors.As(err, &apiErr):
		writeError(w, apiErr.StatusCode, apiErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func readSamples(headers []*multipart.FileHeader) ([]core.Sample, int, string) {
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, msgFilesRequired
	}

	samples := make([]core.Sample, 0, len(headers))

	for _, header := range headers {
		if !fileutil.IsValidSampleFile(header.Filename, header.Header.Get("Content-Type")) {
			return nil, http.StatusBadRequest, fmt.Sprintf(msgUnsupportedFile, header.Filename)
		}

		data, err := readPart(header)
		if err != nil {
			return nil, http.StatusBadRequest, msgInvalidBody
		}

		samples = append(samples, core.Sample{Name: header.Filename, Data: data})
	}

	return samples, http.StatusOK, ""
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open sample %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %s: %w", header.Filename, err)
	}

	return data, nil
}
