package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krshsl/mensetsu/backend/models"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	ttsModelID        = "eleven_multilingual_v2"
	sttModelID        = "scribe_v1"
	sttLanguageCode   = "jpn"
	audioURLPrefix    = "/static/audio"
)

// SpeechService turns question text into playable audio and recorded answers
// into text.
type SpeechService interface {
	// Synthesize returns a URL path for the generated audio.
	Synthesize(ctx context.Context, text string) (string, error)
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

type ElevenLabsService struct {
	apiKey   string
	baseURL  string
	voiceID  string
	audioDir string
	client   *http.Client
	cache    *AudioCache
	metrics  *Metrics
}

type ElevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func NewElevenLabsService(cfg SpeechConfig, metrics *Metrics) *ElevenLabsService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	audioDir := cfg.AudioDir
	if audioDir == "" {
		audioDir = "static/audio"
	}
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		slog.Error("Failed to create audio directory", "dir", audioDir, "error", err)
	}
	return &ElevenLabsService{
		apiKey:   cfg.ElevenLabsKey,
		baseURL:  elevenLabsBaseURL,
		voiceID:  PickDeterministicVoice("mensetsu-interviewer", cfg.VoiceGender),
		audioDir: audioDir,
		client:   &http.Client{Timeout: timeout},
		cache:    NewAudioCache(cfg.CacheDir),
		metrics:  metrics,
	}
}

// VoiceID returns the voice used for synthesis.
func (e *ElevenLabsService) VoiceID() string {
	return e.voiceID
}

// Synthesize renders text to an mp3 under the audio directory and returns
// its public path. Empty text yields an empty path.
func (e *ElevenLabsService) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	audio, err := e.cache.GetOrGenerate(ctx, text, e.voiceID, func() (io.ReadCloser, error) {
		return e.TextToSpeech(ctx, text)
	})
	if err != nil {
		return "", err
	}

	filename := "tts-" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".mp3"
	if err := os.WriteFile(filepath.Join(e.audioDir, filename), audio, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return audioURLPrefix + "/" + filename, nil
}

func (e *ElevenLabsService) TextToSpeech(ctx context.Context, text string) (io.ReadCloser, error) {
	request := ElevenLabsRequest{
		Text:    text,
		ModelID: ttsModelID,
		VoiceSettings: VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.baseURL + "/v1/text-to-speech/" + e.voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.metrics.ObserveUpstream("tts", time.Since(start), err)
		return nil, fmt.Errorf("failed to make request: %w: %w", models.ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		err := fmt.Errorf("elevenlabs API error: %d - %s: %w", resp.StatusCode, string(body), models.ErrUpstream)
		e.metrics.ObserveUpstream("tts", time.Since(start), err)
		return nil, err
	}
	e.metrics.ObserveUpstream("tts", time.Since(start), nil)

	slog.Info("Generated audio from ElevenLabs", "text_length", len(text))
	return resp.Body, nil
}

// Transcribe sends recorded audio to the speech-to-text endpoint and returns
// the recognized Japanese text.
func (e *ElevenLabsService) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model_id", sttModelID); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := mw.WriteField("language_code", sttLanguageCode); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", "answer"+audioExtension(contentType))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", e.apiKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.metrics.ObserveUpstream("stt", time.Since(start), err)
		return "", fmt.Errorf("failed to make request: %w: %w", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("elevenlabs stt error: %d - %s: %w", resp.StatusCode, string(b), models.ErrUpstream)
		e.metrics.ObserveUpstream("stt", time.Since(start), err)
		return "", err
	}
	e.metrics.ObserveUpstream("stt", time.Since(start), nil)

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode transcription: %w: %w", models.ErrUpstream, err)
	}
	slog.Info("Transcribed audio", "bytes", len(audio), "text_length", len(result.Text))
	return strings.TrimSpace(result.Text), nil
}

// audioExtension maps a MIME type to a file extension the STT endpoint can
// sniff. Unknown types default to .webm, the browser recorder format.
func audioExtension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	}
	return ".webm"
}
