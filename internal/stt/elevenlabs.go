package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

type elevenLabsRecognizer struct {
	cfg    config.STTConfig
	client *http.Client
}

type elevenLabsWord struct {
	Text      string `json:"text"`
	Type      string `json:"type"`
	SpeakerID string `json:"speaker_id"`
}

type elevenLabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenLabsWord `json:"words"`
}

// NewElevenLabsRecognizer calls the ElevenLabs speech-to-text endpoint.
// Per-call deadlines come from the caller's context.
func NewElevenLabsRecognizer(cfg config.STTConfig) (Recognizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is not set")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("elevenlabs endpoint is not set")
	}
	return &elevenLabsRecognizer{cfg: cfg, client: &http.Client{}}, nil
}

func (r *elevenLabsRecognizer) body(audioPath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model_id", r.cfg.Model},
		{"tag_audio_events", strconv.FormatBool(r.cfg.TagAudioEvents)},
		{"diarize", strconv.FormatBool(r.cfg.Diarize)},
	}
	if r.cfg.Language != "" {
		fields = append(fields, [2]string{"language_code", r.cfg.Language})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func (r *elevenLabsRecognizer) Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error) {
	body, contentType, err := r.body(audioPath)
	if err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "could not read converted audio", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, body)
	if err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "could not build transcription request", err)
	}
	req.Header.Set("xi-api-key", r.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "transcription request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "could not read transcription response", err)
	}
	if resp.StatusCode >= 300 {
		return TranscriptResult{}, &fault.Error{
			Kind:       fault.Transcription,
			Message:    fmt.Sprintf("transcription service returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Details:    strings.TrimSpace(string(data)),
		}
	}

	var out elevenLabsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "invalid transcription response", err)
	}
	speakers := make(map[string]struct{})
	for _, w := range out.Words {
		if w.SpeakerID != "" {
			speakers[w.SpeakerID] = struct{}{}
		}
	}
	return TranscriptResult{
		Text:                out.Text,
		LanguageCode:        out.LanguageCode,
		LanguageProbability: out.LanguageProbability,
		Speakers:            len(speakers),
	}, nil
}
