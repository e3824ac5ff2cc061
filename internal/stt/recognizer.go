package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-mic/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text                string
	LanguageCode        string
	LanguageProbability float64
	Speakers            int
}

// Recognizer abstracts STT backends. Implementations make a single attempt;
// callers decide about retries.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error)
}

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "elevenlabs":
		return NewElevenLabsRecognizer(cfg)
	case "exec":
		return NewExecRecognizer(cfg)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}
