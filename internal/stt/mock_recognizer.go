package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loqalabs/loqa-mic/internal/fault"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "transcription cancelled", err)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return TranscriptResult{}, fault.Wrap(fault.Transcription, "could not read converted audio", err)
	}
	return TranscriptResult{
		Text:         fmt.Sprintf("[mock transcript %s bytes=%d]", filepath.Base(audioPath), info.Size()),
		LanguageCode: "eng",
	}, nil
}
