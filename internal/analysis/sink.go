package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-mic/internal/storage"
)

// Sink overwrites a single record with the most recent analysis.
type Sink struct {
	store  storage.FileStore
	name   string
	logger *slog.Logger
}

func NewSink(store storage.FileStore, name string, logger *slog.Logger) *Sink {
	if name == "" {
		name = "output.json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, name: name, logger: logger.With(slog.String("component", "analysis"))}
}

// Persist writes doc pretty-printed with a two-space indent. A nil doc leaves
// the previous record in place.
func (s *Sink) Persist(ctx context.Context, doc json.RawMessage) error {
	if s == nil || s.store == nil || len(doc) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return fmt.Errorf("indent analysis: %w", err)
	}
	if err := s.store.Put(ctx, s.name, buf.Bytes(), "application/json"); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}
	s.logger.Info("analysis persisted", slog.String("record", s.name), slog.Int("bytes", buf.Len()))
	return nil
}

// Latest reads the current record back.
func (s *Sink) Latest(ctx context.Context) (json.RawMessage, error) {
	data, err := s.store.Get(ctx, s.name)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
