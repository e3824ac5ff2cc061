package llm

import (
	"context"
	"time"
)

type mockGenerator struct {
	reply string
}

// NewMockGenerator answers every prompt with a canned analysis wrapped in
// prose, the way hosted models tend to reply.
func NewMockGenerator() Generator {
	return &mockGenerator{reply: mockReply}
}

// NewStaticGenerator answers every prompt with reply.
func NewStaticGenerator(reply string) Generator {
	return &mockGenerator{reply: reply}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}
	return consumer(Chunk{
		RequestID: req.RequestID,
		Content:   m.reply,
		Partial:   false,
		Latency:   5 * time.Millisecond,
	})
}

const mockReply = "Here is the analysis:\n```json\n" + `{
  "response_analysis": {
    "lines": [],
    "totals": {
      "filler_words": 0,
      "repetition": 0,
      "vague_or_awkward": 0,
      "overall_mistakes": 0,
      "overall_confidence_level": 100
    },
    "metadata": {
      "response_id": "mock",
      "analyzed_at": "1970-01-01T00:00:00Z",
      "analyzer_version": "1.0.0"
    }
  }
}` + "\n```\n"
