package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

// Request describes a language model prompt.
type Request struct {
	RequestID   string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	RequestID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// Reply is a fully accumulated generation.
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// New builds the generator selected by cfg.Mode.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// Collect runs g to completion and concatenates the streamed chunks. Errors
// that are not already faults become Generation faults.
func Collect(ctx context.Context, g Generator, req Request) (Reply, error) {
	var sb strings.Builder
	var reply Reply
	err := g.Generate(ctx, req, func(c Chunk) error {
		sb.WriteString(c.Content)
		if c.PromptTokens > 0 {
			reply.PromptTokens = c.PromptTokens
		}
		if c.CompletionTokens > 0 {
			reply.CompletionTokens = c.CompletionTokens
		}
		reply.Latency = c.Latency
		return nil
	})
	if err != nil {
		if _, ok := fault.As(err); ok {
			return Reply{}, err
		}
		return Reply{}, fault.Wrap(fault.Generation, "text generation failed", err)
	}
	reply.Text = sb.String()
	return reply, nil
}
