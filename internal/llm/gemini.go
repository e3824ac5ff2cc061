package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"google.golang.org/genai"
)

type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator streams completions from the Gemini API.
func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: req.Prompt}}, Role: genai.RoleUser},
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.System)}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}

	start := time.Now()
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return geminiFault(err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		chunk := Chunk{
			RequestID: req.RequestID,
			Content:   resp.Text(),
			Partial:   resp.Candidates[0].FinishReason == "",
			Latency:   time.Since(start),
		}
		if resp.UsageMetadata != nil {
			chunk.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			chunk.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if err := consumer(chunk); err != nil {
			return err
		}
	}
	return nil
}

func geminiFault(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiFault(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiFault(*apiErrPtr, err)
	}
	return fault.Wrap(fault.Generation, "gemini request failed", err)
}

func apiFault(apiErr genai.APIError, err error) error {
	return &fault.Error{
		Kind:       fault.Generation,
		Message:    "gemini request failed",
		StatusCode: apiErr.Code,
		Details:    apiErr.Message,
		Err:        err,
	}
}
