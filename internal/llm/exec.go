package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/mattn/go-shellwords"
)

// execGenerator pipes the request as JSON into a local command. The command
// answers on stdout with either {"content": ..., "prompt_tokens": ...} or
// the bare reply text.
type execGenerator struct {
	argv []string
}

type execInput struct {
	RequestID   string  `json:"request_id"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type execReply struct {
	Content          string `json:"content"`
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

func NewExecGenerator(command string) (Generator, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("llm command is empty")
	}
	return &execGenerator{argv: argv}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(execInput{
		RequestID:   req.RequestID,
		Prompt:      req.Prompt,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return fmt.Errorf("encode llm command input: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		fe := fault.Wrap(fault.Generation, "generation command failed", err)
		fe.Details = strings.TrimSpace(stderr.String())
		return fe
	}

	chunk := Chunk{RequestID: req.RequestID, Latency: time.Since(start)}
	var reply execReply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err == nil && (reply.Content != "" || reply.Text != "") {
		chunk.Content = reply.Content
		if chunk.Content == "" {
			chunk.Content = reply.Text
		}
		chunk.PromptTokens = reply.PromptTokens
		chunk.CompletionTokens = reply.CompletionTokens
	} else {
		chunk.Content = strings.TrimSpace(stdout.String())
	}
	return consumer(chunk)
}
