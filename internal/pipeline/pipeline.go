// Package pipeline runs one upload through transcode, transcription and the
// optional analysis stage, then disposes of its transient files.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-mic/internal/analysis"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/eventstore"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/llm"
	"github.com/loqalabs/loqa-mic/internal/stt"
	"github.com/loqalabs/loqa-mic/internal/transcode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Endpoint labels used for metrics and the request timeline.
const (
	EndpointTranscribe = "transcribe"
	EndpointGenerate   = "transcribe-and-generate"
	EndpointGenAI      = "genai"
)

// Deps are the collaborators a Pipeline calls. Generator, Sink and Events
// may be nil.
type Deps struct {
	Transcoder transcode.Transcoder
	Recognizer stt.Recognizer
	Generator  llm.Generator
	Sink       *analysis.Sink
	Events     eventstore.Recorder
}

// Options bounds each external call and tunes the analysis stage.
type Options struct {
	TranscodeTimeout  time.Duration
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	MaxTokens         int
	Temperature       float64
	RepairJSON        bool
	PersistLatest     bool
	AnalyzerVersion   string
}

// OptionsFromConfig maps the runtime config onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		TranscodeTimeout:  time.Duration(cfg.Transcode.TimeoutMS) * time.Millisecond,
		TranscribeTimeout: time.Duration(cfg.STT.TimeoutMS) * time.Millisecond,
		GenerateTimeout:   time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		RepairJSON:        cfg.Analysis.RepairJSON,
		PersistLatest:     cfg.Analysis.PersistLatest,
		AnalyzerVersion:   cfg.Analysis.AnalyzerVersion,
	}
}

// Result is what a request hands back to its caller.
type Result struct {
	RequestID        string
	Transcription    string
	Analysis         json.RawMessage
	OriginalFileName string
}

type Pipeline struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
	now     func() time.Time
}

func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "pipeline"))
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newMetrics(logger),
		now:     time.Now,
	}
}

// GenerationEnabled reports whether a text generator is wired.
func (p *Pipeline) GenerationEnabled() bool { return p.deps.Generator != nil }

// Transcribe converts and transcribes job. The job's files are removed
// before Transcribe returns, whatever the outcome. Cancelling ctx does not
// abort a running request; only the per-stage timeouts bound it.
func (p *Pipeline) Transcribe(ctx context.Context, job *Job) (Result, error) {
	return p.run(ctx, job, EndpointTranscribe, false)
}

// TranscribeAndGenerate additionally runs the analysis prompt over the
// transcript. An unparseable model reply yields a nil Analysis, not an error.
func (p *Pipeline) TranscribeAndGenerate(ctx context.Context, job *Job) (Result, error) {
	return p.run(ctx, job, EndpointGenerate, true)
}

// Received records an accepted upload. Ingest calls it once the payload is on
// disk, before running a stage.
func (p *Pipeline) Received(ctx context.Context, job *Job, endpoint string) {
	p.metrics.upload(ctx, job.Size)
	p.begin(ctx, job.ID, endpoint, job.OriginalName)
	p.record(ctx, job.ID, eventstore.UploadReceived, map[string]any{
		"bytes":     job.Size,
		"mime_type": job.MimeType,
		"file_name": job.OriginalName,
	})
}

// Reject counts a request refused before the pipeline ran. job is nil when
// nothing was accepted; otherwise its files are disposed of.
func (p *Pipeline) Reject(ctx context.Context, job *Job, endpoint string, err error) {
	p.metrics.request(ctx, endpoint, outcome(err))
	if job == nil {
		return
	}
	p.begin(ctx, job.ID, endpoint, job.OriginalName)
	p.fail(ctx, job.ID, "ingest", err)
	p.Dispose(ctx, job)
	p.finish(ctx, job.ID, outcome(err))
}

func (p *Pipeline) run(ctx context.Context, job *Job, endpoint string, generate bool) (res Result, err error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "pipeline."+endpoint, trace.WithAttributes(
		attribute.String("request.id", job.ID),
		attribute.Int64("upload.bytes", job.Size),
	))
	log := p.logger.With(slog.String("request_id", job.ID), slog.String("endpoint", endpoint))
	defer func() {
		p.cleanup(ctx, job, log)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.fail(ctx, job.ID, string(fault.KindOf(err)), err)
			log.Warn("request failed", slogError(err))
		}
		p.metrics.request(ctx, endpoint, outcome(err))
		p.finish(ctx, job.ID, outcome(err))
		span.End()
	}()

	res = Result{RequestID: job.ID, OriginalFileName: job.OriginalName}

	if err = p.stage(ctx, "transcode", p.opts.TranscodeTimeout, func(ctx context.Context) error {
		if err := p.deps.Transcoder.Transcode(ctx, job.InputPath, job.OutputPath); err != nil {
			return asFault(fault.Transcode, "audio conversion failed", err)
		}
		return nil
	}); err != nil {
		return res, err
	}
	p.record(ctx, job.ID, eventstore.TranscodeCompleted, map[string]any{"output": job.OutputPath})

	var transcript stt.TranscriptResult
	if err = p.stage(ctx, "transcribe", p.opts.TranscribeTimeout, func(ctx context.Context) error {
		var err error
		transcript, err = p.deps.Recognizer.Transcribe(ctx, job.OutputPath)
		if err != nil {
			return asFault(fault.Transcription, "transcription failed", err)
		}
		return nil
	}); err != nil {
		return res, err
	}
	res.Transcription = transcript.Text
	p.record(ctx, job.ID, eventstore.TranscriptionCompleted, map[string]any{
		"chars":         len(transcript.Text),
		"language_code": transcript.LanguageCode,
		"speakers":      transcript.Speakers,
	})
	log.Info("transcription complete", slog.Int("chars", len(transcript.Text)))

	if !generate {
		return res, nil
	}
	res.Analysis, err = p.analyze(ctx, job.ID, analysis.BuildPrompt(transcript.Text), log)
	return res, err
}

// GenerateSample runs the analysis prompt over the built-in sample transcript.
func (p *Pipeline) GenerateSample(ctx context.Context) (doc json.RawMessage, err error) {
	requestID := uuidString()
	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "pipeline."+EndpointGenAI, trace.WithAttributes(attribute.String("request.id", requestID)))
	log := p.logger.With(slog.String("request_id", requestID), slog.String("endpoint", EndpointGenAI))
	p.begin(ctx, requestID, EndpointGenAI, "")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.fail(ctx, requestID, string(fault.KindOf(err)), err)
			log.Warn("sample generation failed", slogError(err))
		}
		p.metrics.request(ctx, EndpointGenAI, outcome(err))
		p.finish(ctx, requestID, outcome(err))
		span.End()
	}()
	return p.analyze(ctx, requestID, analysis.SamplePrompt(), log)
}

func (p *Pipeline) analyze(ctx context.Context, requestID, prompt string, log *slog.Logger) (json.RawMessage, error) {
	if p.deps.Generator == nil {
		return nil, fault.New(fault.Generation, "text generation is disabled")
	}
	var reply llm.Reply
	err := p.stage(ctx, "generate", p.opts.GenerateTimeout, func(ctx context.Context) error {
		var err error
		reply, err = llm.Collect(ctx, p.deps.Generator, llm.Request{
			RequestID:   requestID,
			Prompt:      prompt,
			MaxTokens:   p.opts.MaxTokens,
			Temperature: p.opts.Temperature,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	doc, extractErr := analysis.Extract(reply.Text, p.opts.RepairJSON)
	if extractErr != nil {
		log.Warn("analysis extraction failed", slogError(extractErr), slog.Int("reply_chars", len(reply.Text)))
	} else if stamped, err := analysis.Stamp(doc, requestID, p.opts.AnalyzerVersion, p.now()); err == nil {
		doc = stamped
	}
	p.record(ctx, requestID, eventstore.GenerationCompleted, map[string]any{
		"reply_chars":       len(reply.Text),
		"prompt_tokens":     reply.PromptTokens,
		"completion_tokens": reply.CompletionTokens,
		"extracted":         doc != nil,
	})

	if doc != nil && p.opts.PersistLatest && p.deps.Sink != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := p.deps.Sink.Persist(persistCtx, doc); err != nil {
			log.Warn("failed to persist latest analysis", slogError(err))
		}
		cancel()
	}
	return doc, nil
}

// stage runs fn under its own timeout and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "stage."+name)
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	p.metrics.stage(ctx, name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Pipeline) cleanup(ctx context.Context, job *Job, log *slog.Logger) {
	removed, err := job.Dispose(log)
	payload := map[string]any{"removed": removed}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.record(ctx, job.ID, eventstore.CleanupCompleted, payload)
}

// Dispose removes job's files for requests that never reached the pipeline.
func (p *Pipeline) Dispose(ctx context.Context, job *Job) {
	p.cleanup(ctx, job, p.logger.With(slog.String("request_id", job.ID)))
}

func (p *Pipeline) begin(ctx context.Context, requestID, endpoint, fileName string) {
	if p.deps.Events == nil {
		return
	}
	if err := p.deps.Events.BeginRequest(context.WithoutCancel(ctx), eventstore.Request{
		ID:       requestID,
		Endpoint: endpoint,
		FileName: fileName,
	}); err != nil {
		p.logger.Warn("failed to record request", slog.String("request_id", requestID), slogError(err))
	}
}

func (p *Pipeline) record(ctx context.Context, requestID, eventType string, payload any) {
	if p.deps.Events == nil {
		return
	}
	if err := p.deps.Events.Record(context.WithoutCancel(ctx), requestID, eventType, payload); err != nil {
		p.logger.Warn("failed to record event",
			slog.String("request_id", requestID),
			slog.String("event", eventType),
			slogError(err))
	}
}

func (p *Pipeline) fail(ctx context.Context, requestID, stage string, err error) {
	payload := map[string]any{"error": err.Error(), "kind": string(fault.KindOf(err)), "stage": stage}
	if fe, ok := fault.As(err); ok {
		if fe.StatusCode != 0 {
			payload["status_code"] = fe.StatusCode
		}
		if fe.Details != "" {
			payload["details"] = fe.Details
		}
	}
	p.record(ctx, requestID, eventstore.RequestFailed, payload)
}

func (p *Pipeline) finish(ctx context.Context, requestID, result string) {
	if p.deps.Events == nil {
		return
	}
	if err := p.deps.Events.FinishRequest(context.WithoutCancel(ctx), requestID, result); err != nil {
		p.logger.Warn("failed to finish request", slog.String("request_id", requestID), slogError(err))
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := fault.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// asFault keeps faults raised by a backend and wraps everything else.
func asFault(kind fault.Kind, message string, err error) error {
	if fe, ok := fault.As(err); ok {
		return fe
	}
	return fault.Wrap(kind, message, err)
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
