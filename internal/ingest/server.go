// Package ingest is the HTTP face of the transcription pipeline: it accepts
// multipart uploads, validates them, and answers with a single JSON body.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/pipeline"
	"github.com/loqalabs/loqa-mic/internal/protocol"
)

// Options bound what an upload may look like.
type Options struct {
	UploadDir      string
	FieldName      string
	MaxUploadBytes int64
	MinUploadBytes int64
	OutputFormat   string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		UploadDir:      cfg.Ingest.UploadDir,
		FieldName:      cfg.Ingest.FieldName,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		MinUploadBytes: cfg.Ingest.MinUploadBytes,
		OutputFormat:   cfg.Transcode.Format,
	}
}

type Server struct {
	opts    Options
	pipe    *pipeline.Pipeline
	logger  *slog.Logger
	metrics *httpMetrics
}

func NewServer(opts Options, pipe *pipeline.Pipeline, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FieldName == "" {
		opts.FieldName = protocol.UploadField
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	logger = logger.With(slog.String("component", "ingest"))
	return &Server{
		opts:    opts,
		pipe:    pipe,
		logger:  logger,
		metrics: newHTTPMetrics(logger),
	}, nil
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", s.withMetrics("/", s.handleRoot))
	mux.HandleFunc(protocol.PathTranscribe, s.withMetrics(protocol.PathTranscribe, s.handleTranscribe))
	mux.HandleFunc(protocol.PathTranscribeAndGenerate, s.withMetrics(protocol.PathTranscribeAndGenerate, s.handleTranscribeAndGenerate))
	mux.HandleFunc(protocol.PathGenAI, s.withMetrics(protocol.PathGenAI, s.handleGenAI))
}

// Handler returns the API wrapped in CORS and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return Wrap(mux, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "not found"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(protocol.MsgWelcome))
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	job, ok := s.accept(w, r, pipeline.EndpointTranscribe, protocol.MsgProcessingError)
	if !ok {
		return
	}
	res, err := s.pipe.Transcribe(r.Context(), job)
	if err != nil {
		s.writeFault(w, protocol.MsgProcessingError, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.TranscriptionResponse{
		Success:          true,
		Transcription:    res.Transcription,
		OriginalFileName: res.OriginalFileName,
	})
}

func (s *Server) handleTranscribeAndGenerate(w http.ResponseWriter, r *http.Request) {
	job, ok := s.accept(w, r, pipeline.EndpointGenerate, protocol.MsgGenerateError)
	if !ok {
		return
	}
	res, err := s.pipe.TranscribeAndGenerate(r.Context(), job)
	if err != nil {
		s.writeFault(w, protocol.MsgGenerateError, err)
		return
	}
	analysis := res.Analysis
	if analysis == nil {
		analysis = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, protocol.GenerationResponse{
		Success:          true,
		Transcription:    res.Transcription,
		GeneratedContent: analysis,
		OriginalFileName: res.OriginalFileName,
	})
}

func (s *Server) handleGenAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{Error: "method not allowed"})
		return
	}
	doc, err := s.pipe.GenerateSample(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
			Error:   protocol.MsgGenAIError,
			Details: faultDetails(err),
			Kind:    string(fault.KindOf(err)),
		})
		return
	}
	if doc == nil {
		doc = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, protocol.GenAIResponse{Response: doc})
}

// accept streams the upload to a fresh transient file. On any failure it
// has already answered the request and disposed of the file.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, endpoint, failureMessage string) (*pipeline.Job, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{Error: "method not allowed"})
		return nil, false
	}
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	}

	part, err := s.findFilePart(r)
	if err != nil {
		s.logger.Info("upload rejected", slog.String("endpoint", endpoint), slogError(err))
		s.pipe.Reject(r.Context(), nil, endpoint, fault.Wrap(fault.Ingest, protocol.MsgNoFile, err))
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: protocol.MsgNoFile, Kind: string(fault.Ingest)})
		return nil, false
	}
	defer part.Close()

	job := pipeline.NewJob(s.opts.UploadDir, part.FileName(), s.opts.OutputFormat)
	job.MimeType = part.Header.Get("Content-Type")
	size, err := s.store(job.InputPath, part)
	job.Size = size
	if err != nil {
		s.pipe.Reject(r.Context(), job, endpoint, err)
		s.writeFault(w, failureMessage, err)
		return nil, false
	}

	s.logger.Info("upload received",
		slog.String("request_id", job.ID),
		slog.String("endpoint", endpoint),
		slog.String("file_name", job.OriginalName),
		slog.Int64("bytes", size))
	s.pipe.Received(r.Context(), job, endpoint)

	if size < s.opts.MinUploadBytes {
		err := &fault.Error{
			Kind:    fault.Ingest,
			Message: protocol.MsgAudioTooSmall,
			Details: fmt.Sprintf("received %d bytes, need at least %d", size, s.opts.MinUploadBytes),
		}
		s.pipe.Reject(r.Context(), job, endpoint, err)
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Error:   protocol.MsgAudioTooSmall,
			Details: err.Details,
			Kind:    string(fault.Ingest),
		})
		return nil, false
	}
	return job, true
}

func (s *Server) findFilePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("no %q field in upload", s.opts.FieldName)
			}
			return nil, err
		}
		if part.FormName() == s.opts.FieldName && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// store writes src to path, refusing to overwrite and to exceed the size cap.
func (s *Server) store(path string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create transient file: %w", err)
	}
	limit := s.opts.MaxUploadBytes
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		return n, fault.Wrap(fault.Ingest, "upload interrupted", copyErr)
	case closeErr != nil:
		return n, fmt.Errorf("close transient file: %w", closeErr)
	case limit > 0 && n > limit:
		return n, &fault.Error{
			Kind:    fault.Ingest,
			Message: "upload too large",
			Details: fmt.Sprintf("uploads are limited to %d bytes", limit),
		}
	}
	return n, nil
}

// writeFault answers with the fault's HTTP status. Upstream status codes are
// passed through in the body, which otherwise repeats the HTTP status.
func (s *Server) writeFault(w http.ResponseWriter, message string, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	if kind != "" {
		status = fault.HTTPStatus(kind)
	}
	body := protocol.ErrorResponse{
		Error:      message,
		Details:    faultDetails(err),
		StatusCode: status,
		Kind:       string(kind),
	}
	if fe, ok := fault.As(err); ok {
		body.Message = fe.Message
		if fe.StatusCode != 0 {
			body.StatusCode = fe.StatusCode
		}
		if status == http.StatusBadRequest {
			body.Error = fe.Message
		}
	}
	writeJSON(w, status, body)
}

func faultDetails(err error) string {
	if fe, ok := fault.As(err); ok && fe.Details != "" {
		return fe.Details
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
