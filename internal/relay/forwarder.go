package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/protocol"
)

// HTTPForwarder submits channel uploads to the ingest API as multipart forms.
type HTTPForwarder struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPForwarder(cfg config.RelayConfig, logger *slog.Logger) *HTTPForwarder {
	path := protocol.PathTranscribe
	if cfg.Generate {
		path = protocol.PathTranscribeAndGenerate
	}
	return &HTTPForwarder{
		endpoint: strings.TrimRight(cfg.UpstreamURL, "/") + path,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		logger:   logger.With(slog.String("component", "relay-forwarder")),
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, req channel.UploadRequest) (channel.UploadSuccess, error) {
	body, contentType, err := multipartBody(req)
	if err != nil {
		return channel.UploadSuccess{}, fault.Wrap(fault.Transport, "could not encode upload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, body)
	if err != nil {
		return channel.UploadSuccess{}, fault.Wrap(fault.Transport, "could not build upload request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return channel.UploadSuccess{}, fault.Wrap(fault.Transport, "could not reach transcription service", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return channel.UploadSuccess{}, fault.Wrap(fault.Transport, "could not read transcription response", err)
	}
	f.logger.Info("upstream responded",
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	if resp.StatusCode >= 300 {
		return channel.UploadSuccess{}, errorFromResponse(resp.StatusCode, data)
	}

	var ok protocol.GenerationResponse
	if err := json.Unmarshal(data, &ok); err != nil {
		return channel.UploadSuccess{}, fault.Wrap(fault.Transport, "invalid transcription response", err)
	}
	if !ok.Success {
		return channel.UploadSuccess{}, errorFromResponse(resp.StatusCode, data)
	}
	var analysis []byte
	if len(ok.GeneratedContent) > 0 && string(ok.GeneratedContent) != "null" {
		analysis = ok.GeneratedContent
	}
	return channel.UploadSuccess{
		Transcription:     ok.Transcription,
		GeneratedAnalysis: analysis,
		OriginalFileName:  ok.OriginalFileName,
	}, nil
}

func multipartBody(req channel.UploadRequest) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	name := req.FileName
	if name == "" {
		name = "recording.webm"
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, protocol.UploadField, name))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Payload); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func errorFromResponse(status int, data []byte) error {
	var er protocol.ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		return &fault.Error{
			Kind:       fault.Transport,
			Message:    fmt.Sprintf("transcription service returned %d", status),
			StatusCode: status,
			Details:    strings.TrimSpace(string(data)),
		}
	}
	kind := fault.Kind(er.Kind)
	if kind == "" {
		kind = fault.Transcription
		if status == http.StatusBadRequest {
			kind = fault.Ingest
		}
	}
	code := er.StatusCode
	if code == 0 {
		code = status
	}
	return &fault.Error{Kind: kind, Message: er.Error, StatusCode: code, Details: er.Details}
}
