package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func relayConfig(upstream string, generate bool) config.RelayConfig {
	cfg := config.Default().Relay
	cfg.UpstreamURL = upstream
	cfg.Generate = generate
	return cfg
}

func TestForwardPostsMultipartFile(t *testing.T) {
	var gotPath, gotName, gotType string
	var gotLen int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if part.FormName() != protocol.UploadField {
			http.Error(w, "wrong field", http.StatusBadRequest)
			return
		}
		gotName = part.FileName()
		gotType = part.Header.Get("Content-Type")
		data, _ := io.ReadAll(part)
		gotLen = len(data)
		_ = json.NewEncoder(w).Encode(protocol.GenerationResponse{
			Success:          true,
			Transcription:    "hi there",
			GeneratedContent: json.RawMessage(`{"response_analysis":{}}`),
			OriginalFileName: gotName,
		})
	}))
	defer upstream.Close()

	fwd := NewHTTPForwarder(relayConfig(upstream.URL, true), testLogger())
	res, err := fwd.Forward(context.Background(), channel.UploadRequest{
		Payload:      make([]byte, 3000),
		DeclaredSize: 3000,
		MimeType:     "audio/ogg;codecs=opus",
		FileName:     "recording_1.ogg",
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if gotPath != protocol.PathTranscribeAndGenerate {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotName != "recording_1.ogg" || gotType != "audio/ogg;codecs=opus" || gotLen != 3000 {
		t.Fatalf("unexpected part name=%q type=%q len=%d", gotName, gotType, gotLen)
	}
	if res.Transcription != "hi there" || res.OriginalFileName != "recording_1.ogg" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(string(res.GeneratedAnalysis), "response_analysis") {
		t.Fatalf("expected analysis passthrough, got %s", res.GeneratedAnalysis)
	}
}

func TestForwardMapsUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{
			Error:      protocol.MsgProcessingError,
			Details:    "quota exceeded",
			StatusCode: 429,
			Kind:       string(fault.Transcription),
		})
	}))
	defer upstream.Close()

	fwd := NewHTTPForwarder(relayConfig(upstream.URL, false), testLogger())
	_, err := fwd.Forward(context.Background(), channel.UploadRequest{Payload: make([]byte, 2048), DeclaredSize: 2048})
	fe, ok := fault.As(err)
	if !ok {
		t.Fatalf("expected fault, got %v", err)
	}
	if fe.Kind != fault.Transcription || fe.StatusCode != 429 || fe.Details != "quota exceeded" {
		t.Fatalf("unexpected fault %+v", fe)
	}
}

func TestRelayServesWebSocketChannel(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(protocol.TranscriptionResponse{
			Success:          true,
			Transcription:    "relayed",
			OriginalFileName: "recording_2.webm",
		})
	}))
	defer upstream.Close()

	cfg := relayConfig(upstream.URL, false)
	svc := NewService(context.Background(), cfg, NewHTTPForwarder(cfg, testLogger()), 1<<20, testLogger())
	defer svc.Close()
	front := httptest.NewServer(svc.Handler())
	defer front.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := channel.DialWebSocket(ctx, "ws"+strings.TrimPrefix(front.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	client := channel.NewClient(conn)
	defer client.Close()

	small, err := client.Upload(ctx, channel.UploadRequest{Payload: make([]byte, 500), DeclaredSize: 500})
	if err == nil || !strings.Contains(err.Error(), channel.ReasonAudioTooSmall) {
		t.Fatalf("expected too-small rejection, got %+v %v", small, err)
	}

	conn, err = channel.DialWebSocket(ctx, "ws"+strings.TrimPrefix(front.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	second := channel.NewClient(conn)
	defer second.Close()
	res, err := second.Upload(ctx, channel.UploadRequest{Payload: make([]byte, 4096), DeclaredSize: 4096, FileName: "recording_2.webm"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Transcription != "relayed" {
		t.Fatalf("unexpected result %+v", res)
	}
}
