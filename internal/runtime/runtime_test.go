package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mic/internal/capture"
	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startTestRuntime serves the runtime's handler on an httptest server whose
// URL is also the relay's upstream.
func startTestRuntime(t *testing.T) (*Runtime, *httptest.Server) {
	t.Helper()
	var root http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.EventStore.RetentionMode = "ephemeral"
	cfg.STT.Mode = "mock"
	cfg.LLM.Mode = "mock"
	cfg.Storage.Directory = t.TempDir()
	cfg.Ingest.UploadDir = t.TempDir()
	cfg.Relay.UpstreamURL = srv.URL

	rt := New(cfg, testLogger())
	handler, err := rt.setup(context.Background(), nil)
	if err != nil {
		t.Fatalf("setup runtime: %v", err)
	}
	t.Cleanup(rt.teardown)
	root = handler
	return rt, srv
}

func TestHealthAndReady(t *testing.T) {
	rt, srv := startTestRuntime(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz 503 before start, got %d", resp.StatusCode)
	}

	rt.ready.Store(true)
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected readyz 200, got %d", resp.StatusCode)
	}
	var body readiness
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	resp.Body.Close()
	if body.Status != "ready" || !body.Generation || body.RelayChannels != 0 {
		t.Fatalf("unexpected readiness %+v", body)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel"
}

func TestRelayRejectsTinyPayload(t *testing.T) {
	rt, srv := startTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := channel.DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	client := channel.NewClient(conn)
	defer client.Close()

	payload := []byte("tiny")
	_, err = client.Upload(ctx, channel.UploadRequest{
		Payload:              payload,
		DeclaredSize:         len(payload),
		DeclaredOriginalSize: len(payload),
		MimeType:             "audio/wav",
		FileName:             "recording_1.wav",
	})
	fe, ok := fault.As(err)
	if !ok || fe.Message != channel.ReasonAudioTooSmall {
		t.Fatalf("expected audio too small failure, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rt.relay.Served() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one served channel, got %d", rt.relay.Served())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEndTranscription(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	_, srv := startTestRuntime(t)

	samples := make([]int, 16000*2)
	for i := range samples {
		samples[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	wav, err := capture.EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := channel.DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	client := channel.NewClient(conn)
	defer client.Close()

	res, err := client.Upload(ctx, channel.UploadRequest{
		Payload:              wav,
		DeclaredSize:         len(wav),
		DeclaredOriginalSize: len(wav),
		MimeType:             "audio/wav",
		FileName:             "recording_2.wav",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(res.Transcription, "[mock transcript") {
		t.Fatalf("unexpected transcription %q", res.Transcription)
	}
	if res.OriginalFileName != "recording_2.wav" {
		t.Fatalf("unexpected file name %q", res.OriginalFileName)
	}
}
