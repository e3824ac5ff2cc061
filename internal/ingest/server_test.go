package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/loqalabs/loqa-mic/internal/llm"
	"github.com/loqalabs/loqa-mic/internal/pipeline"
	"github.com/loqalabs/loqa-mic/internal/protocol"
	"github.com/loqalabs/loqa-mic/internal/stt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type copyTranscoder struct{}

func (copyTranscoder) Transcode(_ context.Context, input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o600)
}

// echoRecognizer answers with the converted file's content.
type echoRecognizer struct{}

func (echoRecognizer) Transcribe(_ context.Context, path string) (stt.TranscriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stt.TranscriptResult{}, err
	}
	return stt.TranscriptResult{Text: string(data)}, nil
}

// slowRecognizer answers after delay and reports the context error it saw.
type slowRecognizer struct {
	delay time.Duration
	seen  chan error
}

func (r slowRecognizer) Transcribe(ctx context.Context, _ string) (stt.TranscriptResult, error) {
	select {
	case <-time.After(r.delay):
		r.seen <- nil
		return stt.TranscriptResult{Text: "finished"}, nil
	case <-ctx.Done():
		r.seen <- ctx.Err()
		return stt.TranscriptResult{}, ctx.Err()
	}
}

type rejectingRecognizer struct{}

func (rejectingRecognizer) Transcribe(context.Context, string) (stt.TranscriptResult, error) {
	return stt.TranscriptResult{}, &fault.Error{
		Kind:       fault.Transcription,
		Message:    "elevenlabs returned 401 Unauthorized",
		StatusCode: http.StatusUnauthorized,
		Details:    `{"detail":"invalid api key"}`,
	}
}

type fixture struct {
	srv *httptest.Server
	dir string
}

func newFixture(t *testing.T, deps pipeline.Deps, minBytes int64) fixture {
	t.Helper()
	if deps.Transcoder == nil {
		deps.Transcoder = copyTranscoder{}
	}
	if deps.Recognizer == nil {
		deps.Recognizer = echoRecognizer{}
	}
	dir := t.TempDir()
	pipe := pipeline.New(deps, pipeline.Options{}, newLogger())
	server, err := NewServer(Options{
		UploadDir:      dir,
		MaxUploadBytes: 1 << 20,
		MinUploadBytes: minBytes,
		OutputFormat:   "mp3",
	}, pipe, newLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return fixture{srv: srv, dir: dir}
}

func (f fixture) assertNoTransientFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected transient files removed, found %v", names)
	}
}

func postUpload(url, field, fileName string, content []byte) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("note", "ignored"); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return http.Post(url, mw.FormDataContentType(), &body)
}

func upload(t *testing.T, url, field, fileName string, content []byte) *http.Response {
	t.Helper()
	resp, err := postUpload(url, field, fileName, content)
	if err != nil {
		t.Fatalf("post upload: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func audio(n int, seed byte) []byte {
	return bytes.Repeat([]byte{seed}, n)
}

func TestRootAndCORS(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 0)

	resp, err := http.Get(f.srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != protocol.MsgWelcome {
		t.Fatalf("unexpected root response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+protocol.PathTranscribe, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected preflight 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("preflight should allow POST")
	}

	resp, err = http.Get(f.srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMissingFileIsBadRequest(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribe, "attachment", "a.webm", audio(10, 1))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	er := decode[protocol.ErrorResponse](t, resp)
	if er.Error != protocol.MsgNoFile {
		t.Fatalf("unexpected error body %+v", er)
	}

	resp, err := http.Post(f.srv.URL+protocol.PathTranscribe, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	f.assertNoTransientFiles(t)
}

func TestSmallUploadRejected(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 1024)

	resp := upload(t, f.srv.URL+protocol.PathTranscribe, "file", "recording_1.webm", audio(100, 2))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	er := decode[protocol.ErrorResponse](t, resp)
	if er.Error != protocol.MsgAudioTooSmall {
		t.Fatalf("unexpected error %+v", er)
	}
	f.assertNoTransientFiles(t)
}

func TestOversizedUploadRejected(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribe, "file", "big.webm", audio(1<<20+10, 3))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	er := decode[protocol.ErrorResponse](t, resp)
	if er.StatusCode != http.StatusBadRequest || er.Kind != string(fault.Ingest) {
		t.Fatalf("error body should repeat the 400 status, got %+v", er)
	}
	f.assertNoTransientFiles(t)
}

func TestTranscribeSuccess(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 16)

	content := []byte(strings.Repeat("spoken words ", 10))
	resp := upload(t, f.srv.URL+protocol.PathTranscribe, "file", "recording_42.webm", content)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[protocol.TranscriptionResponse](t, resp)
	if !out.Success || out.Transcription != string(content) || out.OriginalFileName != "recording_42.webm" {
		t.Fatalf("unexpected response %+v", out)
	}
	f.assertNoTransientFiles(t)
}

func TestUpstreamStatusPassedThrough(t *testing.T) {
	f := newFixture(t, pipeline.Deps{Recognizer: rejectingRecognizer{}}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribe, "file", "a.webm", audio(64, 4))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	er := decode[protocol.ErrorResponse](t, resp)
	if er.Error != protocol.MsgProcessingError || er.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected error body %+v", er)
	}
	if !strings.Contains(er.Details, "invalid api key") {
		t.Fatalf("upstream body not carried: %q", er.Details)
	}
	f.assertNoTransientFiles(t)
}

type failingRecognizer struct{}

func (failingRecognizer) Transcribe(context.Context, string) (stt.TranscriptResult, error) {
	return stt.TranscriptResult{}, &fault.Error{
		Kind:       fault.Transcription,
		Message:    "elevenlabs returned 500 Internal Server Error",
		StatusCode: http.StatusInternalServerError,
		Details:    "upstream exploded",
	}
}

func TestUpstreamFailureCarriesNoSuccessFields(t *testing.T) {
	f := newFixture(t, pipeline.Deps{Recognizer: failingRecognizer{}}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribeAndGenerate, "file", "a.webm", audio(64, 5))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	for _, key := range []string{"success", "transcription", "generatedContent"} {
		if _, ok := body[key]; ok {
			t.Fatalf("error body must not carry %q: %v", key, body)
		}
	}
	if body["error"] != protocol.MsgGenerateError || body["statusCode"] != float64(http.StatusInternalServerError) {
		t.Fatalf("unexpected error body %v", body)
	}
	f.assertNoTransientFiles(t)
}

func TestTranscribeAndGenerate(t *testing.T) {
	f := newFixture(t, pipeline.Deps{Generator: llm.NewMockGenerator()}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribeAndGenerate, "file", "a.webm", []byte("um like hello"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[protocol.GenerationResponse](t, resp)
	if out.Transcription != "um like hello" {
		t.Fatalf("unexpected transcription %q", out.Transcription)
	}
	var doc map[string]any
	if err := json.Unmarshal(out.GeneratedContent, &doc); err != nil || doc["response_analysis"] == nil {
		t.Fatalf("expected analysis document, got %s", out.GeneratedContent)
	}
	f.assertNoTransientFiles(t)
}

func TestGenerateWithoutJSONReturnsNull(t *testing.T) {
	f := newFixture(t, pipeline.Deps{Generator: llm.NewStaticGenerator("no json here")}, 0)

	resp := upload(t, f.srv.URL+protocol.PathTranscribeAndGenerate, "file", "a.webm", []byte("hello"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte(`"generatedContent":null`)) {
		t.Fatalf("expected null generatedContent, got %s", raw)
	}
	if !bytes.Contains(raw, []byte(`"transcription":"hello"`)) {
		t.Fatalf("expected transcription in body, got %s", raw)
	}
}

func TestGenAI(t *testing.T) {
	f := newFixture(t, pipeline.Deps{Generator: llm.NewMockGenerator()}, 0)

	resp, err := http.Get(f.srv.URL + protocol.PathGenAI)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[protocol.GenAIResponse](t, resp)
	if len(out.Response) == 0 || string(out.Response) == "null" {
		t.Fatalf("expected analysis in response")
	}

	disabled := newFixture(t, pipeline.Deps{}, 0)
	resp, err = http.Get(disabled.srv.URL + protocol.PathGenAI)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 with generation disabled, got %d", resp.StatusCode)
	}
	er := decode[protocol.ErrorResponse](t, resp)
	if er.Error != protocol.MsgGenAIError {
		t.Fatalf("unexpected error %+v", er)
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), newLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var er protocol.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Error != protocol.MsgInternalError || er.Message != "boom" {
		t.Fatalf("unexpected body %+v", er)
	}
}

func TestConcurrentUploadsStayIsolated(t *testing.T) {
	f := newFixture(t, pipeline.Deps{}, 0)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("recording number %02d %s", i, strings.Repeat("x", 200+i))
			resp, err := postUpload(f.srv.URL+protocol.PathTranscribe, "file", fmt.Sprintf("r%d.webm", i), []byte(want))
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			var out protocol.TranscriptionResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				errs <- err
				return
			}
			if out.Transcription != want {
				errs <- fmt.Errorf("upload %d got transcript of another request", i)
				return
			}
			if out.OriginalFileName != fmt.Sprintf("r%d.webm", i) {
				errs <- fmt.Errorf("upload %d got file name %q", i, out.OriginalFileName)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	f.assertNoTransientFiles(t)
}

func TestClientDisconnectDoesNotAbortPipeline(t *testing.T) {
	rec := slowRecognizer{delay: 300 * time.Millisecond, seen: make(chan error, 1)}
	f := newFixture(t, pipeline.Deps{Recognizer: rec}, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "recording_7.webm")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(audio(4096, 9))
	_ = mw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.srv.URL+protocol.PathTranscribe, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
		t.Fatalf("expected the client deadline to fire first")
	}

	select {
	case seen := <-rec.seen:
		if seen != nil {
			t.Fatalf("recognizer was cancelled mid-flight: %v", seen)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("recognizer never finished")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(f.dir)
		if err != nil {
			t.Fatalf("read upload dir: %v", err)
		}
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transient files left behind: %d", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
