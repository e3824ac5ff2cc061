package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ingest.FieldName != "file" {
		t.Fatalf("expected default upload field, got %q", cfg.Ingest.FieldName)
	}
	if cfg.Transcode.Channels != 1 || cfg.Transcode.SampleRate != 22050 || cfg.Transcode.BitrateKbps != 128 {
		t.Fatalf("unexpected canonical encoding defaults: %+v", cfg.Transcode)
	}
	if cfg.STT.Model != "scribe_v1" || !cfg.STT.Diarize || !cfg.STT.TagAudioEvents {
		t.Fatalf("unexpected stt defaults: %+v", cfg.STT)
	}
	if !cfg.Relay.StrictLength {
		t.Fatal("expected strict length check by default")
	}
	if cfg.Capture.MinDurationMS != 1000 || cfg.Capture.MinPayloadBytes != 2048 {
		t.Fatalf("unexpected capture minimums: %+v", cfg.Capture)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_MIC_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_MIC_BUS_USERNAME", "alice")
	t.Setenv("LOQA_MIC_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_MIC_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_MIC_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("LOQA_MIC_INGEST_MIN_UPLOAD_BYTES", "512")
	t.Setenv("LOQA_MIC_STT_MODE", "mock")
	t.Setenv("ELEVENLABS_API_KEY", "from-conventional")
	t.Setenv("LOQA_MIC_STT_API_KEY", "from-prefixed")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("LOQA_MIC_LLM_TEMPERATURE", "0.4")
	t.Setenv("LOQA_MIC_RELAY_STRICT_LENGTH", "false")
	t.Setenv("LOQA_MIC_STORAGE_BACKEND", "s3")
	t.Setenv("LOQA_MIC_STORAGE_BUCKET", "analyses")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store overrides")
	}
	if cfg.Ingest.MinUploadBytes != 512 {
		t.Fatalf("expected min upload override, got %d", cfg.Ingest.MinUploadBytes)
	}
	if cfg.STT.Mode != "mock" || cfg.STT.APIKey != "from-prefixed" {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if cfg.LLM.APIKey != "gem-key" || cfg.LLM.Temperature != 0.4 {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.Relay.StrictLength {
		t.Fatal("expected strict length override false")
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "analyses" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-mic.yaml")
	data := []byte("http:\n  port: 9090\ntranscode:\n  timeout_ms: 5000\nllm:\n  mode: mock\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Transcode.TimeoutMS != 5000 || cfg.LLM.Mode != "mock" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Transcode.Codec != "libmp3lame" {
		t.Fatalf("defaults lost for unset keys")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("LOQA_MIC_STT_MODE", "whisper")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown stt mode")
	}
}

func TestValidateRejectsS3WithoutBucket(t *testing.T) {
	t.Setenv("LOQA_MIC_STORAGE_BACKEND", "s3")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for s3 backend without bucket")
	}
}

func TestValidateRelayOutlastsStages(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Relay.TimeoutMS <= cfg.Transcode.TimeoutMS+cfg.STT.TimeoutMS+cfg.LLM.TimeoutMS {
		t.Fatalf("default relay timeout %d does not cover the stage timeouts", cfg.Relay.TimeoutMS)
	}

	path := filepath.Join(t.TempDir(), "loqa-mic.yaml")
	if err := os.WriteFile(path, []byte("relay:\n  timeout_ms: 120000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for a relay timeout shorter than the stages")
	}
}
