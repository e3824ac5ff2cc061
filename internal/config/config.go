package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	Traces       bool   `yaml:"traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Ingest      IngestConfig     `yaml:"ingest"`
	Transcode   TranscodeConfig  `yaml:"transcode"`
	STT         STTConfig        `yaml:"stt"`
	LLM         LLMConfig        `yaml:"llm"`
	Analysis    AnalysisConfig   `yaml:"analysis"`
	Storage     StorageConfig    `yaml:"storage"`
	Relay       RelayConfig      `yaml:"relay"`
	Capture     CaptureConfig    `yaml:"capture"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type IngestConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	FieldName      string `yaml:"field_name"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MinUploadBytes int64  `yaml:"min_upload_bytes"`
}

type TranscodeConfig struct {
	Command      string `yaml:"command"`
	ProbeCommand string `yaml:"probe_command"`
	Format       string `yaml:"format"`
	Codec        string `yaml:"codec"`
	BitrateKbps  int    `yaml:"bitrate_kbps"`
	Channels     int    `yaml:"channels"`
	SampleRate   int    `yaml:"sample_rate"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

type STTConfig struct {
	Mode           string `yaml:"mode"` // elevenlabs, exec, mock
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Command        string `yaml:"command"`
	Language       string `yaml:"language"`
	TagAudioEvents bool   `yaml:"tag_audio_events"`
	Diarize        bool   `yaml:"diarize"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // gemini, ollama, exec, mock
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Command     string  `yaml:"command"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type AnalysisConfig struct {
	RepairJSON      bool   `yaml:"repair_json"`
	PersistLatest   bool   `yaml:"persist_latest"`
	RecordName      string `yaml:"record_name"`
	AnalyzerVersion string `yaml:"analyzer_version"`
}

type StorageConfig struct {
	Backend         string `yaml:"backend"` // local, s3
	Directory       string `yaml:"directory"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type RelayConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"`
	UpstreamURL     string `yaml:"upstream_url"`
	Generate        bool   `yaml:"generate"`
	StrictLength    bool   `yaml:"strict_length"`
	MinPayloadBytes int    `yaml:"min_payload_bytes"`
	NATSSubject     string `yaml:"nats_subject"`
	TimeoutMS       int    `yaml:"timeout_ms"`
}

type CaptureConfig struct {
	Transport       string `yaml:"transport"` // websocket, nats
	ChannelURL      string `yaml:"channel_url"`
	NATSURL         string `yaml:"nats_url"`
	NATSSubject     string `yaml:"nats_subject"`
	FFmpegCommand   string `yaml:"ffmpeg_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	BitsPerSecond   int    `yaml:"bits_per_second"`
	ChunkIntervalMS int    `yaml:"chunk_interval_ms"`
	MinDurationMS   int    `yaml:"min_duration_ms"`
	MinPayloadBytes int    `yaml:"min_payload_bytes"`
	ResponseTimeout int    `yaml:"response_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-mic",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-mic-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Ingest: IngestConfig{
			UploadDir:      os.TempDir(),
			FieldName:      "file",
			MaxUploadBytes: 25 << 20,
			MinUploadBytes: 1024,
		},
		Transcode: TranscodeConfig{
			Command:      "ffmpeg",
			ProbeCommand: "ffprobe",
			Format:       "mp3",
			Codec:        "libmp3lame",
			BitrateKbps:  128,
			Channels:     1,
			SampleRate:   22050,
			TimeoutMS:    30000,
		},
		STT: STTConfig{
			Mode:           "elevenlabs",
			Endpoint:       "https://api.elevenlabs.io/v1/speech-to-text",
			Model:          "scribe_v1",
			TagAudioEvents: true,
			Diarize:        true,
			TimeoutMS:      60000,
		},
		LLM: LLMConfig{
			Enabled:     true,
			Mode:        "gemini",
			Endpoint:    "",
			Model:       "gemini-2.5-flash",
			MaxTokens:   0,
			Temperature: 0,
			TimeoutMS:   60000,
		},
		Analysis: AnalysisConfig{
			RepairJSON:      false,
			PersistLatest:   true,
			RecordName:      "output.json",
			AnalyzerVersion: "1.0.0",
		},
		Storage: StorageConfig{
			Backend:   "local",
			Directory: ".",
		},
		Relay: RelayConfig{
			Enabled:         true,
			Path:            "/channel",
			UpstreamURL:     "http://127.0.0.1:8080",
			StrictLength:    true,
			MinPayloadBytes: 1024,
			NATSSubject:     "mic.channel",
			TimeoutMS:       180000,
		},
		Capture: CaptureConfig{
			Transport:       "websocket",
			ChannelURL:      "ws://127.0.0.1:8080/channel",
			NATSURL:         "nats://localhost:4222",
			NATSSubject:     "mic.channel",
			FFmpegCommand:   "ffmpeg",
			InputFormat:     defaultInputFormat(),
			InputDevice:     defaultInputDevice(),
			SampleRate:      44100,
			BitsPerSecond:   128000,
			ChunkIntervalMS: 250,
			MinDurationMS:   1000,
			MinPayloadBytes: 2048,
			ResponseTimeout: 150000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_MIC_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_MIC_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_MIC_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_MIC_HTTP_PORT")
	overrideInt(&cfg.HTTP.Port, "PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_MIC_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_MIC_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_MIC_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.Traces, "LOQA_MIC_TELEMETRY_TRACES")
	overrideBool(&cfg.Bus.Enabled, "LOQA_MIC_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_MIC_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_MIC_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_MIC_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_MIC_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_MIC_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_MIC_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_MIC_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_MIC_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_MIC_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_MIC_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_MIC_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_MIC_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_MIC_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Ingest.UploadDir, "LOQA_MIC_INGEST_UPLOAD_DIR")
	overrideInt64(&cfg.Ingest.MaxUploadBytes, "LOQA_MIC_INGEST_MAX_UPLOAD_BYTES")
	overrideInt64(&cfg.Ingest.MinUploadBytes, "LOQA_MIC_INGEST_MIN_UPLOAD_BYTES")
	overrideString(&cfg.Transcode.Command, "LOQA_MIC_TRANSCODE_COMMAND")
	overrideString(&cfg.Transcode.ProbeCommand, "LOQA_MIC_TRANSCODE_PROBE_COMMAND")
	overrideInt(&cfg.Transcode.TimeoutMS, "LOQA_MIC_TRANSCODE_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "LOQA_MIC_STT_MODE")
	overrideString(&cfg.STT.Endpoint, "LOQA_MIC_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.STT.APIKey, "LOQA_MIC_STT_API_KEY")
	overrideString(&cfg.STT.Model, "LOQA_MIC_STT_MODEL")
	overrideString(&cfg.STT.Command, "LOQA_MIC_STT_COMMAND")
	overrideString(&cfg.STT.Language, "LOQA_MIC_STT_LANGUAGE")
	overrideInt(&cfg.STT.TimeoutMS, "LOQA_MIC_STT_TIMEOUT_MS")
	overrideBool(&cfg.LLM.Enabled, "LOQA_MIC_LLM_ENABLED")
	overrideString(&cfg.LLM.Mode, "LOQA_MIC_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LOQA_MIC_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.LLM.APIKey, "LOQA_MIC_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "LOQA_MIC_LLM_MODEL")
	overrideString(&cfg.LLM.Command, "LOQA_MIC_LLM_COMMAND")
	overrideInt(&cfg.LLM.MaxTokens, "LOQA_MIC_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LOQA_MIC_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "LOQA_MIC_LLM_TIMEOUT_MS")
	overrideBool(&cfg.Analysis.RepairJSON, "LOQA_MIC_ANALYSIS_REPAIR_JSON")
	overrideBool(&cfg.Analysis.PersistLatest, "LOQA_MIC_ANALYSIS_PERSIST_LATEST")
	overrideString(&cfg.Analysis.RecordName, "LOQA_MIC_ANALYSIS_RECORD_NAME")
	overrideString(&cfg.Storage.Backend, "LOQA_MIC_STORAGE_BACKEND")
	overrideString(&cfg.Storage.Directory, "LOQA_MIC_STORAGE_DIRECTORY")
	overrideString(&cfg.Storage.Bucket, "LOQA_MIC_STORAGE_BUCKET")
	overrideString(&cfg.Storage.Prefix, "LOQA_MIC_STORAGE_PREFIX")
	overrideString(&cfg.Storage.Region, "LOQA_MIC_STORAGE_REGION")
	overrideString(&cfg.Storage.Endpoint, "LOQA_MIC_STORAGE_ENDPOINT")
	overrideString(&cfg.Storage.AccessKeyID, "LOQA_MIC_STORAGE_ACCESS_KEY_ID")
	overrideString(&cfg.Storage.SecretAccessKey, "LOQA_MIC_STORAGE_SECRET_ACCESS_KEY")
	overrideBool(&cfg.Storage.UsePathStyle, "LOQA_MIC_STORAGE_USE_PATH_STYLE")
	overrideBool(&cfg.Relay.Enabled, "LOQA_MIC_RELAY_ENABLED")
	overrideString(&cfg.Relay.UpstreamURL, "LOQA_MIC_RELAY_UPSTREAM_URL")
	overrideBool(&cfg.Relay.Generate, "LOQA_MIC_RELAY_GENERATE")
	overrideBool(&cfg.Relay.StrictLength, "LOQA_MIC_RELAY_STRICT_LENGTH")
	overrideInt(&cfg.Relay.MinPayloadBytes, "LOQA_MIC_RELAY_MIN_PAYLOAD_BYTES")
	overrideString(&cfg.Relay.NATSSubject, "LOQA_MIC_RELAY_NATS_SUBJECT")
	overrideInt(&cfg.Relay.TimeoutMS, "LOQA_MIC_RELAY_TIMEOUT_MS")
	overrideString(&cfg.Capture.Transport, "LOQA_MIC_CAPTURE_TRANSPORT")
	overrideString(&cfg.Capture.ChannelURL, "LOQA_MIC_CAPTURE_CHANNEL_URL")
	overrideString(&cfg.Capture.NATSURL, "LOQA_MIC_CAPTURE_NATS_URL")
	overrideString(&cfg.Capture.NATSSubject, "LOQA_MIC_CAPTURE_NATS_SUBJECT")
	overrideString(&cfg.Capture.FFmpegCommand, "LOQA_MIC_CAPTURE_FFMPEG_COMMAND")
	overrideString(&cfg.Capture.InputFormat, "LOQA_MIC_CAPTURE_INPUT_FORMAT")
	overrideString(&cfg.Capture.InputDevice, "LOQA_MIC_CAPTURE_INPUT_DEVICE")
	overrideInt(&cfg.Capture.ChunkIntervalMS, "LOQA_MIC_CAPTURE_CHUNK_INTERVAL_MS")
	overrideInt(&cfg.Capture.MinDurationMS, "LOQA_MIC_CAPTURE_MIN_DURATION_MS")
	overrideInt(&cfg.Capture.MinPayloadBytes, "LOQA_MIC_CAPTURE_MIN_PAYLOAD_BYTES")
	overrideInt(&cfg.Capture.ResponseTimeout, "LOQA_MIC_CAPTURE_RESPONSE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// stageBudgetMS is the longest a relayed request can spend in the pipeline.
func stageBudgetMS(cfg Config) int {
	total := cfg.Transcode.TimeoutMS + cfg.STT.TimeoutMS
	if cfg.LLM.Enabled {
		total += cfg.LLM.TimeoutMS
	}
	return total
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Ingest.UploadDir == "" {
		return errors.New("ingest.upload_dir must not be empty")
	}
	if cfg.Ingest.FieldName == "" {
		return errors.New("ingest.field_name must not be empty")
	}
	if cfg.Ingest.MaxUploadBytes <= 0 {
		return errors.New("ingest.max_upload_bytes must be positive")
	}
	if cfg.Ingest.MinUploadBytes < 0 || cfg.Ingest.MinUploadBytes >= cfg.Ingest.MaxUploadBytes {
		return errors.New("ingest.min_upload_bytes must be >= 0 and below max_upload_bytes")
	}
	if cfg.Transcode.Command == "" {
		return errors.New("transcode.command must not be empty")
	}
	if cfg.Transcode.Channels != 1 {
		return errors.New("transcode.channels must be 1")
	}
	if cfg.Transcode.SampleRate <= 0 || cfg.Transcode.BitrateKbps <= 0 {
		return errors.New("transcode.sample_rate and transcode.bitrate_kbps must be positive")
	}
	if cfg.Transcode.TimeoutMS <= 0 {
		return errors.New("transcode.timeout_ms must be positive")
	}
	switch cfg.STT.Mode {
	case "elevenlabs", "exec", "mock":
	default:
		return errors.New("stt.mode must be one of elevenlabs|exec|mock")
	}
	if cfg.STT.Mode == "elevenlabs" && cfg.STT.Endpoint == "" {
		return errors.New("stt.endpoint must be set when mode=elevenlabs")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.TimeoutMS <= 0 {
		return errors.New("stt.timeout_ms must be positive")
	}
	if cfg.LLM.Enabled {
		switch cfg.LLM.Mode {
		case "gemini", "mock", "ollama", "exec":
		default:
			return errors.New("llm.mode must be one of gemini|mock|ollama|exec")
		}
		if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
		if cfg.LLM.MaxTokens < 0 {
			return errors.New("llm.max_tokens must be >= 0")
		}
		if cfg.LLM.TimeoutMS <= 0 {
			return errors.New("llm.timeout_ms must be positive")
		}
	}
	if cfg.Analysis.PersistLatest && cfg.Analysis.RecordName == "" {
		return errors.New("analysis.record_name must be set when persist_latest is enabled")
	}
	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.Directory == "" {
			return errors.New("storage.directory must be set when backend=local")
		}
	case "s3":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when backend=s3")
		}
	default:
		return errors.New("storage.backend must be one of local|s3")
	}
	if cfg.Relay.Enabled {
		if cfg.Relay.UpstreamURL == "" {
			return errors.New("relay.upstream_url must be set when relay is enabled")
		}
		if !strings.HasPrefix(cfg.Relay.Path, "/") {
			return errors.New("relay.path must start with /")
		}
		if cfg.Relay.MinPayloadBytes < 0 {
			return errors.New("relay.min_payload_bytes must be >= 0")
		}
		if cfg.Relay.TimeoutMS > 0 && cfg.Relay.TimeoutMS <= stageBudgetMS(cfg) {
			return fmt.Errorf("relay.timeout_ms must exceed the summed stage timeouts (%dms)", stageBudgetMS(cfg))
		}
	}
	switch cfg.Capture.Transport {
	case "websocket", "nats":
	default:
		return errors.New("capture.transport must be one of websocket|nats")
	}
	if cfg.Capture.ChunkIntervalMS <= 0 {
		return errors.New("capture.chunk_interval_ms must be positive")
	}
	if cfg.Capture.MinDurationMS < 0 || cfg.Capture.MinPayloadBytes < 0 {
		return errors.New("capture minimums must be >= 0")
	}
	return nil
}
