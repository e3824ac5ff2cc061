package protocol

import "encoding/json"

// TranscriptionResponse is the success body of POST /transcribe.
type TranscriptionResponse struct {
	Success          bool   `json:"success"`
	Transcription    string `json:"transcription"`
	OriginalFileName string `json:"originalFileName"`
}

// GenerationResponse is the success body of POST /transcribe-and-generate.
// GeneratedContent is null when the model reply held no parseable JSON.
type GenerationResponse struct {
	Success          bool            `json:"success"`
	Transcription    string          `json:"transcription"`
	GeneratedContent json.RawMessage `json:"generatedContent"`
	OriginalFileName string          `json:"originalFileName"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// GenAIResponse is the body of GET /genai.
type GenAIResponse struct {
	Response json.RawMessage `json:"response"`
}

const (
	PathTranscribe            = "/transcribe"
	PathTranscribeAndGenerate = "/transcribe-and-generate"
	PathGenAI                 = "/genai"

	// UploadField is the multipart field carrying the recording.
	UploadField = "file"

	MsgWelcome         = "Welcome to the loqa-mic Speech-to-Text API!"
	MsgNoFile          = "No file was uploaded."
	MsgAudioTooSmall   = "audio data too small"
	MsgProcessingError = "Failed to process the audio file."
	MsgGenerateError   = "Failed to process the audio file and generate content."
	MsgGenAIError      = "Failed to generate content"
	MsgInternalError   = "Internal server error"
)
