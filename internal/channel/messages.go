// Package channel carries one audio upload and its terminal response between
// the capturing process and the network-capable relay.
package channel

// Kind tags a Message body.
type Kind string

const (
	KindUploadRequest Kind = "UploadRequest"
	KindUploadSuccess Kind = "UploadSuccess"
	KindUploadFailure Kind = "UploadFailure"
)

// Message is the tagged union sent over a Conn. Exactly one body matches Type.
type Message struct {
	Type    Kind           `msgpack:"type"`
	Request *UploadRequest `msgpack:"request,omitempty"`
	Success *UploadSuccess `msgpack:"success,omitempty"`
	Failure *UploadFailure `msgpack:"failure,omitempty"`
}

// UploadRequest carries the finalized recording.
type UploadRequest struct {
	Payload              []byte `msgpack:"payload"`
	DeclaredSize         int    `msgpack:"declared_size"`
	DeclaredOriginalSize int    `msgpack:"declared_original_size"`
	MimeType             string `msgpack:"mime_type"`
	FileName             string `msgpack:"file_name"`
}

// UploadSuccess is the terminal response for a processed upload.
// GeneratedAnalysis holds the raw analysis JSON when the extended pipeline ran.
type UploadSuccess struct {
	Transcription     string `msgpack:"transcription"`
	GeneratedAnalysis []byte `msgpack:"generated_analysis,omitempty"`
	OriginalFileName  string `msgpack:"original_file_name"`
}

type UploadFailure struct {
	Kind       string `msgpack:"kind,omitempty"`
	Reason     string `msgpack:"reason"`
	StatusCode int    `msgpack:"status_code,omitempty"`
	Details    string `msgpack:"details,omitempty"`
}

func RequestMessage(req UploadRequest) Message {
	return Message{Type: KindUploadRequest, Request: &req}
}

func SuccessMessage(res UploadSuccess) Message {
	return Message{Type: KindUploadSuccess, Success: &res}
}

func FailureMessage(f UploadFailure) Message {
	return Message{Type: KindUploadFailure, Failure: &f}
}
