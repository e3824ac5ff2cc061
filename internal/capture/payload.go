package capture

import "time"

// AudioChunk is one device delivery, kept in arrival order.
type AudioChunk struct {
	Data     []byte
	MimeType string
	At       time.Time
}

// AudioPayload is the finalized recording for one session.
type AudioPayload struct {
	Data     []byte
	MimeType string
	FileName string
	Duration time.Duration
}

func (p AudioPayload) Size() int { return len(p.Data) }

func assemble(chunks []AudioChunk) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c.Data)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out
}
