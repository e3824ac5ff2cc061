package capture

import (
	"fmt"
	"strings"
	"time"
)

// PreferredMimeTypes is the negotiation order, most capable first.
var PreferredMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/wav",
}

// Negotiate picks the first preferred type the device supports, falling back
// to the device default.
func Negotiate(dev Device) string {
	for _, mimeType := range PreferredMimeTypes {
		if dev.Supports(mimeType) {
			return mimeType
		}
	}
	return dev.DefaultMimeType()
}

// Extension maps a MIME type onto the upload file extension.
func Extension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "wav"):
		return "wav"
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	default:
		return "webm"
	}
}

// FileName names an upload recording_<unix-ms>.<ext>.
func FileName(mimeType string, at time.Time) string {
	return fmt.Sprintf("recording_%d.%s", at.UnixMilli(), Extension(mimeType))
}

// Elapsed formats a duration as mm:ss.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
