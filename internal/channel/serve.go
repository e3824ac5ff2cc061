package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-mic/internal/fault"
)

const (
	ReasonNoAudio        = "no audio data received"
	ReasonEmptyAudio     = "audio data is empty"
	ReasonAudioTooSmall  = "audio data too small"
	ReasonLengthMismatch = "audio data length mismatch"
)

// Forwarder hands a validated upload to the processing service.
type Forwarder interface {
	Forward(ctx context.Context, req UploadRequest) (UploadSuccess, error)
}

type ServeOptions struct {
	MinPayloadBytes int
	// StrictLength rejects payloads whose length differs from DeclaredSize.
	// When false the mismatch is only logged.
	StrictLength bool
	Logger       *slog.Logger
}

// Serve handles the single request carried by conn: it validates the payload,
// forwards it, sends exactly one terminal response, and closes conn.
func Serve(ctx context.Context, conn Conn, fwd Forwarder, opts ServeOptions) error {
	defer conn.Close()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	msg, err := conn.Receive(ctx)
	if err != nil {
		return fmt.Errorf("receive upload: %w", err)
	}
	if msg.Type != KindUploadRequest {
		return conn.Send(ctx, FailureMessage(UploadFailure{
			Kind:   string(fault.Validation),
			Reason: fmt.Sprintf("unexpected message %s", msg.Type),
		}))
	}

	if reason := validate(msg.Request, opts, logger); reason != "" {
		logger.Info("rejecting upload", slog.String("reason", reason))
		return conn.Send(ctx, FailureMessage(UploadFailure{
			Kind:   string(fault.Validation),
			Reason: reason,
		}))
	}

	req := *msg.Request
	logger.Info("forwarding upload",
		slog.Int("bytes", len(req.Payload)),
		slog.String("mime_type", req.MimeType),
		slog.String("file_name", req.FileName))

	res, err := fwd.Forward(ctx, req)
	if err != nil {
		return conn.Send(ctx, FailureMessage(failureFromError(err)))
	}
	return conn.Send(ctx, SuccessMessage(res))
}

func validate(req *UploadRequest, opts ServeOptions, logger *slog.Logger) string {
	if req == nil {
		return ReasonNoAudio
	}
	if len(req.Payload) == 0 {
		return ReasonEmptyAudio
	}
	if len(req.Payload) < opts.MinPayloadBytes {
		return ReasonAudioTooSmall
	}
	if len(req.Payload) != req.DeclaredSize {
		logger.Warn("audio data length mismatch",
			slog.Int("received", len(req.Payload)),
			slog.Int("declared", req.DeclaredSize),
			slog.Bool("strict", opts.StrictLength))
		if opts.StrictLength {
			return ReasonLengthMismatch
		}
	}
	return ""
}

func failureFromError(err error) UploadFailure {
	if fe, ok := fault.As(err); ok {
		reason := fe.Message
		if reason == "" {
			reason = fe.Error()
		}
		return UploadFailure{
			Kind:       string(fe.Kind),
			Reason:     reason,
			StatusCode: fe.StatusCode,
			Details:    fe.Details,
		}
	}
	return UploadFailure{Kind: string(fault.Transport), Reason: err.Error()}
}
