package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-mic/internal/channel"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

// Result is what the display collaborator receives on success.
type Result struct {
	Transcription    string
	Analysis         json.RawMessage
	OriginalFileName string
}

// UI is the display collaborator. Rendering is entirely its concern.
type UI interface {
	Observer
	OnResult(res Result)
}

// Controller binds a session to the transport: stopping a valid recording
// opens a fresh channel, uploads the payload and reports the terminal outcome.
type Controller struct {
	session *Session
	dialer  channel.Dialer
	ui      UI
	timeout time.Duration
	logger  *slog.Logger
}

func NewController(session *Session, dialer channel.Dialer, ui UI, responseTimeout time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	session.Observe(ui)
	return &Controller{
		session: session,
		dialer:  dialer,
		ui:      ui,
		timeout: responseTimeout,
		logger:  logger.With(slog.String("component", "capture"), slog.String("session_id", session.ID())),
	}
}

func (c *Controller) Session() *Session { return c.session }

func (c *Controller) StartCapture(ctx context.Context) error {
	if err := c.session.Start(ctx); err != nil {
		c.ui.OnError(err)
		return err
	}
	return nil
}

// StopCapture finishes the recording and performs the upload round trip.
// Validation failures are reported without any transport attempt.
func (c *Controller) StopCapture(ctx context.Context) (Result, error) {
	payload, err := c.session.Stop(ctx)
	if err != nil {
		c.ui.OnError(err)
		return Result{}, err
	}

	res, err := c.upload(ctx, payload)
	if err != nil {
		_ = c.session.Fail(err)
		c.ui.OnError(err)
		return Result{}, err
	}
	_ = c.session.Respond()
	c.ui.OnResult(res)
	return res, nil
}

func (c *Controller) upload(ctx context.Context, payload AudioPayload) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return Result{}, fault.Wrap(fault.Transport, channel.ConnectionLost, err)
	}
	client := channel.NewClient(conn)
	defer client.Close()

	c.logger.Info("uploading recording",
		slog.Int("bytes", payload.Size()),
		slog.String("file_name", payload.FileName))

	res, err := client.Upload(ctx, channel.UploadRequest{
		Payload:              payload.Data,
		DeclaredSize:         payload.Size(),
		DeclaredOriginalSize: payload.Size(),
		MimeType:             payload.MimeType,
		FileName:             payload.FileName,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Transcription:    res.Transcription,
		Analysis:         json.RawMessage(res.GeneratedAnalysis),
		OriginalFileName: res.OriginalFileName,
	}, nil
}

// DisplayText is what the display collaborator shows for a terminal outcome:
// the error if any, else the transcription, else a placeholder.
func DisplayText(res Result, err error) string {
	if err != nil {
		if fe, ok := fault.As(err); ok && fe.Message != "" {
			return fe.Message
		}
		return err.Error()
	}
	if res.Transcription != "" {
		return res.Transcription
	}
	return "No response received"
}
