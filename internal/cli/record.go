package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mic/internal/capture"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var duration time.Duration
	var mimeType string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and transcribe",
		Long:  "Record from the configured input device until Enter or Ctrl+C (or --duration elapses), then upload the recording and print the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config.Capture
			var supported []string
			if mimeType != "" {
				supported = []string{mimeType}
			}
			device, err := capture.NewFFmpegDevice(cfg.FFmpegCommand, cfg.InputFormat, cfg.InputDevice, supported...)
			if err != nil {
				return err
			}

			ui := newTerminalUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ui.message("recording, press Enter to stop")
			return runCapture(cmd, deps, ui, device, capture.OptionsFromConfig(cfg), waitForStop(cmd.InOrStdin(), duration))
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long")
	cmd.Flags().StringVar(&mimeType, "format", "", "Force a container mime type (audio/webm, audio/ogg, audio/mp4)")

	return cmd
}

// waitForStop returns when a line is read from in, on interrupt, when d
// elapses (if positive) or when the session faults.
func waitForStop(in io.Reader, d time.Duration) stopFunc {
	return func(ctx context.Context, session *capture.Session) error {
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		enter := make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(in).ReadString('\n')
			close(enter)
		}()

		var timer <-chan time.Time
		if d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			timer = t.C
		}

		select {
		case <-enter:
		case <-timer:
		case <-sigCtx.Done():
		case <-waitFailed(sigCtx, session):
		}
		return ctx.Err()
	}
}
