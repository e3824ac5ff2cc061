package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mic/internal/capture"
)

func NewSelfTestCmd(deps *Dependencies) *cobra.Command {
	tone := &capture.ToneDevice{}

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Record a synthetic tone and run it through the service",
		Long:  "Replace the microphone with a generated sine tone and perform a full record, upload and transcribe round trip.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := capture.OptionsFromConfig(deps.Config.Capture)
			ui := newTerminalUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ui.message("recording a %s tone at %.0f Hz", tone.Length, tone.Frequency)
			return runCapture(cmd, deps, ui, tone, opts, waitForTone(tone, opts))
		},
	}

	cmd.Flags().Float64Var(&tone.Frequency, "frequency", 440, "Tone frequency in Hz")
	cmd.Flags().DurationVar(&tone.Length, "length", 2*time.Second, "Tone length")
	cmd.Flags().Float64Var(&tone.Pace, "pace", 1, "Delivery speed relative to real time")

	return cmd
}

// waitForTone holds the recording open until the tone has been delivered and
// the minimum duration has passed.
func waitForTone(tone *capture.ToneDevice, opts capture.Options) stopFunc {
	return func(ctx context.Context, session *capture.Session) error {
		pace := tone.Pace
		if pace <= 0 {
			pace = 1
		}
		d := time.Duration(float64(tone.Length) / pace)
		if d < opts.MinDuration {
			d = opts.MinDuration
		}
		d += opts.ChunkInterval

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-waitFailed(ctx, session):
		}
		return nil
	}
}
