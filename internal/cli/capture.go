package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mic/internal/capture"
)

// stopFunc blocks until the recording should end.
type stopFunc func(ctx context.Context, session *capture.Session) error

// runCapture drives one recording through the controller: start, wait for the
// stop trigger, then stop and upload. Outcomes are rendered by ui.
func runCapture(cmd *cobra.Command, deps *Dependencies, ui *terminalUI, device capture.Device, opts capture.Options, wait stopFunc) error {
	ctx := cmd.Context()
	opts.Logger = deps.Logger

	registry := capture.NewRegistry()
	session, err := registry.Create(hostID, device, opts)
	if err != nil {
		return err
	}
	defer registry.Destroy(hostID)

	dialer, release, err := deps.dialer(ctx)
	if err != nil {
		return err
	}
	defer release()

	ctrl := capture.NewController(session, dialer, ui, deps.responseTimeout(), deps.Logger)
	if err := ctrl.StartCapture(ctx); err != nil {
		return ErrReported
	}

	if err := wait(ctx, session); err != nil {
		return err
	}
	if session.State() == capture.Failed {
		return ErrReported
	}

	ui.message("uploading…")
	if _, err := ctrl.StopCapture(ctx); err != nil {
		return ErrReported
	}
	return nil
}

// waitFailed closes when the session leaves Recording on its own, which only
// happens when the device faults.
func waitFailed(ctx context.Context, session *capture.Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if session.State() != capture.Recording {
					return
				}
			}
		}
	}()
	return done
}
