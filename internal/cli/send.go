package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-mic/internal/capture"
	"github.com/loqalabs/loqa-mic/internal/channel"
)

func NewSendCmd(deps *Dependencies) *cobra.Command {
	var mimeType string

	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Upload an existing recording over the capture channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading recording: %w", err)
			}
			if mimeType == "" {
				mimeType = mimeFromName(args[0])
			}

			ui := newTerminalUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
			req := channel.UploadRequest{
				Payload:              data,
				DeclaredSize:         len(data),
				DeclaredOriginalSize: len(data),
				MimeType:             mimeType,
				FileName:             filepath.Base(args[0]),
			}
			res, err := upload(cmd.Context(), deps, req)
			if err != nil {
				ui.OnError(err)
				return ErrReported
			}
			ui.OnResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&mimeType, "mime-type", "", "Mime type of the recording (guessed from the extension when empty)")

	return cmd
}

func upload(ctx context.Context, deps *Dependencies, req channel.UploadRequest) (capture.Result, error) {
	dialer, release, err := deps.dialer(ctx)
	if err != nil {
		return capture.Result{}, err
	}
	defer release()

	if timeout := deps.responseTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := dialer.Dial(ctx)
	if err != nil {
		return capture.Result{}, err
	}
	client := channel.NewClient(conn)
	defer client.Close()

	res, err := client.Upload(ctx, req)
	if err != nil {
		return capture.Result{}, err
	}
	return capture.Result{
		Transcription:    res.Transcription,
		Analysis:         res.GeneratedAnalysis,
		OriginalFileName: res.OriginalFileName,
	}, nil
}

func mimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return "audio/webm"
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	case ".mp4", ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
