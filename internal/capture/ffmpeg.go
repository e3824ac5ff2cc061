package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/mattn/go-shellwords"
)

type containerSpec struct {
	codec  string
	format string
	extra  []string
}

var ffmpegContainers = map[string]containerSpec{
	"audio/webm;codecs=opus": {codec: "libopus", format: "webm"},
	"audio/webm":             {codec: "libopus", format: "webm"},
	"audio/ogg;codecs=opus":  {codec: "libopus", format: "ogg"},
	"audio/mp4":              {codec: "aac", format: "mp4", extra: []string{"-movflags", "frag_keyframe+empty_moov"}},
	"audio/wav":              {codec: "pcm_s16le", format: "wav"},
}

// FFmpegDevice captures from a system input through an ffmpeg child process
// writing the encoded container to stdout.
type FFmpegDevice struct {
	cmd         []string
	inputFormat string
	inputDevice string
	supported   map[string]bool
}

func NewFFmpegDevice(command, inputFormat, inputDevice string, supported ...string) (*FFmpegDevice, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	if len(supported) == 0 {
		supported = PreferredMimeTypes
	}
	set := make(map[string]bool, len(supported))
	for _, m := range supported {
		if _, ok := ffmpegContainers[m]; ok {
			set[m] = true
		}
	}
	return &FFmpegDevice{cmd: args, inputFormat: inputFormat, inputDevice: inputDevice, supported: set}, nil
}

func (d *FFmpegDevice) Supports(mimeType string) bool { return d.supported[mimeType] }

func (d *FFmpegDevice) DefaultMimeType() string { return "audio/webm" }

func (d *FFmpegDevice) args(c Constraints, mimeType string) []string {
	ctr, ok := ffmpegContainers[mimeType]
	if !ok {
		ctr = ffmpegContainers["audio/webm"]
	}
	args := append([]string{}, d.cmd[1:]...)
	args = append(args, "-hide_banner", "-loglevel", "error", "-nostats")
	if d.inputFormat != "" {
		args = append(args, "-f", d.inputFormat)
	}
	args = append(args, "-i", d.inputDevice, "-vn")
	if c.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(c.Channels))
	}
	if c.SampleRate > 0 {
		sampleRate := c.SampleRate
		if ctr.codec == "libopus" {
			// Opus only encodes at 48k and its divisors.
			sampleRate = 48000
		}
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}
	var filters []string
	if c.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	// ffmpeg has no acoustic echo canceller for a lone input. The closest it
	// offers is cutting low-frequency feedback rumble below 80 Hz.
	if c.EchoCancellation {
		filters = append(filters, "highpass=f=80")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}
	args = append(args, "-c:a", ctr.codec)
	if c.BitsPerSecond > 0 && ctr.codec != "pcm_s16le" {
		args = append(args, "-b:a", strconv.Itoa(c.BitsPerSecond))
	}
	args = append(args, ctr.extra...)
	args = append(args, "-f", ctr.format, "pipe:1")
	return args
}

func (d *FFmpegDevice) Open(_ context.Context, c Constraints, mimeType string, interval time.Duration) (Stream, error) {
	cmd := exec.Command(d.cmd[0], d.args(c, mimeType)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fault.Wrap(fault.Capture, "could not open recorder input", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fault.Wrap(fault.Capture, "could not open recorder output", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fault.Wrap(fault.Capture, "could not access the microphone", err)
	}

	return newReaderStream(stdout, interval, streamHooks{
		stop: func() error {
			// ffmpeg finalizes the container when it reads q on stdin.
			_, err := io.WriteString(stdin, "q")
			_ = stdin.Close()
			return err
		},
		finish: func() error {
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("recorder exited: %w: %s", err, strings.TrimSpace(stderr.String()))
			}
			return nil
		},
		kill: func() {
			_ = cmd.Process.Kill()
		},
		grace: 3 * time.Second,
	}), nil
}
