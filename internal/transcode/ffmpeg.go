// Package transcode normalizes uploads to the canonical encoding the
// transcription service accepts.
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
	"github.com/mattn/go-shellwords"
)

// Transcoder converts input into the canonical encoding at output.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Shape is the audio stream layout reported by ffprobe.
type Shape struct {
	Codec      string
	Format     string
	Channels   int
	SampleRate int
	BitRate    int
}

// FFmpeg runs the external ffmpeg and ffprobe binaries.
type FFmpeg struct {
	cmd   []string
	probe []string
	cfg   config.TranscodeConfig
}

func NewFFmpeg(cfg config.TranscodeConfig) (*FFmpeg, error) {
	cmd, err := parseCommand(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcode command: %w", err)
	}
	probeCommand := cfg.ProbeCommand
	if probeCommand == "" {
		probeCommand = "ffprobe"
	}
	probe, err := parseCommand(probeCommand)
	if err != nil {
		return nil, fmt.Errorf("parse probe command: %w", err)
	}
	return &FFmpeg{cmd: cmd, probe: probe, cfg: cfg}, nil
}

func parseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return args, nil
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.cmd[0])
	return err == nil
}

func (f *FFmpeg) args(input, output string) []string {
	args := append([]string{}, f.cmd[1:]...)
	return append(args,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-y",
		"-i", input,
		"-vn",
		"-acodec", f.cfg.Codec,
		"-b:a", strconv.Itoa(f.cfg.BitrateKbps)+"k",
		"-ac", strconv.Itoa(f.cfg.Channels),
		"-ar", strconv.Itoa(f.cfg.SampleRate),
		"-f", f.cfg.Format,
		output,
	)
}

// Transcode blocks until ffmpeg exits. A non-zero exit is a Transcode fault
// carrying ffmpeg's stderr as details.
func (f *FFmpeg) Transcode(ctx context.Context, input, output string) error {
	command := exec.CommandContext(ctx, f.cmd[0], f.args(input, output)...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		fe := fault.Wrap(fault.Transcode, "audio conversion failed", err)
		fe.Details = strings.TrimSpace(stderr.String())
		return fe
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reports the first audio stream's shape.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Shape, error) {
	args := append([]string{}, f.probe[1:]...)
	args = append(args, "-v", "error", "-print_format", "json", "-show_streams", "-show_format", path)
	command := exec.CommandContext(ctx, f.probe[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Shape{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Shape{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		shape := Shape{
			Codec:    s.CodecName,
			Format:   out.Format.FormatName,
			Channels: s.Channels,
		}
		shape.SampleRate, _ = strconv.Atoi(s.SampleRate)
		shape.BitRate, _ = strconv.Atoi(s.BitRate)
		if shape.BitRate == 0 {
			shape.BitRate, _ = strconv.Atoi(out.Format.BitRate)
		}
		return shape, nil
	}
	return Shape{}, fmt.Errorf("no audio stream in %s", path)
}
