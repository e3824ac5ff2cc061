package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-mic/internal/config"
	"github.com/loqalabs/loqa-mic/internal/fault"
)

// MsgEmptyRecording is reported when the assembled payload is under the floor.
const MsgEmptyRecording = "Recording too short or empty"

// Observer receives elapsed-time ticks and device faults that occur while
// recording.
type Observer interface {
	OnTick(elapsed string)
	OnError(err error)
}

type Options struct {
	MinDuration     time.Duration
	MinPayloadBytes int
	ChunkInterval   time.Duration
	TickInterval    time.Duration
	Constraints     Constraints
	Now             func() time.Time
	Logger          *slog.Logger
}

func OptionsFromConfig(cfg config.CaptureConfig) Options {
	return Options{
		MinDuration:     time.Duration(cfg.MinDurationMS) * time.Millisecond,
		MinPayloadBytes: cfg.MinPayloadBytes,
		ChunkInterval:   time.Duration(cfg.ChunkIntervalMS) * time.Millisecond,
		TickInterval:    time.Second,
		Constraints: Constraints{
			Channels:         1,
			SampleRate:       cfg.SampleRate,
			EchoCancellation: true,
			NoiseSuppression: true,
			BitsPerSecond:    cfg.BitsPerSecond,
		},
	}
}

// Session is one recording lifecycle driven through the transition table.
type Session struct {
	id       string
	device   Device
	opts     Options
	observer Observer
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	startedAt time.Time
	mimeType  string
	chunks    []AudioChunk
	stream    Stream
	collected chan struct{}
	stopTick  chan struct{}
	err       error
}

func NewSession(device Device, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		device: device,
		opts:   opts,
		logger: logger.With(slog.String("session_id", id)),
		state:  Idle,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the fault that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Observe attaches the collaborator that receives ticks and device faults.
func (s *Session) Observe(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Start acquires the device and begins collecting chunks. It is rejected
// unless the session is idle or terminal.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		s.state, _ = Next(s.state, EventReset)
	}
	next, err := Next(s.state, EventStart)
	if err != nil {
		return fault.New(fault.Capture, err.Error())
	}

	mimeType := Negotiate(s.device)
	stream, err := s.device.Open(ctx, s.opts.Constraints, mimeType, s.opts.ChunkInterval)
	if err != nil {
		s.state = Failed
		s.err = asCaptureFault(err, "could not access the microphone")
		return s.err
	}

	s.state = next
	s.err = nil
	s.mimeType = mimeType
	s.chunks = nil
	s.stream = stream
	s.startedAt = s.opts.Now()
	s.collected = make(chan struct{})
	s.stopTick = make(chan struct{})

	go s.collect(stream, mimeType, s.collected)
	go s.tick(s.startedAt, s.stopTick)

	s.logger.Info("recording started", slog.String("mime_type", mimeType))
	return nil
}

func (s *Session) collect(stream Stream, mimeType string, done chan struct{}) {
	defer close(done)
	for data := range stream.Chunks() {
		if len(data) == 0 {
			continue
		}
		s.mu.Lock()
		if s.stream == stream {
			s.chunks = append(s.chunks, AudioChunk{Data: data, MimeType: mimeType, At: s.opts.Now()})
		}
		s.mu.Unlock()
	}

	err := stream.Err()
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.stream != stream || s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	s.err = fault.Wrap(fault.Capture, "recording device failed", err)
	s.chunks = nil
	close(s.stopTick)
	observer := s.observer
	failure := s.err
	s.mu.Unlock()

	_ = stream.Close()
	s.logger.Warn("recording aborted", slog.String("error", err.Error()))
	if observer != nil {
		observer.OnError(failure)
	}
}

func (s *Session) tick(startedAt time.Time, stop chan struct{}) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			observer := s.observer
			s.mu.Unlock()
			if observer != nil {
				observer.OnTick(Elapsed(s.opts.Now().Sub(startedAt)))
			}
		}
	}
}

// Stop ends recording and returns the assembled payload. Sessions shorter than
// MinDuration or payloads under MinPayloadBytes fail with a Validation fault
// and nothing is returned for transport.
func (s *Session) Stop(ctx context.Context) (AudioPayload, error) {
	s.mu.Lock()
	next, err := Next(s.state, EventStop)
	if err != nil {
		s.mu.Unlock()
		return AudioPayload{}, fault.New(fault.Capture, err.Error())
	}
	s.state = next
	stream, collected := s.stream, s.collected
	elapsed := s.opts.Now().Sub(s.startedAt)
	close(s.stopTick)
	s.mu.Unlock()

	if elapsed < s.opts.MinDuration {
		_ = stream.Close()
		<-collected
		return AudioPayload{}, s.fail(fault.New(fault.Validation, minDurationMessage(s.opts.MinDuration)))
	}

	if err := stream.Stop(); err != nil {
		_ = stream.Close()
		<-collected
		return AudioPayload{}, s.fail(fault.Wrap(fault.Capture, "could not stop the recorder", err))
	}
	select {
	case <-collected:
	case <-ctx.Done():
		_ = stream.Close()
		<-collected
		return AudioPayload{}, s.fail(fault.Wrap(fault.Capture, "recorder did not finish", ctx.Err()))
	}
	_ = stream.Close()
	if err := stream.Err(); err != nil {
		return AudioPayload{}, s.fail(fault.Wrap(fault.Capture, "recording device failed", err))
	}

	s.mu.Lock()
	if s.state != Stopping {
		err := s.err
		s.mu.Unlock()
		return AudioPayload{}, err
	}
	data := assemble(s.chunks)
	mimeType := s.mimeType
	s.mu.Unlock()

	if len(data) < s.opts.MinPayloadBytes || len(data) == 0 {
		return AudioPayload{}, s.fail(fault.New(fault.Validation, MsgEmptyRecording))
	}

	s.mu.Lock()
	s.state, _ = Next(s.state, EventAssembled)
	s.mu.Unlock()

	payload := AudioPayload{
		Data:     data,
		MimeType: mimeType,
		FileName: FileName(mimeType, s.opts.Now()),
		Duration: elapsed,
	}
	s.logger.Info("recording assembled",
		slog.Int("bytes", payload.Size()),
		slog.Duration("duration", elapsed))
	return payload, nil
}

// Respond marks the transport round trip as complete.
func (s *Session) Respond() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Next(s.state, EventRespond)
	if err != nil {
		return fault.New(fault.Capture, err.Error())
	}
	s.state = next
	return nil
}

// Fail moves a non-terminal session to Failed, releasing the device if it is
// still held.
func (s *Session) Fail(err error) error {
	return s.fail(err)
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	if _, terr := Next(s.state, EventFail); terr != nil {
		s.mu.Unlock()
		return err
	}
	wasRecording := s.state == Recording
	stream := s.stream
	s.state = Failed
	s.err = err
	s.chunks = nil
	if wasRecording {
		close(s.stopTick)
	}
	s.mu.Unlock()

	if wasRecording && stream != nil {
		_ = stream.Close()
	}
	s.logger.Info("recording failed", slog.String("error", err.Error()))
	return err
}

// Abort releases the device without producing a payload.
func (s *Session) Abort() {
	s.mu.Lock()
	active := s.state == Recording || s.state == Stopping
	s.mu.Unlock()
	if active {
		_ = s.fail(fault.New(fault.Capture, "recording aborted"))
	}
}

func minDurationMessage(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs <= 1 {
		return "Please record for at least 1 second."
	}
	return fmt.Sprintf("Please record for at least %d seconds.", secs)
}

func asCaptureFault(err error, message string) error {
	if _, ok := fault.As(err); ok {
		return err
	}
	return fault.Wrap(fault.Capture, message, err)
}
