package capture

import (
	"context"
	"io"
	"sync"
	"time"
)

// Constraints are the fixed acquisition settings requested from a device.
type Constraints struct {
	Channels         int
	SampleRate       int
	// EchoCancellation is best effort: devices without a canceller apply
	// their nearest filter.
	EchoCancellation bool
	NoiseSuppression bool
	BitsPerSecond    int
}

// Device acquires audio in an encoded container format.
type Device interface {
	Supports(mimeType string) bool
	DefaultMimeType() string
	Open(ctx context.Context, c Constraints, mimeType string, interval time.Duration) (Stream, error)
}

// Stream delivers encoded bytes on a fixed cadence. After Stop the remaining
// data is flushed and Chunks is closed. Close releases the device and is safe
// to call more than once.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
	Close() error
	Err() error
}

type streamHooks struct {
	stop   func() error
	finish func() error
	kill   func()
	grace  time.Duration
}

// readerStream slices an io.Reader into interval-sized deliveries.
type readerStream struct {
	chunks   chan []byte
	hooks    streamHooks
	interval time.Duration

	mu      sync.Mutex
	buf     []byte
	err     error
	stopped bool

	readDone  chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
}

func newReaderStream(r io.Reader, interval time.Duration, hooks streamHooks) *readerStream {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	s := &readerStream{
		chunks:   make(chan []byte, 64),
		hooks:    hooks,
		interval: interval,
		readDone: make(chan struct{}),
	}
	go s.readLoop(r)
	go s.flushLoop()
	return s
}

func (s *readerStream) Chunks() <-chan []byte { return s.chunks }

func (s *readerStream) readLoop(r io.Reader) {
	defer close(s.readDone)
	block := make([]byte, 32*1024)
	var readErr error
	for {
		n, err := r.Read(block)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, block[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}
	if s.hooks.finish != nil {
		if err := s.hooks.finish(); err != nil && readErr == nil {
			readErr = err
		}
	}
	s.mu.Lock()
	if !s.stopped {
		s.err = readErr
	}
	s.mu.Unlock()
}

func (s *readerStream) flushLoop() {
	defer close(s.chunks)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.readDone:
			s.flush()
			return
		}
	}
}

func (s *readerStream) flush() {
	s.mu.Lock()
	data := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(data) > 0 {
		s.chunks <- data
	}
}

func (s *readerStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		if s.hooks.stop != nil {
			err = s.hooks.stop()
		}
	})
	return err
}

func (s *readerStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stopped := s.stopped
		s.stopped = true
		s.mu.Unlock()

		if stopped && s.hooks.grace > 0 {
			select {
			case <-s.readDone:
			case <-time.After(s.hooks.grace):
			}
		}
		if s.hooks.kill != nil {
			s.hooks.kill()
		}
		<-s.readDone
	})
	return nil
}

func (s *readerStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
