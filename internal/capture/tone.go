package capture

import (
	"context"
	"io"
	"math"
	"sync"
	"time"
)

// ToneDevice synthesizes a fixed-length sine clip as WAV and replays it at
// real-time pace. It stands in for a microphone in self-tests.
type ToneDevice struct {
	Frequency float64
	Length    time.Duration
	// Pace scales delivery speed; 0 or 1 is real time.
	Pace float64
}

func (d *ToneDevice) Supports(mimeType string) bool { return mimeType == "audio/wav" }

func (d *ToneDevice) DefaultMimeType() string { return "audio/wav" }

func (d *ToneDevice) Open(_ context.Context, c Constraints, _ string, interval time.Duration) (Stream, error) {
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	freq := d.Frequency
	if freq <= 0 {
		freq = 440
	}
	length := d.Length
	if length <= 0 {
		length = 3 * time.Second
	}

	n := int(length.Seconds() * float64(sampleRate))
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * 0.3 * math.MaxInt16)
	}
	data, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		return nil, err
	}

	pace := d.Pace
	if pace <= 0 {
		pace = 1
	}
	r := &pacedReader{
		data:  data,
		rate:  float64(len(data)) / length.Seconds() * pace,
		start: time.Now(),
		stop:  make(chan struct{}),
	}
	return newReaderStream(r, interval, streamHooks{
		stop: func() error { r.release(); return nil },
		kill: r.release,
	}), nil
}

// pacedReader yields data no faster than rate bytes per second until released.
type pacedReader struct {
	data  []byte
	pos   int
	rate  float64
	start time.Time
	stop  chan struct{}
	once  sync.Once
}

func (r *pacedReader) release() {
	r.once.Do(func() { close(r.stop) })
}

func (r *pacedReader) Read(p []byte) (int, error) {
	for {
		if r.pos >= len(r.data) {
			return 0, io.EOF
		}
		limit := len(r.data)
		select {
		case <-r.stop:
		default:
			allowed := int(time.Since(r.start).Seconds() * r.rate)
			if allowed < limit {
				limit = allowed
			}
		}
		if limit > r.pos {
			n := copy(p, r.data[r.pos:limit])
			r.pos += n
			return n, nil
		}
		select {
		case <-r.stop:
		case <-time.After(20 * time.Millisecond):
		}
	}
}
