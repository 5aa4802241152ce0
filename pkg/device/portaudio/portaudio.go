//go:build portaudio
// +build portaudio

// Package portaudio implements [device.Platform] on top of the PortAudio
// bindings. It provides the default microphone as a [device.CaptureDevice]
// and the default output device as a [device.RenderDevice].
//
// PortAudio has no camera support, so OpenVideo always fails with
// [device.ReasonNotFound]; run audio-only calls with this platform.
//
// Building requires the PortAudio C library and the portaudio build tag:
//
//	go build -tags portaudio ./...
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/voxcall/voxcall/pkg/device"
)

var initOnce sync.Once

// Platform opens PortAudio-backed audio devices.
type Platform struct {
	log *slog.Logger
}

var _ device.Platform = (*Platform)(nil)

// Option configures a [Platform].
type Option func(*Platform)

// WithLogger sets the logger used for stream lifecycle messages.
func WithLogger(log *slog.Logger) Option {
	return func(p *Platform) { p.log = log }
}

// New creates a PortAudio platform. The library itself is initialized lazily
// on the first open.
func New(opts ...Option) *Platform {
	p := &Platform{log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

func initialize() error {
	var err error
	initOnce.Do(func() {
		err = portaudio.Initialize()
	})
	return err
}

// OpenCapture implements [device.Platform]. It opens the default input device
// and starts a reader goroutine delivering fixed-size float32 frames.
func (p *Platform) OpenCapture(_ context.Context, cfg device.CaptureConfig) (device.CaptureDevice, error) {
	if err := initialize(); err != nil {
		return nil, &device.Error{Reason: device.ReasonNotFound, Op: "open capture", Err: err}
	}

	buf := make([]float32, cfg.FrameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSamples, buf)
	if err != nil {
		return nil, &device.Error{Reason: device.ReasonUnsatisfiable, Op: "open capture", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &device.Error{Reason: device.ReasonBusy, Op: "open capture", Err: err}
	}

	c := &captureDevice{
		stream: stream,
		buf:    buf,
		frames: make(chan []float32, 8),
		done:   make(chan struct{}),
		log:    p.log,
	}
	go c.readLoop()

	p.log.Info("capture device opened", "sample_rate", cfg.SampleRate, "frame_samples", cfg.FrameSamples)
	return c, nil
}

// OpenRender implements [device.Platform]. It opens the default output device
// and starts the playback clock.
func (p *Platform) OpenRender(_ context.Context, sampleRate int) (device.RenderDevice, error) {
	if err := initialize(); err != nil {
		return nil, &device.Error{Reason: device.ReasonNotFound, Op: "open render", Err: err}
	}

	const framesPerBuffer = 1024
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, &buf)
	if err != nil {
		return nil, &device.Error{Reason: device.ReasonUnsatisfiable, Op: "open render", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &device.Error{Reason: device.ReasonBusy, Op: "open render", Err: err}
	}

	r := &renderDevice{
		stream:     stream,
		buf:        buf,
		sampleRate: sampleRate,
		opened:     time.Now(),
		log:        p.log,
	}
	p.log.Info("render device opened", "sample_rate", sampleRate)
	return r, nil
}

// OpenVideo implements [device.Platform]. PortAudio has no camera backend.
func (p *Platform) OpenVideo(_ context.Context, _ device.CaptureConfig) (device.VideoSource, error) {
	return nil, &device.Error{
		Reason: device.ReasonNotFound,
		Op:     "open video",
		Err:    fmt.Errorf("portaudio platform has no camera support"),
	}
}

// ─── CaptureDevice ────────────────────────────────────────────────────────────

type captureDevice struct {
	stream *portaudio.Stream
	buf    []float32
	frames chan []float32
	log    *slog.Logger

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ device.CaptureDevice = (*captureDevice)(nil)

func (c *captureDevice) Frames() <-chan []float32 { return c.frames }

func (c *captureDevice) readLoop() {
	defer close(c.frames)
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("capture read failed", "err", err)
			}
			return
		}
		frame := make([]float32, len(c.buf))
		copy(frame, c.buf)
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			// Consumer is behind. Dropping one frame beats blocking the
			// hardware callback.
		}
	}
}

func (c *captureDevice) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.stream.Stop(); err != nil {
			c.closeErr = fmt.Errorf("portaudio: stop capture: %w", err)
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = fmt.Errorf("portaudio: close capture: %w", err)
		}
	})
	return c.closeErr
}

// ─── RenderDevice ─────────────────────────────────────────────────────────────

type renderDevice struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	opened     time.Time
	log        *slog.Logger

	// writeMu serializes writes to the output stream across playbacks.
	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

var _ device.RenderDevice = (*renderDevice)(nil)

func (r *renderDevice) Now() time.Duration {
	return time.Since(r.opened)
}

// PlayAt schedules pcm for rendering at the given clock position. Rendering
// happens on a dedicated goroutine that sleeps until the start time and then
// streams the buffer in framesPerBuffer pieces, checking for Stop between
// pieces.
func (r *renderDevice) PlayAt(pcm []byte, sampleRate int, at time.Duration) (device.Playback, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, &device.Error{Reason: device.ReasonNotFound, Op: "play", Err: fmt.Errorf("render device closed")}
	}
	if sampleRate != r.sampleRate {
		return nil, &device.Error{
			Reason: device.ReasonUnsatisfiable,
			Op:     "play",
			Err:    fmt.Errorf("buffer rate %d does not match device rate %d", sampleRate, r.sampleRate),
		}
	}

	pb := &playback{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go r.render(pb, pcm, at)
	return pb, nil
}

func (r *renderDevice) render(pb *playback, pcm []byte, at time.Duration) {
	defer pb.finish()

	if wait := at - r.Now(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-pb.stop:
			return
		}
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
	}

	for off := 0; off < len(samples); off += len(r.buf) {
		select {
		case <-pb.stop:
			return
		default:
		}
		n := copy(r.buf, samples[off:])
		for i := n; i < len(r.buf); i++ {
			r.buf[i] = 0
		}
		r.writeMu.Lock()
		err := r.stream.Write()
		r.writeMu.Unlock()
		if err != nil {
			r.log.Warn("render write failed", "err", err)
			return
		}
	}
}

func (r *renderDevice) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		if err := r.stream.Stop(); err != nil {
			r.closeErr = fmt.Errorf("portaudio: stop render: %w", err)
		}
		if err := r.stream.Close(); err != nil && r.closeErr == nil {
			r.closeErr = fmt.Errorf("portaudio: close render: %w", err)
		}
	})
	return r.closeErr
}

type playback struct {
	done chan struct{}
	stop chan struct{}
	once sync.Once
}

var _ device.Playback = (*playback)(nil)

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *playback) finish() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
