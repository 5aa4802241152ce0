// Package mock provides in-memory mock implementations of the
// [device.Platform], [device.CaptureDevice], [device.RenderDevice] and
// [device.VideoSource] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values. The render
// mock carries a manually advanced clock so scheduling behaviour can be
// tested deterministically.
//
// Typical usage:
//
//	render := mock.NewRenderDevice()
//	render.SetNow(500 * time.Millisecond)
//	handle, _ := render.PlayAt(pcm, 24000, 0)
//	render.FinishAll() // completes every pending playback
package mock

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/voxcall/voxcall/pkg/device"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice is a mock implementation of [device.CaptureDevice]. Feed
// frames to tests via [CaptureDevice.EmitFrame]; Close closes the channel.
type CaptureDevice struct {
	mu sync.Mutex

	frames chan []float32
	closed bool

	// CloseError is returned by Close.
	CloseError error

	// OnClose, when set, is called by Close. Lets a test record release
	// ordering across several mocks.
	OnClose func()

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewCaptureDevice creates a mock capture device with a buffered frame
// channel.
func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{frames: make(chan []float32, 64)}
}

// Frames implements [device.CaptureDevice].
func (c *CaptureDevice) Frames() <-chan []float32 { return c.frames }

// Close implements [device.CaptureDevice]. Closes the frame channel once.
func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	c.CallCountClose++
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	hook := c.OnClose
	err := c.CloseError
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// CloseCalls returns how many times Close was called. Safe to call from any
// goroutine.
func (c *CaptureDevice) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountClose
}

// EmitFrame delivers one capture frame to the consumer. It is a no-op after
// Close.
func (c *CaptureDevice) EmitFrame(frame []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames <- frame
}

// ─── RenderDevice ─────────────────────────────────────────────────────────────

// PlayAtCall records the arguments of a single [RenderDevice.PlayAt]
// invocation.
type PlayAtCall struct {
	// PCM is the buffer passed to PlayAt.
	PCM []byte
	// SampleRate is the sampleRate argument.
	SampleRate int
	// At is the requested start position on the device clock.
	At time.Duration
	// Handle is the playback handle that was returned.
	Handle *Playback
}

// Playback is the handle returned by the mock render device. Tests complete
// it with [Playback.Finish] or cancel it via Stop.
type Playback struct {
	mu      sync.Mutex
	done    chan struct{}
	stopped bool
	ended   bool

	// OnStop, when set, is called when Stop cancels the playback. Not
	// called for a natural Finish.
	OnStop func()
}

// Done implements [device.Playback].
func (p *Playback) Done() <-chan struct{} { return p.done }

// Stop implements [device.Playback]. Marks the playback stopped and closes
// Done.
func (p *Playback) Stop() {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return
	}
	p.ended = true
	p.stopped = true
	close(p.done)
	hook := p.OnStop
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Finish completes the playback as if it rendered to the end.
func (p *Playback) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	p.ended = true
	close(p.done)
}

// Stopped reports whether the playback was cancelled via Stop (as opposed to
// finishing naturally).
func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// RenderDevice is a mock implementation of [device.RenderDevice] with a
// manually advanced clock.
type RenderDevice struct {
	mu sync.Mutex

	now time.Duration

	// PlayAtError is returned by PlayAt when non-nil.
	PlayAtError error

	// CloseError is returned by Close.
	CloseError error

	// OnClose, when set, is called by Close.
	OnClose func()

	// PlayAtCalls records all PlayAt invocations in order.
	PlayAtCalls []PlayAtCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewRenderDevice creates a mock render device with its clock at zero.
func NewRenderDevice() *RenderDevice {
	return &RenderDevice{}
}

// Now implements [device.RenderDevice].
func (r *RenderDevice) Now() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// SetNow moves the mock clock to the given position.
func (r *RenderDevice) SetNow(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = d
}

// PlayAt implements [device.RenderDevice]. Records the call and returns a
// fresh [*Playback] handle that the test completes explicitly.
func (r *RenderDevice) PlayAt(pcm []byte, sampleRate int, at time.Duration) (device.Playback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PlayAtError != nil {
		return nil, r.PlayAtError
	}
	h := &Playback{done: make(chan struct{})}
	r.PlayAtCalls = append(r.PlayAtCalls, PlayAtCall{
		PCM:        pcm,
		SampleRate: sampleRate,
		At:         at,
		Handle:     h,
	})
	return h, nil
}

// Close implements [device.RenderDevice].
func (r *RenderDevice) Close() error {
	r.mu.Lock()
	r.CallCountClose++
	hook := r.OnClose
	err := r.CloseError
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// Calls returns a copy of the PlayAt invocations recorded so far. Safe to
// call while playback is being scheduled.
func (r *RenderDevice) Calls() []PlayAtCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PlayAtCall, len(r.PlayAtCalls))
	copy(out, r.PlayAtCalls)
	return out
}

// CloseCalls returns how many times Close was called.
func (r *RenderDevice) CloseCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CallCountClose
}

// FinishAll completes every playback handed out so far that is still pending.
func (r *RenderDevice) FinishAll() {
	r.mu.Lock()
	calls := make([]PlayAtCall, len(r.PlayAtCalls))
	copy(calls, r.PlayAtCalls)
	r.mu.Unlock()
	for _, c := range calls {
		c.Handle.Finish()
	}
}

// ─── VideoSource ──────────────────────────────────────────────────────────────

// VideoSource is a mock implementation of [device.VideoSource].
type VideoSource struct {
	mu sync.Mutex

	// ReadyResult is returned by Ready.
	ReadyResult bool

	// FrameResult is returned by Frame. Defaults to a small gray image when
	// nil and FrameError is nil.
	FrameResult image.Image

	// FrameError is returned by Frame when non-nil.
	FrameError error

	// SwitchError is returned by Switch.
	SwitchError error

	// OnClose, when set, is called by Close.
	OnClose func()

	// CallCountFrame records how many times Frame was called.
	CallCountFrame int

	// CallCountSwitch records how many times Switch was called.
	CallCountSwitch int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Ready implements [device.VideoSource].
func (v *VideoSource) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ReadyResult
}

// SetReady controls the Ready result.
func (v *VideoSource) SetReady(ready bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ReadyResult = ready
}

// Frame implements [device.VideoSource].
func (v *VideoSource) Frame() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountFrame++
	if v.FrameError != nil {
		return nil, v.FrameError
	}
	if v.FrameResult == nil {
		return image.NewGray(image.Rect(0, 0, 4, 4)), nil
	}
	return v.FrameResult, nil
}

// FrameCalls returns how many times Frame was called. Safe to call while the
// source is being polled.
func (v *VideoSource) FrameCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.CallCountFrame
}

// Switch implements [device.VideoSource].
func (v *VideoSource) Switch() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountSwitch++
	return v.SwitchError
}

// Close implements [device.VideoSource].
func (v *VideoSource) Close() error {
	v.mu.Lock()
	v.CallCountClose++
	hook := v.OnClose
	v.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// CloseCalls returns how many times Close was called.
func (v *VideoSource) CloseCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.CallCountClose
}

// SwitchCalls returns how many times Switch was called.
func (v *VideoSource) SwitchCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.CallCountSwitch
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [device.Platform].
type Platform struct {
	mu sync.Mutex

	// CaptureResult is returned by OpenCapture. When nil and CaptureError
	// is nil, a fresh [*CaptureDevice] is created per call.
	CaptureResult device.CaptureDevice

	// CaptureError is returned by OpenCapture when non-nil.
	CaptureError error

	// RenderResult is returned by OpenRender. When nil and RenderError is
	// nil, a fresh [*RenderDevice] is created per call.
	RenderResult device.RenderDevice

	// RenderError is returned by OpenRender when non-nil.
	RenderError error

	// VideoResult is returned by OpenVideo.
	VideoResult device.VideoSource

	// VideoError is returned by OpenVideo when non-nil.
	VideoError error

	// OpenCaptureCalls records the configs passed to OpenCapture.
	OpenCaptureCalls []device.CaptureConfig

	// OpenRenderCalls records the sample rates passed to OpenRender.
	OpenRenderCalls []int

	// OpenVideoCalls records the configs passed to OpenVideo.
	OpenVideoCalls []device.CaptureConfig
}

// OpenCapture implements [device.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg device.CaptureConfig) (device.CaptureDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCaptureCalls = append(p.OpenCaptureCalls, cfg)
	if p.CaptureError != nil {
		return nil, p.CaptureError
	}
	if p.CaptureResult == nil {
		return NewCaptureDevice(), nil
	}
	return p.CaptureResult, nil
}

// OpenRender implements [device.Platform].
func (p *Platform) OpenRender(_ context.Context, sampleRate int) (device.RenderDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenRenderCalls = append(p.OpenRenderCalls, sampleRate)
	if p.RenderError != nil {
		return nil, p.RenderError
	}
	if p.RenderResult == nil {
		return NewRenderDevice(), nil
	}
	return p.RenderResult, nil
}

// OpenVideo implements [device.Platform].
func (p *Platform) OpenVideo(_ context.Context, cfg device.CaptureConfig) (device.VideoSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenVideoCalls = append(p.OpenVideoCalls, cfg)
	if p.VideoError != nil {
		return nil, p.VideoError
	}
	if p.VideoResult == nil {
		return &VideoSource{ReadyResult: true}, nil
	}
	return p.VideoResult, nil
}
