// Package device defines the interfaces and error taxonomy for the local
// media hardware that a voice call borrows: the capture device (microphone
// and optional camera) and the render device (speaker with a schedulable
// clock).
//
// The three primary abstractions are:
//
//   - [CaptureDevice] — a live microphone signal delivering fixed-size
//     float32 frames.
//   - [RenderDevice] — a playback clock plus scheduled, cancellable playback
//     of decoded PCM buffers.
//   - [VideoSource] — an optional camera that can be polled for still frames
//     and whose facing can be swapped live.
//
// Implementations are provided by adapter packages (e.g. device/portaudio).
// This package lives under pkg/ because external adapters are expected to
// implement these interfaces.
package device

import (
	"context"
	"image"
	"time"
)

// CaptureConfig describes the constraints requested when opening devices.
type CaptureConfig struct {
	// SampleRate is the requested capture rate in Hz (16000 for the wire
	// format the remote endpoint expects).
	SampleRate int

	// FrameSamples is the fixed frame length in samples delivered on
	// [CaptureDevice.Frames].
	FrameSamples int

	// Video requests a camera alongside the microphone. When false,
	// [Platform.OpenVideo] is never called.
	Video bool

	// VideoWidth and VideoHeight are the requested camera resolution.
	// The source may deliver its native resolution instead.
	VideoWidth  int
	VideoHeight int
}

// CaptureDevice is a live microphone signal. Frames are fixed-length
// sequences of normalized samples in [-1, 1], produced at the configured
// rate until Close is called.
type CaptureDevice interface {
	// Frames returns the channel on which capture frames arrive. Each slice
	// holds exactly the configured number of samples and is owned by the
	// receiver; the device never reuses a delivered slice. The channel is
	// closed when the device is closed or fails.
	Frames() <-chan []float32

	// Close stops capture, releases the underlying hardware and closes the
	// Frames channel. Safe to call more than once.
	Close() error
}

// Playback is a handle to one scheduled render of a PCM buffer.
type Playback interface {
	// Done returns a channel that is closed when the buffer finishes
	// rendering naturally or is stopped.
	Done() <-chan struct{}

	// Stop cancels rendering immediately — a hard cut, no fade. Stopping a
	// finished or already-stopped playback is a no-op.
	Stop()
}

// RenderDevice is a speaker with its own monotonic clock. Playback is
// scheduled against that clock so consecutive buffers can be rendered
// back-to-back without gaps.
type RenderDevice interface {
	// Now returns the current position of the device clock, measured from
	// the moment the device was opened.
	Now() time.Duration

	// PlayAt schedules pcm (s16le mono at sampleRate) to begin rendering at
	// the given clock position. Positions in the past start immediately.
	// The returned handle outlives the buffer until completion or Stop.
	PlayAt(pcm []byte, sampleRate int, at time.Duration) (Playback, error)

	// Close stops all pending playback and releases the device. Safe to
	// call more than once.
	Close() error
}

// VideoSource is a live camera. It is polled rather than streamed: the video
// sampler grabs the current frame on its own cadence.
type VideoSource interface {
	// Ready reports whether the source is currently delivering frames. A
	// source that is not yet playing, has ended, or is mid-swap returns
	// false; callers skip their tick without error.
	Ready() bool

	// Frame captures the current frame at the source's native resolution.
	Frame() (image.Image, error)

	// Switch swaps to the alternate facing (front/back) without disturbing
	// any audio capture. Returns a [*Error] with [ReasonNotFound] when no
	// alternate source exists; the active source is left intact.
	Switch() error

	// Close releases the camera. Safe to call more than once.
	Close() error
}

// Platform opens the local media devices. Implementations wrap an audio/video
// backend (PortAudio, a test double, …).
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenCapture acquires the default microphone with the given
	// constraints. Fails with a [*Error] describing the denied / not-found /
	// busy / unsatisfiable sub-case.
	OpenCapture(ctx context.Context, cfg CaptureConfig) (CaptureDevice, error)

	// OpenRender acquires the default output device at the given sample
	// rate.
	OpenRender(ctx context.Context, sampleRate int) (RenderDevice, error)

	// OpenVideo acquires a camera. Only called when the session requests
	// the video capability.
	OpenVideo(ctx context.Context, cfg CaptureConfig) (VideoSource, error)
}
