//go:build !portaudio
// +build !portaudio

// Package portaudio implements [device.Platform] on top of the PortAudio
// bindings. This stub is compiled when the portaudio build tag is absent;
// every open fails with a clear rebuild hint.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxcall/voxcall/pkg/device"
)

// Platform stub when PortAudio is not available.
type Platform struct{}

var _ device.Platform = (*Platform)(nil)

// Option configures a [Platform].
type Option func(*Platform)

// WithLogger is a no-op in the stub.
func WithLogger(_ *slog.Logger) Option {
	return func(_ *Platform) {}
}

// New creates the stub platform.
func New(opts ...Option) *Platform {
	return &Platform{}
}

func unavailable(op string) error {
	return &device.Error{
		Reason: device.ReasonNotFound,
		Op:     op,
		Err:    fmt.Errorf("portaudio not available: rebuild with -tags portaudio"),
	}
}

// OpenCapture implements [device.Platform].
func (p *Platform) OpenCapture(_ context.Context, _ device.CaptureConfig) (device.CaptureDevice, error) {
	return nil, unavailable("open capture")
}

// OpenRender implements [device.Platform].
func (p *Platform) OpenRender(_ context.Context, _ int) (device.RenderDevice, error) {
	return nil, unavailable("open render")
}

// OpenVideo implements [device.Platform].
func (p *Platform) OpenVideo(_ context.Context, _ device.CaptureConfig) (device.VideoSource, error) {
	return nil, unavailable("open video")
}
