package pipeline

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/voxcall/voxcall/internal/observe"
	"github.com/voxcall/voxcall/pkg/device"
	"github.com/voxcall/voxcall/pkg/wire"
)

const (
	// defaultFrameInterval samples the camera at 4 frames per second. Stills
	// are context for the model, not a video stream; anything faster wastes
	// uplink bandwidth.
	defaultFrameInterval = 250 * time.Millisecond

	// defaultJPEGQuality matches jpeg.Options.Quality on a 1–100 scale.
	defaultJPEGQuality = 80
)

// SamplerOption is a functional option for configuring a VideoSampler.
type SamplerOption func(*VideoSampler)

// WithFrameInterval sets the sampling period. Default: 250 ms (4 fps).
func WithFrameInterval(d time.Duration) SamplerOption {
	return func(v *VideoSampler) {
		if d > 0 {
			v.interval = d
		}
	}
}

// WithJPEGQuality sets the JPEG encoder quality (1–100). Default: 80.
func WithJPEGQuality(q int) SamplerOption {
	return func(v *VideoSampler) {
		if q >= 1 && q <= 100 {
			v.quality = q
		}
	}
}

// WithSamplerLogger sets the logger. Default: slog.Default.
func WithSamplerLogger(log *slog.Logger) SamplerOption {
	return func(v *VideoSampler) { v.log = log }
}

// VideoSampler polls the camera on a fixed cadence, JPEG-compresses each
// still and submits it to the uplink.
//
// The sampler is tolerant by design: a tick that finds the source not ready
// is skipped without error, and a grab or encode failure drops that frame
// and continues. Only context cancellation ends the run.
type VideoSampler struct {
	src      device.VideoSource
	uplink   *Uplink
	metrics  *observe.Metrics
	log      *slog.Logger
	interval time.Duration
	quality  int
}

// NewVideoSampler creates a sampler reading from src and submitting to
// uplink.
func NewVideoSampler(src device.VideoSource, uplink *Uplink, metrics *observe.Metrics, opts ...SamplerOption) *VideoSampler {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	v := &VideoSampler{
		src:      src,
		uplink:   uplink,
		metrics:  metrics,
		log:      slog.Default(),
		interval: defaultFrameInterval,
		quality:  defaultJPEGQuality,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Run samples until ctx ends. Always returns ctx.Err().
func (v *VideoSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v.sampleOnce(ctx)
		}
	}
}

// sampleOnce grabs, compresses and submits one still. Failures drop the
// frame; the next tick tries again.
func (v *VideoSampler) sampleOnce(ctx context.Context) {
	if !v.src.Ready() {
		v.metrics.RecordVideoFrame(ctx, "skipped")
		return
	}

	img, err := v.src.Frame()
	if err != nil {
		v.metrics.RecordVideoFrame(ctx, "dropped")
		v.log.Warn("video frame grab failed", "error", err)
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: v.quality}); err != nil {
		v.metrics.RecordEncodeError(ctx, "video")
		v.log.Warn("video frame encode failed", "error", err)
		return
	}

	if err := v.uplink.SubmitVideo(ctx, wire.EncodeVideoFrame(buf.Bytes())); err != nil {
		// Only fails when ctx ended; the run loop exits on its next select.
		return
	}
}

// Switch swaps the camera facing. The error surface is the device's: a
// missing alternate source reports device.ReasonNotFound and leaves the
// current source active.
func (v *VideoSampler) Switch() error {
	return v.src.Switch()
}
