// Package pipeline moves captured media from the local devices to the
// transport session: microphone frames continuously, camera stills on a slow
// timer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxcall/voxcall/internal/observe"
	"github.com/voxcall/voxcall/pkg/transport"
	"github.com/voxcall/voxcall/pkg/wire"
)

// Uplink owns the single send path to the transport session. Audio frames
// are encoded and sent by [Uplink.Run] itself; video stills enter through
// [Uplink.SubmitVideo] and are interleaved by the same goroutine, so chunks
// reach the session in submission order.
type Uplink struct {
	sess    transport.Session
	metrics *observe.Metrics
	log     *slog.Logger
	video   chan wire.MediaChunk
}

// NewUplink creates an Uplink sending on sess. A nil metrics uses the
// package default; a nil log uses slog.Default.
func NewUplink(sess transport.Session, metrics *observe.Metrics, log *slog.Logger) *Uplink {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Uplink{
		sess:    sess,
		metrics: metrics,
		log:     log,
		video:   make(chan wire.MediaChunk, 4),
	}
}

// SubmitVideo hands one encoded video still to the sender. Blocks until the
// sender accepts it or ctx ends.
func (u *Uplink) SubmitVideo(ctx context.Context, chunk wire.MediaChunk) error {
	select {
	case u.video <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run encodes and sends capture frames until the frames channel closes or
// ctx ends. Video chunks submitted concurrently are interleaved between
// audio sends. A transport send failure ends the run; the caller decides
// whether that tears the call down.
func (u *Uplink) Run(ctx context.Context, frames <-chan []float32) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			chunk := wire.EncodeAudioFrame(frame)
			if err := u.sess.SendMedia(chunk); err != nil {
				u.metrics.RecordTransportError(ctx, "send")
				return fmt.Errorf("pipeline: send audio: %w", err)
			}
			u.metrics.CaptureFrames.Add(ctx, 1)

		case chunk := <-u.video:
			if err := u.sess.SendMedia(chunk); err != nil {
				u.metrics.RecordTransportError(ctx, "send")
				return fmt.Errorf("pipeline: send video: %w", err)
			}
			u.metrics.RecordVideoFrame(ctx, "sent")
		}
	}
}
