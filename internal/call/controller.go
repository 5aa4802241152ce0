// Package call owns the lifecycle of one voice call: the state machine, the
// local devices, the transport session and every pipeline in between.
//
// A [Controller] moves through Idle → Connecting → Active and back. Start
// acquires devices and dials the endpoint; while Active, capture frames and
// camera stills flow up through [pipeline], and downlink events fan out to
// the [playback] scheduler and the [transcript] aggregator. Stop — and every
// other exit path — runs one ordered, idempotent teardown.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxcall/voxcall/internal/observe"
	"github.com/voxcall/voxcall/internal/pipeline"
	"github.com/voxcall/voxcall/internal/playback"
	"github.com/voxcall/voxcall/internal/transcript"
	"github.com/voxcall/voxcall/pkg/device"
	"github.com/voxcall/voxcall/pkg/transport"
	"github.com/voxcall/voxcall/pkg/wire"
)

// State is the call lifecycle state. Transitions happen only inside the
// Controller.
type State int32

const (
	// StateIdle means no call is in progress and no resources are held.
	StateIdle State = iota

	// StateConnecting means devices are being acquired and the endpoint
	// dialed.
	StateConnecting

	// StateActive means media is flowing in both directions.
	StateActive

	// StateError means the last call ended in failure. Resources are
	// released; a new Start requires an intervening Stop.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotIdle is returned by Start when a call is already in progress or a
// failed call has not been cleared with Stop.
var ErrNotIdle = errors.New("call: start rejected: controller is not idle")

// ErrStopped is returned by Start when Stop arrived while the call was still
// connecting.
var ErrStopped = errors.New("call: stopped while connecting")

const (
	defaultVideoWidth  = 1280
	defaultVideoHeight = 720
)

// Config carries the per-call parameters.
type Config struct {
	// Voice selects the endpoint's synthesis voice. Empty uses the default.
	Voice string

	// Instructions is the system prompt for the session.
	Instructions string

	// Video enables the camera alongside the microphone.
	Video bool

	// VideoWidth and VideoHeight are the requested camera resolution.
	// Zero values request 1280×720.
	VideoWidth  int
	VideoHeight int

	// VideoFrameInterval overrides the camera sampling period.
	VideoFrameInterval time.Duration

	// VideoJPEGQuality overrides the still-compression quality (1–100).
	VideoJPEGQuality int
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnLive registers a callback for in-progress transcription snapshots.
// It is re-registered on the fresh aggregator of every call.
func WithOnLive(fn func(transcript.Live)) Option {
	return func(c *Controller) { c.onLive = fn }
}

// WithOnCommit registers a callback for committed transcript entries.
func WithOnCommit(fn func([]transcript.Entry)) Option {
	return func(c *Controller) { c.onCommit = fn }
}

// Controller is the call session controller.
//
// Controller is safe for concurrent use. Exactly one call can be in progress
// at a time.
type Controller struct {
	platform device.Platform
	dialer   transport.Dialer
	cfg      Config
	metrics  *observe.Metrics
	log      *slog.Logger

	onLive   func(transcript.Live)
	onCommit func([]transcript.Entry)

	mu    sync.Mutex
	state State
	aggr  *transcript.Aggregator
	res   *resources
}

// resources holds everything acquired for one call, in the order it must be
// released.
type resources struct {
	sess    transport.Session
	capture device.CaptureDevice
	render  device.RenderDevice
	video   device.VideoSource
	sampler *pipeline.VideoSampler
	sched   *playback.Scheduler
	cancel  context.CancelFunc
	group   *errgroup.Group
	started time.Time
}

// New creates an idle Controller using platform for local devices and dialer
// for the remote endpoint.
func New(platform device.Platform, dialer transport.Dialer, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		platform: platform,
		dialer:   dialer,
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Live returns the in-progress transcription snapshot of the current (or most
// recent) call.
func (c *Controller) Live() transcript.Live {
	c.mu.Lock()
	aggr := c.aggr
	c.mu.Unlock()
	if aggr == nil {
		return transcript.Live{}
	}
	return aggr.Live()
}

// History returns the committed transcript of the current (or most recent)
// call, in commit order.
func (c *Controller) History() []transcript.Entry {
	c.mu.Lock()
	aggr := c.aggr
	c.mu.Unlock()
	if aggr == nil {
		return nil
	}
	return aggr.Entries()
}

// Start acquires the local devices, dials the endpoint and begins streaming.
// On success the controller is Active. Failures leave the controller in
// StateError with every partially acquired resource released; the caller
// distinguishes device from transport failures via errors.As with
// [*device.Error] and [*transport.Error].
//
// Start is rejected with [ErrNotIdle] unless the controller is Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateConnecting
	// Fresh transcript per call: history does not leak across sessions.
	c.aggr = transcript.New(
		transcript.WithOnLive(c.onLive),
		transcript.WithOnCommit(c.onCommit),
	)
	aggr := c.aggr
	c.mu.Unlock()

	res, err := c.acquire(ctx)
	if err != nil {
		c.mu.Lock()
		c.teardownLocked(res, StateError)
		c.mu.Unlock()
		return err
	}

	pipeCtx, cancel := context.WithCancel(context.Background())
	res.cancel = cancel

	uplink := pipeline.NewUplink(res.sess, c.metrics, c.log)
	res.sched = playback.New(res.render, c.log)
	if res.video != nil {
		var sopts []pipeline.SamplerOption
		if c.cfg.VideoFrameInterval > 0 {
			sopts = append(sopts, pipeline.WithFrameInterval(c.cfg.VideoFrameInterval))
		}
		if c.cfg.VideoJPEGQuality > 0 {
			sopts = append(sopts, pipeline.WithJPEGQuality(c.cfg.VideoJPEGQuality))
		}
		sopts = append(sopts, pipeline.WithSamplerLogger(c.log))
		res.sampler = pipeline.NewVideoSampler(res.video, uplink, c.metrics, sopts...)
	}

	g, gctx := errgroup.WithContext(pipeCtx)
	res.group = g
	frames := res.capture.Frames()
	g.Go(func() error { return uplink.Run(gctx, frames) })
	if res.sampler != nil {
		sampler := res.sampler
		g.Go(func() error { return sampler.Run(gctx) })
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Stop won the race: release everything we just acquired.
		target := c.state
		c.teardownLocked(res, target)
		c.mu.Unlock()
		return ErrStopped
	}
	c.res = res
	c.state = StateActive
	c.mu.Unlock()

	go c.receiveLoop(res.sess, res.sched, res.render, aggr)
	go c.watchPipelines(g)

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Info("call started", "video", res.video != nil)
	return nil
}

// acquire opens the devices and dials the endpoint. On failure it returns
// the partially filled resources so the caller can release them.
func (c *Controller) acquire(ctx context.Context) (*resources, error) {
	res := &resources{started: time.Now()}

	devCfg := device.CaptureConfig{
		SampleRate:   wire.InputSampleRate,
		FrameSamples: wire.FrameSamples,
		Video:        c.cfg.Video,
		VideoWidth:   c.cfg.VideoWidth,
		VideoHeight:  c.cfg.VideoHeight,
	}
	if devCfg.VideoWidth == 0 {
		devCfg.VideoWidth = defaultVideoWidth
	}
	if devCfg.VideoHeight == 0 {
		devCfg.VideoHeight = defaultVideoHeight
	}

	capture, err := c.platform.OpenCapture(ctx, devCfg)
	if err != nil {
		return res, fmt.Errorf("call: open capture: %w", err)
	}
	res.capture = capture

	render, err := c.platform.OpenRender(ctx, wire.OutputSampleRate)
	if err != nil {
		return res, fmt.Errorf("call: open render: %w", err)
	}
	res.render = render

	if c.cfg.Video {
		video, err := c.platform.OpenVideo(ctx, devCfg)
		if err != nil {
			return res, fmt.Errorf("call: open video: %w", err)
		}
		res.video = video
	}

	sess, err := c.dialer.Dial(ctx, transport.SessionConfig{
		Voice:        c.cfg.Voice,
		Instructions: c.cfg.Instructions,
	})
	if err != nil {
		return res, fmt.Errorf("call: dial: %w", err)
	}
	res.sess = sess

	return res, nil
}

// receiveLoop fans downlink events out to the scheduler and the aggregator
// until the session ends, then runs teardown with the session's verdict:
// an orderly closure lands in Idle, a failure in Error.
func (c *Controller) receiveLoop(sess transport.Session, sched *playback.Scheduler, render device.RenderDevice, aggr *transcript.Aggregator) {
	ctx := context.Background()

	for ev := range sess.Events() {
		switch ev := ev.(type) {
		case transport.AudioEvent:
			start, err := sched.Enqueue(ev.PCM)
			if err != nil {
				// One bad segment must not end the call.
				c.metrics.RecordEncodeError(ctx, "audio")
				c.log.Warn("playback segment dropped", "error", err)
				continue
			}
			c.metrics.PlaybackChunks.Add(ctx, 1)
			if lead := start - render.Now(); lead > 0 {
				c.metrics.ScheduleLead.Record(ctx, lead.Seconds())
			}

		case transport.TranscriptEvent:
			switch ev.Speaker {
			case transport.SpeakerUser:
				aggr.AddUser(ev.Text)
			case transport.SpeakerBot:
				aggr.AddBot(ev.Text)
			}

		case transport.TurnCompleteEvent:
			aggr.CommitTurn()
			c.metrics.TranscriptTurns.Add(ctx, 1)

		case transport.InterruptedEvent:
			sched.Interrupt()
			c.metrics.Interruptions.Add(ctx, 1)
		}
	}

	c.finish(sess.Err())
}

// watchPipelines tears the call down when an uplink goroutine fails. A
// cancellation is the normal end of a pipeline and is ignored.
func (c *Controller) watchPipelines(g *errgroup.Group) {
	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.finish(err)
}

// finish runs teardown for a call that ended remotely or failed internally.
// No-op when Stop already released the call.
func (c *Controller) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil {
		return
	}
	target := StateIdle
	if err != nil {
		target = StateError
		c.log.Error("call ended with error", "error", err)
	} else {
		c.log.Info("call ended by remote")
	}
	c.teardownLocked(c.res, target)
}

// Stop ends the call and releases every resource. It is idempotent, never
// fails, and always leaves the controller Idle — including after a failed
// call, where it clears StateError.
func (c *Controller) Stop() {
	c.mu.Lock()
	res := c.res
	if res == nil {
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	c.teardownLocked(res, StateIdle)
	c.mu.Unlock()

	// Let the pipeline goroutines observe the cancellation before returning.
	if res.group != nil {
		_ = res.group.Wait()
	}
	c.log.Info("call stopped")
}

// teardownLocked releases the call's resources in dependency order: first the
// transport, then capture, then the processing pipelines, then the video
// source, then the render device, and finally every still-active playback.
// Device and context release must follow pipeline cancellation so no callback
// fires against a released resource. Every step is nil-safe, so a partially
// acquired call from an aborted Connecting tears down the same way.
func (c *Controller) teardownLocked(res *resources, target State) {
	if res == nil {
		c.state = target
		return
	}

	if res.sess != nil {
		if err := res.sess.Close(); err != nil {
			c.log.Warn("transport close", "error", err)
		}
	}
	if res.capture != nil {
		if err := res.capture.Close(); err != nil {
			c.log.Warn("capture close", "error", err)
		}
	}
	if res.cancel != nil {
		res.cancel()
	}
	if res.video != nil {
		if err := res.video.Close(); err != nil {
			c.log.Warn("video close", "error", err)
		}
	}
	if res.render != nil {
		if err := res.render.Close(); err != nil {
			c.log.Warn("render close", "error", err)
		}
	}
	if res.sched != nil {
		res.sched.Interrupt()
	}

	if c.res != nil {
		// Only a fully started call was counted as an active session.
		c.metrics.ActiveSessions.Add(context.Background(), -1)
		c.metrics.SessionDuration.Record(context.Background(), time.Since(res.started).Seconds())
	}

	c.res = nil
	c.state = target
}

// SwitchVideoSource swaps the camera facing without touching the audio path
// or the transport session. Fails with a [*device.Error] carrying
// [device.ReasonNotFound] when the call has no video or no alternate camera
// exists; the active source stays intact either way.
func (c *Controller) SwitchVideoSource() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive || c.res == nil || c.res.sampler == nil {
		return &device.Error{
			Reason: device.ReasonNotFound,
			Op:     "switch video",
			Err:    errors.New("no active video source"),
		}
	}
	return c.res.sampler.Switch()
}
