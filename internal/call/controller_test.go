package call_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxcall/voxcall/internal/call"
	"github.com/voxcall/voxcall/internal/transcript"
	"github.com/voxcall/voxcall/pkg/device"
	devmock "github.com/voxcall/voxcall/pkg/device/mock"
	"github.com/voxcall/voxcall/pkg/transport"
	tmock "github.com/voxcall/voxcall/pkg/transport/mock"
	"github.com/voxcall/voxcall/pkg/wire"
)

// fixture bundles the mocks behind one controller.
type fixture struct {
	capture *devmock.CaptureDevice
	render  *devmock.RenderDevice
	video   *devmock.VideoSource
	plat    *devmock.Platform
	sess    *tmock.Session
	dialer  *tmock.Dialer
}

func newFixture() *fixture {
	f := &fixture{
		capture: devmock.NewCaptureDevice(),
		render:  devmock.NewRenderDevice(),
		video:   &devmock.VideoSource{ReadyResult: true},
		sess:    tmock.NewSession(),
	}
	f.plat = &devmock.Platform{
		CaptureResult: f.capture,
		RenderResult:  f.render,
		VideoResult:   f.video,
	}
	f.dialer = &tmock.Dialer{DialResult: f.sess}
	return f
}

func (f *fixture) controller(cfg call.Config, opts ...call.Option) *call.Controller {
	return call.New(f.plat, f.dialer, cfg, opts...)
}

// waitState polls until the controller reaches want or the deadline passes.
func waitState(t *testing.T, c *call.Controller, want call.State) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for c.State() != want {
		select {
		case <-deadline:
			t.Fatalf("state = %v; want %v", c.State(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStart_ReachesActive(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{Voice: "Aoede", Instructions: "be brief"})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != call.StateActive {
		t.Errorf("state = %v; want active", got)
	}

	if len(f.plat.OpenCaptureCalls) != 1 {
		t.Fatalf("OpenCapture calls = %d; want 1", len(f.plat.OpenCaptureCalls))
	}
	devCfg := f.plat.OpenCaptureCalls[0]
	if devCfg.SampleRate != wire.InputSampleRate {
		t.Errorf("capture rate = %d; want %d", devCfg.SampleRate, wire.InputSampleRate)
	}
	if devCfg.FrameSamples != wire.FrameSamples {
		t.Errorf("frame samples = %d; want %d", devCfg.FrameSamples, wire.FrameSamples)
	}

	if len(f.dialer.DialCalls) != 1 {
		t.Fatalf("Dial calls = %d; want 1", len(f.dialer.DialCalls))
	}
	if got := f.dialer.DialCalls[0]; got.Voice != "Aoede" || got.Instructions != "be brief" {
		t.Errorf("dial config = %+v", got)
	}
}

func TestStart_WithoutVideoSkipsCamera(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(f.plat.OpenVideoCalls) != 0 {
		t.Errorf("OpenVideo calls = %d; want 0 without the video capability", len(f.plat.OpenVideoCalls))
	}
}

func TestStart_RejectedWhenNotIdle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, call.ErrNotIdle) {
		t.Errorf("second Start = %v; want ErrNotIdle", err)
	}
}

// Scenario: the OS denies microphone access. Start must surface the typed
// device error, land in StateError, and leave no device handle open.
func TestStart_CaptureDenied(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.plat.CaptureError = &device.Error{Reason: device.ReasonDenied, Op: "open capture"}
	c := f.controller(call.Config{})

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start should fail when capture is denied")
	}
	var derr *device.Error
	if !errors.As(err, &derr) {
		t.Fatalf("error %v is not a *device.Error", err)
	}
	if derr.Reason != device.ReasonDenied {
		t.Errorf("reason = %v; want DENIED", derr.Reason)
	}
	if got := c.State(); got != call.StateError {
		t.Errorf("state = %v; want error", got)
	}
	if len(f.dialer.DialCalls) != 0 {
		t.Error("the endpoint must not be dialed when capture fails")
	}
}

func TestStart_DialFailureReleasesDevices(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dialer.DialError = &transport.Error{Op: "dial", Err: errors.New("unreachable")}
	c := f.controller(call.Config{Video: true})

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start should fail when the dial fails")
	}
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Fatalf("error %v is not a *transport.Error", err)
	}
	if got := c.State(); got != call.StateError {
		t.Errorf("state = %v; want error", got)
	}
	if f.capture.CloseCalls() == 0 {
		t.Error("capture device was not released")
	}
	if f.render.CloseCalls() == 0 {
		t.Error("render device was not released")
	}
	if f.video.CloseCalls() == 0 {
		t.Error("video source was not released")
	}
}

func TestStop_FromActiveReleasesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{Video: true})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()

	if got := c.State(); got != call.StateIdle {
		t.Errorf("state = %v; want idle", got)
	}
	if f.sess.CloseCalls() == 0 {
		t.Error("session was not closed")
	}
	if f.capture.CloseCalls() == 0 {
		t.Error("capture device was not closed")
	}
	if f.render.CloseCalls() == 0 {
		t.Error("render device was not closed")
	}
	if f.video.CloseCalls() == 0 {
		t.Error("video source was not closed")
	}
}

// Teardown releases in dependency order: transport first so no more downlink
// arrives, then capture, then the video source and render device, and finally
// any playback still rendering.
func TestStop_TeardownOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{Video: true})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Leave one playback running so the active-set stop is observable.
	f.sess.Emit(transport.AudioEvent{PCM: make([]byte, 48000)})
	deadline := time.After(3 * time.Second)
	for len(f.render.Calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the playback to be scheduled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	var mu sync.Mutex
	var seq []string
	record := func(step string) func() {
		return func() {
			mu.Lock()
			seq = append(seq, step)
			mu.Unlock()
		}
	}
	f.sess.OnClose = record("transport")
	f.capture.OnClose = record("capture")
	f.video.OnClose = record("video")
	f.render.OnClose = record("render")
	f.render.Calls()[0].Handle.OnStop = record("playback")

	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"transport", "capture", "video", "render", "playback"}
	if len(seq) != len(want) {
		t.Fatalf("teardown sequence = %v; want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("teardown sequence = %v; want %v", seq, want)
		}
	}
}

// Stopping twice, or without ever starting, must not fail and must leave the
// controller idle both times.
func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})

	c.Stop()
	if got := c.State(); got != call.StateIdle {
		t.Errorf("state after never-started Stop = %v; want idle", got)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()
	if got := c.State(); got != call.StateIdle {
		t.Errorf("state after double Stop = %v; want idle", got)
	}
}

func TestStop_ClearsErrorState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.plat.CaptureError = &device.Error{Reason: device.ReasonBusy, Op: "open capture"}
	c := f.controller(call.Config{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start should have failed")
	}
	waitState(t, c, call.StateError)

	c.Stop()
	if got := c.State(); got != call.StateIdle {
		t.Errorf("state = %v; want idle after clearing the failure", got)
	}
}

func TestRemoteOrderlyCloseLandsIdle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Finish(nil)

	waitState(t, c, call.StateIdle)
	if f.capture.CloseCalls() == 0 {
		t.Error("capture device was not released on remote close")
	}
}

func TestRemoteErrorLandsError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Finish(&transport.Error{Op: "receive", Err: errors.New("connection reset")})

	waitState(t, c, call.StateError)
	if f.render.CloseCalls() == 0 {
		t.Error("render device was not released on remote error")
	}
}

func TestCaptureFramesFlowToSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.capture.EmitFrame([]float32{0.5, -0.5})

	deadline := time.After(3 * time.Second)
	for len(f.sess.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the frame to reach the session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := f.sess.Sent()[0].MIMEType; got != wire.AudioMIME {
		t.Errorf("MIMEType = %q; want %q", got, wire.AudioMIME)
	}
}

func TestAudioEventsScheduledGaplessly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second := wire.OutputSampleRate * 2 // bytes per second of s16le mono
	f.sess.Emit(transport.AudioEvent{PCM: make([]byte, second)})
	f.sess.Emit(transport.AudioEvent{PCM: make([]byte, second)})

	deadline := time.After(3 * time.Second)
	for len(f.render.Calls()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("PlayAt calls = %d; want 2", len(f.render.Calls()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := f.render.Calls()[0].At; got != 0 {
		t.Errorf("first start = %v; want 0", got)
	}
	if got := f.render.Calls()[1].At; got != time.Second {
		t.Errorf("second start = %v; want 1s", got)
	}
}

func TestInterruptedEventStopsPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.sess.Emit(transport.AudioEvent{PCM: make([]byte, 48000)})
	f.sess.Emit(transport.InterruptedEvent{})

	deadline := time.After(3 * time.Second)
	for {
		if calls := f.render.Calls(); len(calls) == 1 && calls[0].Handle.Stopped() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the playback to be stopped")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTranscriptCommittedUserBeforeBot(t *testing.T) {
	t.Parallel()

	f := newFixture()
	committed := make(chan []transcript.Entry, 1)
	c := f.controller(call.Config{}, call.WithOnCommit(func(e []transcript.Entry) {
		committed <- e
	}))
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.sess.Emit(transport.TranscriptEvent{Speaker: transport.SpeakerBot, Text: "hi "})
	f.sess.Emit(transport.TranscriptEvent{Speaker: transport.SpeakerUser, Text: "hello"})
	f.sess.Emit(transport.TranscriptEvent{Speaker: transport.SpeakerBot, Text: "there"})
	f.sess.Emit(transport.TurnCompleteEvent{})

	select {
	case entries := <-committed:
		if len(entries) != 2 {
			t.Fatalf("committed = %d entries; want 2", len(entries))
		}
		if entries[0].Speaker != transcript.SpeakerUser || entries[0].Text != "hello" {
			t.Errorf("entries[0] = %+v; want user/hello", entries[0])
		}
		if entries[1].Speaker != transcript.SpeakerBot || entries[1].Text != "hi there" {
			t.Errorf("entries[1] = %+v; want bot/'hi there'", entries[1])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for the turn commit")
	}

	history := c.History()
	if len(history) != 2 {
		t.Fatalf("history = %d entries; want 2", len(history))
	}
}

func TestHistoryClearedOnNewCall(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.sess.Emit(transport.TranscriptEvent{Speaker: transport.SpeakerUser, Text: "old call"})
	f.sess.Emit(transport.TurnCompleteEvent{})

	deadline := time.After(3 * time.Second)
	for len(c.History()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for history")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Stop()

	// The next call gets fresh state: new mock session, empty history.
	f.sess = tmock.NewSession()
	f.dialer.DialResult = f.sess
	f.capture = devmock.NewCaptureDevice()
	f.plat.CaptureResult = f.capture
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer c.Stop()

	if got := len(c.History()); got != 0 {
		t.Errorf("history = %d entries at the start of a new call; want 0", got)
	}
}

func TestSwitchVideoSource_WithoutVideoFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := c.SwitchVideoSource()
	var derr *device.Error
	if !errors.As(err, &derr) {
		t.Fatalf("error %v is not a *device.Error", err)
	}
	if derr.Reason != device.ReasonNotFound {
		t.Errorf("reason = %v; want NOT_FOUND", derr.Reason)
	}
}

func TestSwitchVideoSource_DelegatesToCamera(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{Video: true})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SwitchVideoSource(); err != nil {
		t.Fatalf("SwitchVideoSource: %v", err)
	}
	if f.video.SwitchCalls() != 1 {
		t.Errorf("Switch calls = %d; want 1", f.video.SwitchCalls())
	}

	// Audio path and transport stay untouched by the swap.
	if f.capture.CloseCalls() != 0 || f.sess.CloseCalls() != 0 {
		t.Error("switching the camera must not disturb capture or transport")
	}
}

func TestSwitchVideoSource_WhenIdleFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := f.controller(call.Config{Video: true})

	if err := c.SwitchVideoSource(); err == nil {
		t.Error("SwitchVideoSource on an idle controller should fail")
	}
}
