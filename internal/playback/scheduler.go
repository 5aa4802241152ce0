// Package playback schedules decoded model audio onto the render device so
// that consecutive chunks play gaplessly and a barge-in cuts everything at
// once.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxcall/voxcall/internal/observe"
	"github.com/voxcall/voxcall/pkg/device"
	"github.com/voxcall/voxcall/pkg/wire"
)

// Scheduler places PCM chunks back-to-back on the render device clock.
//
// It keeps a single cursor, the next start position. Each enqueued chunk
// starts at max(cursor, now) and advances the cursor by the chunk's duration,
// so an uninterrupted stream plays seamlessly while a stream that fell behind
// (cursor in the past) resumes immediately instead of accumulating negative
// lag. Every playback still rendering is tracked so an interruption can hard
// stop all of them together.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	dev     device.RenderDevice
	log     *slog.Logger
	metrics *observe.Metrics

	mu        sync.Mutex
	nextStart time.Duration
	active    map[device.Playback]struct{}
}

// New creates a Scheduler rendering onto dev.
func New(dev device.RenderDevice, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		dev:     dev,
		log:     log,
		metrics: observe.DefaultMetrics(),
		active:  make(map[device.Playback]struct{}),
	}
}

// Enqueue schedules one chunk of s16le mono PCM at [wire.OutputSampleRate].
// It returns the start position assigned on the device clock.
func (s *Scheduler) Enqueue(pcm []byte) (time.Duration, error) {
	d := wire.PCMDuration(pcm, wire.OutputSampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextStart
	if now := s.dev.Now(); now > start {
		start = now
	}

	h, err := s.dev.PlayAt(pcm, wire.OutputSampleRate, start)
	if err != nil {
		return 0, err
	}

	s.nextStart = start + d
	s.active[h] = struct{}{}
	s.metrics.ActivePlaybacks.Add(context.Background(), 1)
	go s.reap(h)

	return start, nil
}

// reap removes a playback from the active set once it finishes or is stopped.
func (s *Scheduler) reap(h device.Playback) {
	<-h.Done()
	s.mu.Lock()
	_, tracked := s.active[h]
	delete(s.active, h)
	s.mu.Unlock()
	if tracked {
		s.metrics.ActivePlaybacks.Add(context.Background(), -1)
	}
}

// Interrupt hard stops every active playback, discards the queue and rewinds
// the cursor to zero so the next chunk starts immediately. Safe to call when
// nothing is playing.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := make([]device.Playback, 0, len(s.active))
	for h := range s.active {
		stopped = append(stopped, h)
	}
	s.active = make(map[device.Playback]struct{})
	s.nextStart = 0
	s.mu.Unlock()

	for _, h := range stopped {
		h.Stop()
	}
	if n := len(stopped); n > 0 {
		s.metrics.ActivePlaybacks.Add(context.Background(), -int64(n))
		s.log.Debug("playback interrupted", "stopped", n)
	}
}

// Active returns the number of playbacks still rendering.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the current cursor position.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
