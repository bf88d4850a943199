package viewer

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler delivers repeated frame callbacks, like a display refresh loop.
type Scheduler interface {
	// Now reads the scheduler's monotonic clock.
	Now() time.Time

	// Start calls frame on every tick until the returned stop function is
	// called. Start must not call frame synchronously. Stop is idempotent.
	Start(frame func(now time.Time)) (stop func())
}

// TickerScheduler is a Scheduler backed by time.Ticker.
type TickerScheduler struct {
	Interval time.Duration
}

// NewTickerScheduler creates a scheduler ticking at interval. A non-positive
// interval uses DefaultFrameInterval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{Interval: interval}
}

// Now returns the wall clock time with its monotonic reading.
func (s *TickerScheduler) Now() time.Time {
	return time.Now()
}

// Start runs frame on a goroutine for every tick until stopped.
func (s *TickerScheduler) Start(frame func(now time.Time)) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				// A tick may race with stop; frame drops it by task identity.
				frame(now)
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// playbackTimer is one armed run of the timer driver for a single
// activation. The viewer keeps at most one; any other instance is stale.
type playbackTimer struct {
	seq   uint64
	start time.Time
	stop  func()
}

// progressAt returns elapsed/duration clamped to [0,1].
func progressAt(start, now time.Time, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	p := float64(now.Sub(start)) / float64(duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// armLocked starts the timer driver when the active slide is ready to play.
// Caller must hold the lock.
func (v *Viewer) armLocked() {
	v.disarmLocked()

	if !v.playableLocked() || !v.loaded || v.errored {
		return
	}

	t := &playbackTimer{
		seq:   v.seq,
		start: v.sched.Now(),
	}
	t.stop = v.sched.Start(func(now time.Time) {
		v.frame(t, now)
	})

	v.timer = t
	v.progress = 0

	v.logger.Debug("timer armed", "index", v.active, "seq", v.seq, "duration", v.duration)
}

// disarmLocked cancels the pending timer, if any. Caller must hold the lock.
func (v *Viewer) disarmLocked() {
	if v.timer == nil {
		return
	}
	v.timer.stop()
	v.timer = nil
}

// frame publishes progress for the armed timer and advances once the
// duration has elapsed.
func (v *Viewer) frame(t *playbackTimer, now time.Time) {
	v.mu.Lock()

	if v.timer != t {
		v.mu.Unlock()
		return
	}

	p := progressAt(t.start, now, v.duration)
	if p > v.progress {
		v.progress = p
	}

	if v.progress < 1 {
		v.mu.Unlock()
		return
	}

	v.disarmLocked()
	v.logger.Debug("slide duration elapsed", "index", v.active)
	eff := v.advanceLocked()
	v.mu.Unlock()

	v.apply(eff)
}
