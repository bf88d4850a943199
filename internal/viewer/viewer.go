// Package viewer implements the offers stories viewer: a full-screen,
// auto-advancing image carousel with per-slide progress, failure skipping and
// tap/keyboard navigation.
//
// A Viewer is mounted by its caller, receives asset load notifications for
// each activation it announces, and calls onBack at most once when the user
// (or the end of the list) closes it.
package viewer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agleyzer/linkinbio/internal/slide"
)

// DefaultDuration is how long each slide is shown once loaded.
const DefaultDuration = 5000 * time.Millisecond

// Activation identifies one visit of a slide. Seq grows on every visit, so
// an asset notification for an earlier visit of the same index is stale.
type Activation struct {
	Index int         `json:"index"`
	Seq   uint64      `json:"seq"`
	Slide slide.Slide `json:"slide"`
}

// Options configure a Viewer.
type Options struct {
	// Duration per slide. Non-positive means DefaultDuration.
	Duration time.Duration

	// Scheduler drives progress ticks. Nil uses a TickerScheduler with
	// DefaultFrameInterval.
	Scheduler Scheduler

	// OnActivate is called, outside the viewer lock, each time a slide
	// becomes active. The asset loader answers with ReportLoaded or
	// ReportError for that activation.
	OnActivate func(Activation)

	Logger *slog.Logger
}

// Viewer is the playback state machine for one mounted carousel.
type Viewer struct {
	mu sync.Mutex

	slides   []slide.Slide
	duration time.Duration
	sched    Scheduler
	onBack   func()
	onActive func(Activation)
	logger   *slog.Logger

	mounted   bool
	unmounted bool
	hasClosed bool

	active   int
	seq      uint64
	progress float64
	loaded   bool
	errored  bool
	failures *failureTracker
	timer    *playbackTimer
}

// New creates a viewer over already normalized slides. onBack may be nil.
// The viewer is inert until Mount is called.
func New(slides []slide.Slide, onBack func(), opts Options) *Viewer {
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = NewTickerScheduler(DefaultFrameInterval)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	active := 0
	if len(slides) == 0 {
		active = -1
	}

	return &Viewer{
		slides:   slides,
		duration: duration,
		sched:    sched,
		onBack:   onBack,
		onActive: opts.OnActivate,
		logger:   logger,
		active:   active,
		failures: newFailureTracker(len(slides)),
	}
}

// effects are side effects collected under the lock and run after it is
// released, so callbacks may call back into the viewer.
type effects struct {
	activated *Activation
	close     bool
}

func (v *Viewer) apply(eff effects) {
	if eff.activated != nil && v.onActive != nil {
		v.onActive(*eff.activated)
	}
	if eff.close && v.onBack != nil {
		v.onBack()
	}
}

// Mount starts the viewer: input is accepted from now on and the first
// slide is activated. Mounting twice has no effect.
func (v *Viewer) Mount() {
	v.mu.Lock()
	if v.mounted || v.unmounted {
		v.mu.Unlock()
		return
	}
	v.mounted = true

	var eff effects
	if len(v.slides) > 0 {
		eff.activated = v.activateLocked(0)
	}

	v.logger.Info("viewer mounted", "slides", len(v.slides), "duration", v.duration)
	v.mu.Unlock()

	v.apply(eff)
}

// Unmount tears the viewer down without calling onBack. Every later call
// is a no-op.
func (v *Viewer) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unmounted {
		return
	}
	v.unmounted = true
	v.disarmLocked()

	v.logger.Info("viewer unmounted", "closed", v.hasClosed)
}

// Advance moves to the next slide that has not failed. On the last slide it
// closes the viewer.
func (v *Viewer) Advance() {
	v.mu.Lock()
	eff := v.advanceLocked()
	v.mu.Unlock()

	v.apply(eff)
}

// Retreat moves to the previous slide that has not failed. There is no
// wraparound; at the start it does nothing.
func (v *Viewer) Retreat() {
	v.mu.Lock()
	var eff effects
	if v.playableLocked() {
		if prev := v.failures.prev(v.active); prev != -1 {
			eff.activated = v.activateLocked(prev)
		}
	}
	v.mu.Unlock()

	v.apply(eff)
}

// Close invokes onBack. Only the first call in a viewer's lifetime has any
// effect.
func (v *Viewer) Close() {
	v.mu.Lock()
	eff := v.closeLocked()
	v.mu.Unlock()

	v.apply(eff)
}

// ReportLoaded records that the asset for activation a finished loading and
// starts the slide timer. Notifications for any other activation are
// ignored.
func (v *Viewer) ReportLoaded(a Activation) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.currentLocked(a) {
		v.logger.Debug("ignoring stale load notification", "index", a.Index, "seq", a.Seq)
		return
	}

	// Each activation settles once: a repeat load must not restart the
	// timer and an error is final.
	if v.loaded {
		v.logger.Debug("ignoring duplicate load notification", "index", a.Index, "seq", a.Seq, "errored", v.errored)
		return
	}

	v.loaded = true
	v.errored = false
	v.armLocked()
}

// ReportError records that the asset for activation a failed to load, marks
// the slide as failed and skips to the next viable slide. It never closes
// the viewer.
func (v *Viewer) ReportError(a Activation) {
	v.mu.Lock()

	if !v.currentLocked(a) {
		v.mu.Unlock()
		v.logger.Debug("ignoring stale error notification", "index", a.Index, "seq", a.Seq)
		return
	}

	v.loaded = true
	v.errored = true
	v.disarmLocked()
	v.failures.add(v.active)

	v.logger.Warn("offer image failed to load",
		"index", v.active,
		"source", v.slides[v.active].Source,
		"failed", v.failures.len(),
		"total", len(v.slides),
	)

	var eff effects
	if next := v.failures.next(v.active); next != -1 {
		eff.activated = v.activateLocked(next)
	} else if v.failures.allFailed() {
		v.logger.Warn("all offer images failed to load")
	}
	v.mu.Unlock()

	v.apply(eff)
}

// Current returns the activation of the active slide. Its Index is -1 when
// there are no slides.
func (v *Viewer) Current() Activation {
	v.mu.Lock()
	defer v.mu.Unlock()

	a := Activation{Index: v.active, Seq: v.seq}
	if v.active >= 0 {
		a.Slide = v.slides[v.active]
	}
	return a
}

// Slides returns a copy of the slides being shown.
func (v *Viewer) Slides() []slide.Slide {
	out := make([]slide.Slide, len(v.slides))
	copy(out, v.slides)
	return out
}

// Duration returns the per-slide duration in effect.
func (v *Viewer) Duration() time.Duration {
	return v.duration
}

// advanceLocked implements Advance. Caller must hold the lock.
func (v *Viewer) advanceLocked() effects {
	if !v.playableLocked() {
		return effects{}
	}

	if next := v.failures.next(v.active); next != -1 {
		return effects{activated: v.activateLocked(next)}
	}

	if v.active >= len(v.slides)-1 {
		return v.closeLocked()
	}

	// TODO: a failed tail leaves the carousel stuck here; treat "no viable
	// next slide" as the end of the list and close instead.
	v.logger.Debug("no viable slide after current one", "index", v.active)
	return effects{}
}

// closeLocked marks the viewer closed and reports whether onBack must run.
// Caller must hold the lock.
func (v *Viewer) closeLocked() effects {
	if v.hasClosed || v.unmounted || !v.mounted {
		return effects{}
	}
	v.hasClosed = true
	v.disarmLocked()

	v.logger.Info("viewer closed", "index", v.active)
	return effects{close: true}
}

// activateLocked switches to index, resetting per-slide state. Caller must
// hold the lock.
func (v *Viewer) activateLocked(index int) *Activation {
	v.disarmLocked()

	v.active = index
	v.seq++
	v.progress = 0
	v.loaded = false
	v.errored = false

	v.logger.Debug("slide activated", "index", index, "seq", v.seq)

	return &Activation{Index: index, Seq: v.seq, Slide: v.slides[index]}
}

// playableLocked reports whether the carousel is in the Playing state and
// accepting transitions. Caller must hold the lock.
func (v *Viewer) playableLocked() bool {
	return v.mounted && !v.unmounted && !v.hasClosed &&
		len(v.slides) > 0 && !v.failures.allFailed()
}

// currentLocked reports whether a is the live activation. Caller must hold
// the lock.
func (v *Viewer) currentLocked(a Activation) bool {
	return v.playableLocked() && a.Index == v.active && a.Seq == v.seq
}
