package viewer

import (
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/agleyzer/linkinbio/internal/slide"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
}

func createTestSlides(count int) []slide.Slide {
	slides := make([]slide.Slide, count)
	for i := 0; i < count; i++ {
		slides[i] = slide.Slide{
			Source: "offers/offer" + string(rune('0'+i)) + ".jpg",
		}
	}
	return slides
}

// manualScheduler is a Scheduler whose clock only moves when the test says
// so. Frames are delivered synchronously from Step.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	frames map[int]func(time.Time)
	starts int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{
		now:    time.Unix(1700000000, 0),
		frames: make(map[int]func(time.Time)),
	}
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) Start(frame func(time.Time)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.frames[id] = frame
	s.starts++

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.frames, id)
	}
}

// Step moves the clock forward by d and delivers one frame to every running
// task.
func (s *manualScheduler) Step(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	now := s.now

	ids := make([]int, 0, len(s.frames))
	for id := range s.frames {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	frames := make([]func(time.Time), 0, len(ids))
	for _, id := range ids {
		frames = append(frames, s.frames[id])
	}
	s.mu.Unlock()

	for _, f := range frames {
		f(now)
	}
}

// Running returns the number of tasks that have not been stopped.
func (s *manualScheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// testViewer bundles a viewer with the scheduler and recorded callbacks.
type testViewer struct {
	*Viewer
	sched       *manualScheduler
	mu          sync.Mutex
	activations []Activation
	closes      int
	autoLoad    bool
	failSources map[string]bool
}

func newTestViewer(t *testing.T, slides []slide.Slide, duration time.Duration) *testViewer {
	t.Helper()

	tv := &testViewer{
		sched:       newManualScheduler(),
		failSources: make(map[string]bool),
	}

	tv.Viewer = New(slides, tv.onBack, Options{
		Duration:   duration,
		Scheduler:  tv.sched,
		OnActivate: tv.onActivate,
		Logger:     createTestLogger(),
	})

	return tv
}

func (tv *testViewer) onBack() {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.closes++
}

func (tv *testViewer) onActivate(a Activation) {
	tv.mu.Lock()
	tv.activations = append(tv.activations, a)
	autoLoad := tv.autoLoad
	fail := tv.failSources[a.Slide.Source]
	tv.mu.Unlock()

	if !autoLoad {
		return
	}
	if fail {
		tv.ReportError(a)
	} else {
		tv.ReportLoaded(a)
	}
}

func (tv *testViewer) closeCount() int {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return tv.closes
}

func (tv *testViewer) lastActivation() Activation {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return tv.activations[len(tv.activations)-1]
}
