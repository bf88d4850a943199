package viewer

import (
	"reflect"
	"testing"
	"time"

	"github.com/agleyzer/linkinbio/internal/slide"
	"github.com/agleyzer/linkinbio/internal/stories"
)

func TestNew_Defaults(t *testing.T) {
	v := New(createTestSlides(2), nil, Options{})

	if v.Duration() != DefaultDuration {
		t.Errorf("Expected default duration %v, got %v", DefaultDuration, v.Duration())
	}
	if v.Status() != StatusPlaying {
		t.Errorf("Expected status playing, got %v", v.Status())
	}
	if got := v.Current().Index; got != 0 {
		t.Errorf("Expected active index 0, got %d", got)
	}
}

func TestNew_NonPositiveDuration(t *testing.T) {
	v := New(createTestSlides(1), nil, Options{Duration: -time.Second})
	if v.Duration() != DefaultDuration {
		t.Errorf("Expected default duration for negative input, got %v", v.Duration())
	}
}

func TestMount_ActivatesFirstSlide(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()
	tv.Mount()

	if len(tv.activations) != 1 {
		t.Fatalf("Expected 1 activation, got %d", len(tv.activations))
	}
	a := tv.activations[0]
	if a.Index != 0 || a.Seq != 1 {
		t.Errorf("Expected activation {0 1}, got {%d %d}", a.Index, a.Seq)
	}
	if a.Slide.Source != "offers/offer0.jpg" {
		t.Errorf("Unexpected slide %q", a.Slide.Source)
	}

	st := tv.State()
	if st.Loaded || st.Errored || st.Progress != 0 {
		t.Errorf("Expected fresh slide state, got %+v", st)
	}
}

func TestAdvance(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()

	tv.Advance()
	if got := tv.Current().Index; got != 1 {
		t.Errorf("Expected index 1, got %d", got)
	}

	tv.Advance()
	if got := tv.Current().Index; got != 2 {
		t.Errorf("Expected index 2, got %d", got)
	}

	if tv.closeCount() != 0 {
		t.Errorf("Expected no close yet, got %d", tv.closeCount())
	}
}

func TestAdvance_LastSlideClosesOnce(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(2), time.Second)
	tv.Mount()

	tv.Advance() // to 1
	for i := 0; i < 5; i++ {
		tv.Advance()
	}

	if tv.closeCount() != 1 {
		t.Errorf("Expected onBack exactly once, got %d", tv.closeCount())
	}
	if tv.Status() != StatusClosed {
		t.Errorf("Expected status closed, got %v", tv.Status())
	}
	if got := tv.Current().Index; got != 1 {
		t.Errorf("Expected to stay on index 1, got %d", got)
	}
}

func TestAdvance_SkipsFailedSlides(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(4), time.Second)
	tv.Mount()

	// Fail slide 1 by visiting it, then come back.
	tv.Advance()
	tv.ReportError(tv.Current()) // auto-skips to 2
	if got := tv.Current().Index; got != 2 {
		t.Fatalf("Expected auto-skip to 2, got %d", got)
	}

	tv.Retreat()
	if got := tv.Current().Index; got != 0 {
		t.Fatalf("Expected retreat over failed slide to 0, got %d", got)
	}

	tv.Advance()
	if got := tv.Current().Index; got != 2 {
		t.Errorf("Expected advance over failed slide to 2, got %d", got)
	}
}

func TestAdvance_FailedTailStays(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()

	// Slide 2 fails; with nothing after it the viewer stays on 2.
	tv.Advance()
	tv.Advance()
	tv.ReportError(tv.Current())

	// Back to 1; slide 2 is now the failed tail.
	tv.Retreat()
	if got := tv.Current().Index; got != 1 {
		t.Fatalf("Expected index 1, got %d", got)
	}
	tv.ReportLoaded(tv.Current())
	tv.sched.Step(300 * time.Millisecond)

	before := tv.State()
	tv.Advance()
	after := tv.State()

	if after.ActiveIndex != 1 {
		t.Errorf("Expected to remain on index 1, got %d", after.ActiveIndex)
	}
	if tv.closeCount() != 0 {
		t.Errorf("Expected no close on failed tail, got %d", tv.closeCount())
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("Expected unchanged state, before %+v after %+v", before, after)
	}
}

func TestRetreat_AtStartIsNoop(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()
	tv.ReportLoaded(tv.Current())
	tv.sched.Step(250 * time.Millisecond)

	before := tv.State()
	tv.Retreat()
	after := tv.State()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("Expected unchanged state, before %+v after %+v", before, after)
	}
	if tv.closeCount() != 0 {
		t.Error("Retreat must never close")
	}
}

func TestIndexChangeResetsSlideState(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()
	tv.ReportLoaded(tv.Current())
	tv.sched.Step(400 * time.Millisecond)

	if st := tv.State(); !st.Loaded || st.Progress == 0 {
		t.Fatalf("Expected loaded slide with progress, got %+v", st)
	}

	tv.Advance()
	st := tv.State()
	if st.Loaded || st.Errored || st.Progress != 0 {
		t.Errorf("Expected reset after advance, got %+v", st)
	}

	tv.ReportLoaded(tv.Current())
	tv.sched.Step(400 * time.Millisecond)
	tv.Retreat()
	st = tv.State()
	if st.Loaded || st.Errored || st.Progress != 0 {
		t.Errorf("Expected reset after retreat, got %+v", st)
	}
}

func TestClose_Once(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(2), time.Second)
	tv.Mount()

	tv.Close()
	tv.Close()
	tv.HandleKey(KeyEscape)
	tv.Advance()
	tv.Advance()

	if tv.closeCount() != 1 {
		t.Errorf("Expected onBack exactly once, got %d", tv.closeCount())
	}
}

func TestClose_IsTerminal(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()
	tv.Close()

	a := tv.Current()
	tv.Advance()
	tv.ReportLoaded(a)

	st := tv.State()
	if st.ActiveIndex != 0 {
		t.Errorf("Expected transitions ignored after close, got index %d", st.ActiveIndex)
	}
	if st.Loaded {
		t.Error("Expected load notification ignored after close")
	}
	if tv.sched.Running() != 0 {
		t.Errorf("Expected no running timers, got %d", tv.sched.Running())
	}
}

func TestClose_BeforeMountIsNoop(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(1), time.Second)
	tv.Close()
	if tv.closeCount() != 0 {
		t.Errorf("Expected no close before mount, got %d", tv.closeCount())
	}
}

func TestReportError_AddsFailureAndSkips(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()

	tv.ReportError(tv.Current())

	st := tv.State()
	if !reflect.DeepEqual(st.Failed, []int{0}) {
		t.Errorf("Expected failed [0], got %v", st.Failed)
	}
	if st.ActiveIndex != 1 {
		t.Errorf("Expected auto-skip to 1, got %d", st.ActiveIndex)
	}
	if st.AllFailed {
		t.Error("Expected allFailed false")
	}
	if st.Loaded || st.Errored {
		t.Errorf("Expected fresh state on skipped-to slide, got %+v", st)
	}
}

func TestReportError_LastSlideDoesNotClose(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(2), time.Second)
	tv.Mount()
	tv.Advance()

	tv.ReportError(tv.Current())

	st := tv.State()
	if tv.closeCount() != 0 {
		t.Errorf("Expected no close on error, got %d", tv.closeCount())
	}
	if st.ActiveIndex != 1 || !st.Errored || !st.Loaded {
		t.Errorf("Expected errored slide 1, got %+v", st)
	}
	if st.Notice != ErrorNotice {
		t.Errorf("Expected inline notice, got %q", st.Notice)
	}
	if st.Status != StatusPlaying {
		t.Errorf("Expected playing, got %v", st.Status)
	}
}

func TestReportLoaded_AfterErrorIgnored(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(2), time.Second)
	tv.Mount()
	tv.ReportLoaded(tv.Current())
	tv.Advance()

	a := tv.Current()
	tv.ReportError(a)
	tv.ReportLoaded(a)

	st := tv.State()
	if !st.Errored || st.Notice != ErrorNotice {
		t.Errorf("Expected slide 1 to stay errored, got %+v", st)
	}
	if tv.sched.Running() != 0 {
		t.Errorf("Expected no timer for a failed slide, got %d", tv.sched.Running())
	}

	tv.sched.Step(2 * time.Second)
	if tv.closeCount() != 0 {
		t.Errorf("Expected failed slide not to play out and close, got %d closes", tv.closeCount())
	}
	if got := tv.Current().Index; got != 1 {
		t.Errorf("Expected to remain on index 1, got %d", got)
	}
}

func TestAllFailed(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()

	for i := 0; i < 3; i++ {
		if tv.State().AllFailed {
			t.Fatalf("allFailed became true after %d failures", i)
		}
		tv.ReportError(tv.Current())
	}

	st := tv.State()
	if !st.AllFailed {
		t.Error("Expected allFailed after every slide failed")
	}
	if st.Status != StatusAllFailed {
		t.Errorf("Expected status all_failed, got %v", st.Status)
	}
	if st.Message != FallbackMessage {
		t.Errorf("Expected fallback message, got %q", st.Message)
	}

	// Navigation is inert; close remains available.
	tv.Advance()
	tv.Retreat()
	if tv.closeCount() != 0 {
		t.Errorf("Expected no close from navigation, got %d", tv.closeCount())
	}
	tv.Close()
	if tv.closeCount() != 1 {
		t.Errorf("Expected close from fallback, got %d", tv.closeCount())
	}
}

func TestStaleNotificationsIgnored(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(3), time.Second)
	tv.Mount()

	first := tv.Current()
	tv.Advance()
	tv.Retreat() // same index 0, new seq

	tv.ReportLoaded(first)
	if tv.State().Loaded {
		t.Error("Expected stale load for an earlier visit to be ignored")
	}

	tv.ReportError(first)
	st := tv.State()
	if len(st.Failed) != 0 || st.Errored {
		t.Errorf("Expected stale error to be ignored, got %+v", st)
	}

	tv.ReportLoaded(tv.Current())
	if !tv.State().Loaded {
		t.Error("Expected current load to be recorded")
	}
}

func TestUnmount(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(2), time.Second)
	tv.Mount()
	tv.ReportLoaded(tv.Current())

	if tv.sched.Running() != 1 {
		t.Fatalf("Expected 1 running timer, got %d", tv.sched.Running())
	}

	tv.Unmount()
	tv.Unmount()

	if tv.sched.Running() != 0 {
		t.Errorf("Expected timer torn down, got %d", tv.sched.Running())
	}

	tv.Advance()
	tv.Close()
	if tv.closeCount() != 0 {
		t.Errorf("Expected no onBack after unmount, got %d", tv.closeCount())
	}
	if got := tv.Current().Index; got != 0 {
		t.Errorf("Expected index unchanged after unmount, got %d", got)
	}
}

func TestSegments(t *testing.T) {
	tv := newTestViewer(t, createTestSlides(4), time.Second)
	tv.Mount()

	tv.Advance()
	tv.ReportError(tv.Current()) // 1 fails, now on 2
	tv.ReportLoaded(tv.Current())
	tv.sched.Step(456 * time.Millisecond)

	got := tv.State().Segments
	want := []int{100, 100, 46, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segments = %v, want %v", got, want)
	}
}

func TestScenario_EmptyList(t *testing.T) {
	tv := newTestViewer(t, stories.Normalize([]any{}), time.Second)
	tv.Mount()

	st := tv.State()
	if st.Status != StatusEmpty {
		t.Errorf("Expected status empty, got %v", st.Status)
	}
	if st.ActiveIndex != -1 {
		t.Errorf("Expected active index -1, got %d", st.ActiveIndex)
	}
	if st.AllFailed {
		t.Error("Expected allFailed false for empty list")
	}
	if st.Message != FallbackMessage {
		t.Errorf("Expected fallback message, got %q", st.Message)
	}
	if len(tv.activations) != 0 {
		t.Errorf("Expected no activations, got %d", len(tv.activations))
	}

	tv.Advance()
	tv.Retreat()
	if tv.closeCount() != 0 {
		t.Errorf("Expected navigation to be inert, got %d closes", tv.closeCount())
	}

	tv.Close()
	if tv.closeCount() != 1 {
		t.Errorf("Expected close via control, got %d", tv.closeCount())
	}
}

func TestScenario_BlankSource(t *testing.T) {
	slides := stories.Normalize([]any{" "})
	if len(slides) != 0 {
		t.Fatalf("Expected blank source excluded, got %v", slides)
	}

	tv := newTestViewer(t, slides, time.Second)
	tv.Mount()
	if tv.Status() != StatusEmpty {
		t.Errorf("Expected fallback for blank source, got %v", tv.Status())
	}
}

func TestScenario_FailuresSkipThenFallback(t *testing.T) {
	raw := []any{
		map[string]any{"source": "a.jpg"},
		map[string]any{"source": "b.jpg"},
	}
	tv := newTestViewer(t, stories.Normalize(raw), time.Second)
	tv.Mount()

	tv.ReportError(tv.Current())
	st := tv.State()
	if st.ActiveIndex != 1 {
		t.Fatalf("Expected immediate skip to 1, got %d", st.ActiveIndex)
	}
	if !reflect.DeepEqual(st.Failed, []int{0}) {
		t.Errorf("Expected failed [0], got %v", st.Failed)
	}

	tv.ReportError(tv.Current())
	st = tv.State()
	if !st.AllFailed || st.Status != StatusAllFailed {
		t.Errorf("Expected fallback after both failed, got %+v", st)
	}
}

func TestScenario_RapidArrowRight(t *testing.T) {
	tv := newTestViewer(t, []slide.Slide{{Source: "a.jpg"}, {Source: "b.jpg"}}, time.Second)
	tv.autoLoad = true
	tv.Mount()

	tv.HandleKey(KeyArrowRight)
	if got := tv.Current().Index; got != 1 {
		t.Fatalf("Expected slide 1 after first press, got %d", got)
	}

	tv.HandleKey(KeyArrowRight)
	tv.HandleKey(KeyArrowRight)
	tv.HandleKey(KeyArrowRight)

	if got := tv.Current().Index; got != 1 {
		t.Errorf("Expected to stay on slide 1, got %d", got)
	}
	if tv.closeCount() != 1 {
		t.Errorf("Expected onBack exactly once, got %d", tv.closeCount())
	}
}
