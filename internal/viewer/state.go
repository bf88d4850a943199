package viewer

import (
	"math"

	"github.com/agleyzer/linkinbio/internal/slide"
)

// Status is the top-level state of a viewer.
type Status uint8

const (
	// StatusEmpty means there are no slides to show.
	StatusEmpty Status = iota
	// StatusAllFailed means every slide failed to load.
	StatusAllFailed
	// StatusPlaying is normal playback.
	StatusPlaying
	// StatusClosed means onBack has fired; it is terminal.
	StatusClosed
)

// String returns the status name used in logs and JSON.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusAllFailed:
		return "all_failed"
	case StatusPlaying:
		return "playing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Fallback reports whether the status renders the fallback view.
func (s Status) Fallback() bool {
	return s == StatusEmpty || s == StatusAllFailed
}

const (
	// FallbackMessage is shown when no viable slides exist.
	FallbackMessage = "No offer images found (or they failed to load). Add images to the offers directory and update the stories list."

	// ErrorNotice is shown while the active slide has failed to load.
	ErrorNotice = "Failed to load this offer image. Tap right to skip."
)

// State is a point-in-time snapshot of a viewer.
type State struct {
	Status      Status       `json:"status"`
	ActiveIndex int          `json:"active_index"`
	Seq         uint64       `json:"seq"`
	Progress    float64      `json:"progress"`
	Loaded      bool         `json:"loaded"`
	Errored     bool         `json:"errored"`
	Failed      []int        `json:"failed"`
	AllFailed   bool         `json:"all_failed"`
	Total       int          `json:"total"`
	Slide       *slide.Slide `json:"slide,omitempty"`
	Label       string       `json:"label,omitempty"`
	Segments    []int        `json:"segments"`
	Notice      string       `json:"notice,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// State returns a snapshot of the viewer.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := State{
		Status:      v.statusLocked(),
		ActiveIndex: v.active,
		Seq:         v.seq,
		Progress:    v.progress,
		Loaded:      v.loaded,
		Errored:     v.errored,
		Failed:      v.failures.indices(),
		AllFailed:   v.failures.allFailed(),
		Total:       len(v.slides),
		Segments:    segmentFill(len(v.slides), v.active, v.progress),
	}

	if v.active >= 0 {
		s := v.slides[v.active]
		st.Slide = &s
		st.Label = s.Label(v.active)
	}

	if st.Status.Fallback() {
		st.Message = FallbackMessage
	} else if v.errored {
		st.Notice = ErrorNotice
	}

	return st
}

// Status returns the viewer's top-level state.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.statusLocked()
}

func (v *Viewer) statusLocked() Status {
	switch {
	case v.hasClosed:
		return StatusClosed
	case len(v.slides) == 0:
		return StatusEmpty
	case v.failures.allFailed():
		return StatusAllFailed
	default:
		return StatusPlaying
	}
}

// segmentFill returns the fill percentage of each progress segment. Slides
// before the active one are full and slides after it empty, regardless of
// their failure status.
func segmentFill(total, active int, progress float64) []int {
	fill := make([]int, total)
	for i := range fill {
		switch {
		case i < active:
			fill[i] = 100
		case i > active:
			fill[i] = 0
		default:
			fill[i] = int(math.Round(progress * 100))
		}
	}
	return fill
}
