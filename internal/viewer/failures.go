package viewer

import "sort"

// failureTracker records which slide indices failed to load. The set only
// grows during a viewer's lifetime. Callers hold the viewer lock.
type failureTracker struct {
	failed map[int]struct{}
	total  int
}

func newFailureTracker(total int) *failureTracker {
	return &failureTracker{
		failed: make(map[int]struct{}),
		total:  total,
	}
}

// add marks index as failed and reports whether it was new.
func (f *failureTracker) add(index int) bool {
	if _, ok := f.failed[index]; ok {
		return false
	}
	f.failed[index] = struct{}{}
	return true
}

func (f *failureTracker) has(index int) bool {
	_, ok := f.failed[index]
	return ok
}

func (f *failureTracker) len() int {
	return len(f.failed)
}

// allFailed is false for an empty list; emptiness is its own state.
func (f *failureTracker) allFailed() bool {
	return f.total > 0 && len(f.failed) >= f.total
}

// next returns the smallest index after from that has not failed, or -1.
func (f *failureTracker) next(from int) int {
	for i := from + 1; i < f.total; i++ {
		if !f.has(i) {
			return i
		}
	}
	return -1
}

// prev returns the largest index before from that has not failed, or -1.
func (f *failureTracker) prev(from int) int {
	for i := from - 1; i >= 0; i-- {
		if !f.has(i) {
			return i
		}
	}
	return -1
}

// indices returns the failed indices in ascending order.
func (f *failureTracker) indices() []int {
	out := make([]int, 0, len(f.failed))
	for i := range f.failed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
