package viewer

// Key names understood by HandleKey. They match DOM KeyboardEvent.key
// values so browser clients can forward them unchanged.
const (
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyEscape     = "Escape"
)

// HandleKey maps a key press to a transition and reports whether the key is
// bound. Keys are ignored unless the viewer is mounted.
func (v *Viewer) HandleKey(key string) bool {
	if !v.listening() {
		return false
	}

	switch key {
	case KeyArrowLeft:
		v.Retreat()
	case KeyArrowRight:
		v.Advance()
	case KeyEscape:
		v.Close()
	default:
		return false
	}
	return true
}

// HandleTap maps a tap at horizontal position x on a surface of the given
// width: the left half retreats, the right half advances. It reports whether
// the tap was used.
func (v *Viewer) HandleTap(x, width float64) bool {
	if width <= 0 || !v.listening() {
		return false
	}

	if x < width/2 {
		v.Retreat()
	} else {
		v.Advance()
	}
	return true
}

// listening reports whether the input surface is attached.
func (v *Viewer) listening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted && !v.unmounted
}
