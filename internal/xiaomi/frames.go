package xiaomi

// FrameTracker remembers the last frame counter per sender so repeated
// broadcasts of the same measurement can be skipped. It is not safe for
// concurrent use.
type FrameTracker struct {
	last map[string]uint8
}

func NewFrameTracker() *FrameTracker {
	return &FrameTracker{last: make(map[string]uint8)}
}

// Duplicate records counter for mac and reports whether it equals the
// previously recorded counter for the same mac.
func (t *FrameTracker) Duplicate(mac string, counter uint8) bool {
	prev, ok := t.last[mac]
	t.last[mac] = counter
	return ok && prev == counter
}
