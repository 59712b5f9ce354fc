package session

import "time"

// Scroll decides when the message pane should follow new content. The
// pane follows while the user sits near the bottom and has not scrolled
// manually within the debounce window; a selection change or widget open
// always snaps to the bottom.
type Scroll struct {
	nearBottom int
	debounce   time.Duration

	fromBottom int
	lastManual time.Time
}

func NewScroll(nearBottom int, debounce time.Duration) *Scroll {
	return &Scroll{nearBottom: nearBottom, debounce: debounce}
}

// Observe records a manual scroll event at the given distance from the
// bottom of the pane.
func (s *Scroll) Observe(fromBottom int, now time.Time) {
	if fromBottom < 0 {
		fromBottom = 0
	}
	s.fromBottom = fromBottom
	s.lastManual = now
}

// NearBottom reports whether the last observed position is within the
// follow threshold.
func (s *Scroll) NearBottom() bool {
	return s.fromBottom <= s.nearBottom
}

// ShouldFollow reports whether the pane should snap to the bottom on a
// content update: near the bottom and not mid-scroll.
func (s *Scroll) ShouldFollow(now time.Time) bool {
	if !s.NearBottom() {
		return false
	}
	return s.lastManual.IsZero() || now.Sub(s.lastManual) >= s.debounce
}

// Reset snaps the tracked position to the bottom, as on a selection
// change or widget open.
func (s *Scroll) Reset() {
	s.fromBottom = 0
	s.lastManual = time.Time{}
}
