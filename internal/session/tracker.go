// Package session tracks the per-widget UI state around the reconciled
// view: which conversation is open, which messages arrived after it was
// opened, the new-message banner, and scroll following.
package session

import (
	"time"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/reconcile"
)

// Snapshot is the externally visible selection state.
type Snapshot struct {
	SelectedKey   string
	OpenedAt      time.Time
	NewSinceOpen  int
	BannerVisible bool
	WidgetOpen    bool
}

// Tracker is the selection state machine. It is not safe for concurrent
// use; the engine serializes access.
type Tracker struct {
	clock func() time.Time

	widgetOpen    bool
	selectedKey   string
	openedAt      time.Time
	newSinceOpen  map[string]struct{}
	bannerVisible bool

	// syncedKey is the conversation the read-state synchronizer already
	// processed. It only changes when the selection changes, so the
	// synchronizer runs once per selection even if more unread messages
	// show up while the conversation stays open.
	syncedKey string
}

func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{clock: clock, newSinceOpen: make(map[string]struct{})}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		SelectedKey:   t.selectedKey,
		OpenedAt:      t.openedAt,
		NewSinceOpen:  len(t.newSinceOpen),
		BannerVisible: t.bannerVisible,
		WidgetOpen:    t.widgetOpen,
	}
}

// SelectedKey returns the open conversation key, or "" when unselected.
func (t *Tracker) SelectedKey() string { return t.selectedKey }

// WidgetOpen reports whether the widget is mounted.
func (t *Tracker) WidgetOpen() bool { return t.widgetOpen }

// BannerVisible reports whether the new-message banner is showing.
func (t *Tracker) BannerVisible() bool { return t.bannerVisible }

// NewCount returns the number of messages that arrived after the
// conversation was opened.
func (t *Tracker) NewCount() int { return len(t.newSinceOpen) }

// SetOpen records the widget mount state. Closing the widget leaves the
// selected state entirely: the selection, open timestamp, arrival set
// and banner are all cleared.
func (t *Tracker) SetOpen(open bool) {
	t.widgetOpen = open
	if !open {
		t.clear()
	}
}

// Select makes key the open conversation. While the widget is open the
// open timestamp is recorded and the arrival set and banner reset.
// Re-selecting the current key restarts the open window but does not
// reset the read-sync marker.
func (t *Tracker) Select(key string) {
	if key != t.selectedKey {
		t.syncedKey = ""
	}
	t.selectedKey = key
	t.newSinceOpen = make(map[string]struct{})
	t.bannerVisible = false
	if t.widgetOpen {
		t.openedAt = t.clock()
	} else {
		t.openedAt = time.Time{}
	}
}

// Clear resets to the unselected state.
func (t *Tracker) Clear() {
	t.clear()
}

func (t *Tracker) clear() {
	t.selectedKey = ""
	t.syncedKey = ""
	t.openedAt = time.Time{}
	t.newSinceOpen = make(map[string]struct{})
	t.bannerVisible = false
}

// Validate checks the selection against a freshly reconciled view and
// clears it when the conversation is gone (eligibility revoked, or no
// messages remain). Runs after every reconciliation, not only on user
// action. Returns true if the selection was reset.
func (t *Tracker) Validate(vm *reconcile.ViewModel) bool {
	if t.selectedKey == "" {
		return false
	}
	if vm.Has(t.selectedKey) {
		return false
	}
	t.clear()
	return true
}

// DetectArrivals scans the selected conversation for incoming messages
// sent strictly after the conversation was opened and records the ones
// not seen before. Any addition shows the banner. Returns the number of
// newly recorded messages.
func (t *Tracker) DetectArrivals(msgs []message.Message, role message.Role) int {
	if t.selectedKey == "" || t.openedAt.IsZero() {
		return 0
	}
	added := 0
	for _, m := range msgs {
		if !m.IncomingFor(role) || !m.SentAt.After(t.openedAt) {
			continue
		}
		if _, ok := t.newSinceOpen[m.ID]; ok {
			continue
		}
		t.newSinceOpen[m.ID] = struct{}{}
		added++
	}
	if added > 0 {
		t.bannerVisible = true
	}
	return added
}

// DismissBanner hides the banner without forgetting the arrivals, so
// scrolling back up does not re-trigger it for the same messages.
func (t *Tracker) DismissBanner() {
	t.bannerVisible = false
}

// NeedsReadSync reports whether the read-state synchronizer still has to
// run for the current selection.
func (t *Tracker) NeedsReadSync() bool {
	return t.widgetOpen && t.selectedKey != "" && t.syncedKey != t.selectedKey
}

// MarkReadSynced records that the synchronizer processed the current
// selection.
func (t *Tracker) MarkReadSynced() {
	t.syncedKey = t.selectedKey
}

// RemoveArrivals drops the given IDs from the arrival set (they were
// just marked read) and hides the banner once the set is empty.
func (t *Tracker) RemoveArrivals(ids []string) {
	for _, id := range ids {
		delete(t.newSinceOpen, id)
	}
	if len(t.newSinceOpen) == 0 {
		t.bannerVisible = false
	}
}
