// Package overlay holds the local optimistic state that is layered over
// polled backend data: sends awaiting confirmation and messages marked
// read before the backend has acknowledged it.
package overlay

import (
	"time"

	"github.com/studyhall/tutormsg/internal/message"
)

// PendingSend is an optimistic outgoing message awaiting confirmation.
// Body holds the exact text that was sent so a rollback can restore the
// user's input verbatim.
type PendingSend struct {
	TempID          string
	ConversationKey string
	Direction       message.Direction
	Body            string
	CreatedAt       time.Time
}

// Message converts the pending entry to a view-level message. Pending
// entries always render at the tail of their conversation until the
// backend echoes them back.
func (p PendingSend) Message() message.Message {
	return message.Message{
		ID:              p.TempID,
		ConversationKey: p.ConversationKey,
		Direction:       p.Direction,
		Kind:            message.KindText,
		Body:            p.Body,
		SentAt:          p.CreatedAt,
		Read:            true,
		Pending:         true,
	}
}

// Overlay is not safe for concurrent use; the engine serializes access.
type Overlay struct {
	pending []PendingSend
	read    map[string]struct{}
}

func New() *Overlay {
	return &Overlay{read: make(map[string]struct{})}
}

// AddPending records an optimistic send. Insertion order is preserved so
// rapid consecutive sends render in the order they were made.
func (o *Overlay) AddPending(p PendingSend) {
	o.pending = append(o.pending, p)
}

// RemovePending removes the entry with the given temporary ID and
// returns it. Rollback matches on the ID only, never on content, so an
// unrelated message with identical text is never removed.
func (o *Overlay) RemovePending(tempID string) (PendingSend, bool) {
	for i, p := range o.pending {
		if p.TempID == tempID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return p, true
		}
	}
	return PendingSend{}, false
}

// PendingFor returns the pending sends for one conversation in insertion
// order.
func (o *Overlay) PendingFor(key string) []PendingSend {
	var out []PendingSend
	for _, p := range o.pending {
		if p.ConversationKey == key {
			out = append(out, p)
		}
	}
	return out
}

// PendingCount returns the number of unconfirmed sends.
func (o *Overlay) PendingCount() int {
	return len(o.pending)
}

// Supersede removes the first pending entry matched by a canonical
// message from the backend: same conversation, same direction, same
// body, and a send time within window of the entry's creation. The
// window keeps an echo of a fresh send from clearing an unrelated older
// send with identical text. At most one entry is removed per call.
func (o *Overlay) Supersede(m message.Message, window time.Duration) bool {
	for i, p := range o.pending {
		if p.ConversationKey != m.ConversationKey || p.Direction != m.Direction || p.Body != m.Body {
			continue
		}
		d := m.SentAt.Sub(p.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		o.pending = append(o.pending[:i], o.pending[i+1:]...)
		return true
	}
	return false
}

// CompactPending drops pending sends whose conversation is no longer
// present in the grouped output, e.g. after an eligibility revocation.
// The draft was already cleared at insert time; there is nothing left to
// roll back into.
func (o *Overlay) CompactPending(has func(key string) bool) {
	kept := o.pending[:0]
	for _, p := range o.pending {
		if has(p.ConversationKey) {
			kept = append(kept, p)
		}
	}
	o.pending = kept
}

// MarkRead records message IDs as read ahead of backend confirmation.
// Marking is idempotent.
func (o *Overlay) MarkRead(ids ...string) {
	for _, id := range ids {
		o.read[id] = struct{}{}
	}
}

// IsRead reports whether the ID was locally marked read.
func (o *Overlay) IsRead(id string) bool {
	_, ok := o.read[id]
	return ok
}

// CompactRead drops locally-read IDs that the backend now also reports
// as read. Purely a memory bound; membership is monotone so dropping a
// confirmed ID never changes observable state.
func (o *Overlay) CompactRead(confirmed func(id string) bool) {
	for id := range o.read {
		if confirmed(id) {
			delete(o.read, id)
		}
	}
}
