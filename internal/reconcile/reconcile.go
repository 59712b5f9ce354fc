// Package reconcile merges polled backend messages with the local
// optimistic overlay into the view model the widget renders.
package reconcile

import (
	"sort"
	"time"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/overlay"
)

// ViewModel is the reconciled read model: per-conversation ordered
// message sequences plus unread counts. It is rebuilt wholesale on every
// reconciliation and treated as immutable by consumers.
type ViewModel struct {
	Conversations map[string][]message.Message
	Unread        map[string]int
	TotalUnread   int
}

// EmptyViewModel returns a view model with no conversations. Used as the
// engine's initial state before the first successful poll.
func EmptyViewModel() *ViewModel {
	return &ViewModel{
		Conversations: make(map[string][]message.Message),
		Unread:        make(map[string]int),
	}
}

// Has reports whether the conversation is present.
func (vm *ViewModel) Has(key string) bool {
	_, ok := vm.Conversations[key]
	return ok
}

// Keys returns the conversation keys sorted lexicographically, giving
// auto-selection and list rendering a stable order.
func (vm *ViewModel) Keys() []string {
	keys := make([]string, 0, len(vm.Conversations))
	for k := range vm.Conversations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Messages returns the ordered messages for a conversation, or nil.
func (vm *ViewModel) Messages(key string) []message.Message {
	return vm.Conversations[key]
}

// Reconciler builds view models for one participant role.
type Reconciler struct {
	Role message.Role

	// SupersedeWindow bounds how far a canonical message's send time may
	// drift from a pending entry's creation time and still supersede it.
	SupersedeWindow time.Duration
}

// Supersede removes every pending entry matched by a canonical message
// in grouped: same conversation, direction, and body, with a send time
// within the window of the entry's creation. First match in ascending
// message order wins, and each canonical message consumes at most one
// entry.
//
// This pass must run exactly once per fresh fetch. Re-running it over
// cached groups would let an old canonical message swallow a pending
// entry inserted after that poll completed.
func (r Reconciler) Supersede(grouped map[string][]message.Message, ov *overlay.Overlay) {
	for _, canonical := range grouped {
		msgs := make([]message.Message, len(canonical))
		copy(msgs, canonical)
		message.SortAscending(msgs)
		for _, m := range msgs {
			ov.Supersede(m, r.SupersedeWindow)
		}
	}
}

// Reconcile merges grouped canonical messages with the overlay:
//
//   - pending sends are appended at the tail of their conversation,
//   - unread counts treat locally-read IDs as read regardless of the
//     backend flag.
//
// Reconcile never mutates ov, so it can rebuild the view after any
// overlay change without consuming pending entries; only Supersede
// removes them.
func (r Reconciler) Reconcile(grouped map[string][]message.Message, ov *overlay.Overlay) *ViewModel {
	vm := EmptyViewModel()

	for key, canonical := range grouped {
		msgs := make([]message.Message, len(canonical))
		copy(msgs, canonical)
		message.SortAscending(msgs)

		for _, p := range ov.PendingFor(key) {
			msgs = append(msgs, p.Message())
		}

		unread := 0
		for _, m := range msgs {
			if m.IncomingFor(r.Role) && !m.Read && !ov.IsRead(m.ID) {
				unread++
			}
		}

		vm.Conversations[key] = msgs
		vm.Unread[key] = unread
		vm.TotalUnread += unread
	}

	return vm
}
