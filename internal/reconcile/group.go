package reconcile

import "github.com/studyhall/tutormsg/internal/message"

// Group partitions messages into per-conversation slices, keeping only
// conversations the eligibility map explicitly marks true. Keys with no
// entry, or an explicit false, are dropped wholesale: their messages
// still exist on the backend but the conversation is closed for
// messaging, so nothing about it reaches the view.
//
// Eligibility is evaluated on every call. A conversation that was
// eligible on the previous poll cycle and is not on this one simply
// disappears from the result.
func Group(msgs []message.Message, eligible map[string]bool) map[string][]message.Message {
	out := make(map[string][]message.Message)
	for _, m := range msgs {
		if !eligible[m.ConversationKey] {
			continue
		}
		out[m.ConversationKey] = append(out[m.ConversationKey], m)
	}
	return out
}

// Keys returns the distinct conversation keys in msgs, in first-seen
// order. Used to build the eligibility query for a poll cycle.
func Keys(msgs []message.Message) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range msgs {
		if _, ok := seen[m.ConversationKey]; ok {
			continue
		}
		seen[m.ConversationKey] = struct{}{}
		keys = append(keys, m.ConversationKey)
	}
	return keys
}
