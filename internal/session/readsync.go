package session

import "github.com/studyhall/tutormsg/internal/message"

// UnreadIncoming returns the IDs of incoming messages that neither the
// backend nor the local overlay considers read. These are the messages
// the read-state synchronizer promotes when a conversation is opened.
func UnreadIncoming(msgs []message.Message, role message.Role, locallyRead func(id string) bool) []string {
	var ids []string
	for _, m := range msgs {
		if !m.IncomingFor(role) || m.Read || locallyRead(m.ID) {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids
}
