// Package message defines the wire-level message model shared by the
// synchronization engine, the remote client, and the UI surfaces.
package message

import (
	"sort"
	"time"
)

// Role identifies which side of a conversation the local participant is on.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Valid reports whether the role is one of the known participant roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// Direction identifies which participant a message was sent to.
type Direction string

const (
	DirectionToTutor   Direction = "to-tutor"
	DirectionToStudent Direction = "to-student"
)

// Outgoing returns the direction of messages sent by the given role.
func Outgoing(role Role) Direction {
	if role == RoleStudent {
		return DirectionToTutor
	}
	return DirectionToStudent
}

// Incoming returns the direction of messages received by the given role.
func Incoming(role Role) Direction {
	if role == RoleStudent {
		return DirectionToStudent
	}
	return DirectionToTutor
}

// Kind distinguishes plain text messages from expiring event links
// (e.g. a booked-lesson invitation).
type Kind string

const (
	KindText  Kind = "text"
	KindEvent Kind = "event"
)

// Message is a single chat message as reconciled by the engine. Messages
// come either from the backend (canonical) or from the local overlay
// (optimistic, Pending set).
type Message struct {
	ID              string
	ConversationKey string
	Direction       Direction
	Kind            Kind
	Body            string
	SentAt          time.Time
	Read            bool

	// EventDate and EventTime are set only for KindEvent messages and
	// use the layouts "2006-01-02" and "15:04". Either may be empty or
	// malformed; consumers must tolerate both.
	EventDate string
	EventTime string

	SenderName string

	// Pending marks a locally inserted message that the backend has not
	// yet confirmed.
	Pending bool
}

// IncomingFor reports whether the message was addressed to the given role.
func (m Message) IncomingFor(role Role) bool {
	return m.Direction == Incoming(role)
}

// Normalize fills in the optional wire fields the backend is allowed to
// omit. A message without a direction is treated as incoming for the
// local role so it is never hidden from unread accounting, and a missing
// kind defaults to plain text.
func Normalize(msgs []Message, role Role) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.Direction == "" {
			m.Direction = Incoming(role)
		}
		if m.Kind == "" {
			m.Kind = KindText
		}
		out[i] = m
	}
	return out
}

// SortAscending orders messages by send time, oldest first. The sort is
// stable and ties break on ID so repeated reconciliations produce
// identical sequences.
func SortAscending(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}
