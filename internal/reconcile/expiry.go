package reconcile

import (
	"time"

	"github.com/studyhall/tutormsg/internal/message"
)

const (
	eventDateLayout = "2006-01-02"
	eventTimeLayout = "15:04"
)

// FilterExpired drops event messages whose scheduled time is strictly
// before now. Plain messages pass through untouched, and so does any
// event message with a missing or unparsable date or time: a parsing
// problem must never hide a message.
func FilterExpired(msgs []message.Message, now time.Time) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind == message.KindEvent && eventExpired(m, now) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func eventExpired(m message.Message, now time.Time) bool {
	if m.EventDate == "" || m.EventTime == "" {
		return false
	}
	at, err := time.ParseInLocation(eventDateLayout+" "+eventTimeLayout, m.EventDate+" "+m.EventTime, now.Location())
	if err != nil {
		return false
	}
	return at.Before(now)
}
