package engine

import (
	"context"
	"sync"

	"github.com/studyhall/tutormsg/internal/message"
)

// fakeBackend is an in-memory backend for engine tests. All knobs are
// safe for concurrent use.
type fakeBackend struct {
	mu sync.Mutex

	messages    []message.Message
	eligible    map[string]bool
	counterpart string

	fetchErr       error
	eligibilityErr error
	appendErr      error
	resolveErr     error
	markReadErr    error

	fetchCalls    int
	appendCalls   int
	markReadCalls []string

	// appendEcho makes AppendMessage add the canonical message to the
	// store so the next fetch returns it, like the real backend.
	appendEcho bool
	nextID     int

	// appendGate, when set, blocks AppendMessage until closed. Held
	// outside the mutex so other calls proceed while append is in flight.
	appendGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		eligible:    make(map[string]bool),
		counterpart: "tut-9",
		appendEcho:  true,
	}
}

func (f *fakeBackend) setMessages(msgs ...message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = msgs
}

func (f *fakeBackend) setEligible(key string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eligible[key] = ok
}

func (f *fakeBackend) FetchMessages(ctx context.Context) ([]message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]message.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeBackend) AppendMessage(ctx context.Context, key string, dir message.Direction, body, recipientID string) (message.Message, error) {
	f.mu.Lock()
	gate := f.appendGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.appendErr != nil {
		return message.Message{}, f.appendErr
	}
	f.nextID++
	m := message.Message{
		ID:              "srv-" + string(rune('0'+f.nextID)),
		ConversationKey: key,
		Direction:       dir,
		Kind:            message.KindText,
		Body:            body,
		SentAt:          testNow(),
		Read:            true,
	}
	if f.appendEcho {
		f.messages = append(f.messages, m)
	}
	return m, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, id)
	return f.markReadErr
}

func (f *fakeBackend) ResolveCounterpart(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.counterpart, nil
}

func (f *fakeBackend) GetEligibility(ctx context.Context, keys []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eligibilityErr != nil {
		return nil, f.eligibilityErr
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = f.eligible[k]
	}
	return out, nil
}

func (f *fakeBackend) readAcks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.markReadCalls))
	copy(out, f.markReadCalls)
	return out
}
