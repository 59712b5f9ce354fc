package reconcile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/overlay"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func incoming(id, key, body string, at time.Time, read bool) message.Message {
	return message.Message{
		ID: id, ConversationKey: key, Direction: message.DirectionToStudent,
		Kind: message.KindText, Body: body, SentAt: at, Read: read,
	}
}

func outgoing(id, key, body string, at time.Time) message.Message {
	return message.Message{
		ID: id, ConversationKey: key, Direction: message.DirectionToTutor,
		Kind: message.KindText, Body: body, SentAt: at, Read: true,
	}
}

func newReconciler() Reconciler {
	return Reconciler{Role: message.RoleStudent, SupersedeWindow: 2 * time.Minute}
}

func TestGroupDropsIneligibleWholesale(t *testing.T) {
	msgs := []message.Message{
		incoming("1", "c1", "a", t0, false),
		incoming("2", "c2", "b", t0, false),
		incoming("3", "c3", "c", t0, false),
	}
	eligible := map[string]bool{
		"c1": true,
		"c2": false,
		// c3 has no entry
	}

	got := Group(msgs, eligible)

	if _, ok := got["c1"]; !ok {
		t.Error("c1 should be present")
	}
	if _, ok := got["c2"]; ok {
		t.Error("explicit false must drop the conversation")
	}
	if _, ok := got["c3"]; ok {
		t.Error("missing entry must drop the conversation")
	}
}

func TestKeysFirstSeenOrder(t *testing.T) {
	msgs := []message.Message{
		{ConversationKey: "b"},
		{ConversationKey: "a"},
		{ConversationKey: "b"},
	}
	got := Keys(msgs)
	want := []string{"b", "a"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileSortsAndCounts(t *testing.T) {
	grouped := map[string][]message.Message{
		"c1": {
			incoming("2", "c1", "second", t0.Add(time.Minute), false),
			incoming("1", "c1", "first", t0, true),
			outgoing("3", "c1", "mine", t0.Add(2*time.Minute)),
		},
	}

	vm := newReconciler().Reconcile(grouped, overlay.New())

	msgs := vm.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].ID != "1" || msgs[1].ID != "2" || msgs[2].ID != "3" {
		t.Errorf("order = %s %s %s, want 1 2 3", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
	if vm.Unread["c1"] != 1 {
		t.Errorf("Unread[c1] = %d, want 1", vm.Unread["c1"])
	}
	if vm.TotalUnread != 1 {
		t.Errorf("TotalUnread = %d, want 1", vm.TotalUnread)
	}
}

func TestReconcileLocallyReadOverride(t *testing.T) {
	grouped := map[string][]message.Message{
		"c1": {
			incoming("1", "c1", "a", t0, false),
			incoming("2", "c1", "b", t0, false),
		},
	}
	ov := overlay.New()
	ov.MarkRead("1")

	vm := newReconciler().Reconcile(grouped, ov)

	if vm.Unread["c1"] != 1 {
		t.Errorf("Unread[c1] = %d, want 1 (locally-read override)", vm.Unread["c1"])
	}
}

func TestReconcileAppendsPendingAtTail(t *testing.T) {
	grouped := map[string][]message.Message{
		"c1": {incoming("1", "c1", "a", t0.Add(time.Hour), false)},
	}
	ov := overlay.New()
	ov.AddPending(overlay.PendingSend{
		TempID: "tmp-1", ConversationKey: "c1",
		Direction: message.DirectionToTutor, Body: "on my way",
		CreatedAt: t0, // older than the canonical message
	})

	vm := newReconciler().Reconcile(grouped, ov)

	msgs := vm.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if !last.Pending || last.ID != "tmp-1" {
		t.Errorf("tail message = %+v, want pending tmp-1", last)
	}
	// An own pending message never counts as unread.
	if vm.Unread["c1"] != 1 {
		t.Errorf("Unread[c1] = %d, want 1", vm.Unread["c1"])
	}
}

func TestReconcileSupersedesPending(t *testing.T) {
	// N sends followed by N matching canonical results leave exactly N
	// messages with that body, and an empty pending set.
	const n = 3
	ov := overlay.New()
	var canonical []message.Message
	for i := 0; i < n; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		ov.AddPending(overlay.PendingSend{
			TempID: "tmp-" + string(rune('a'+i)), ConversationKey: "c1",
			Direction: message.DirectionToTutor, Body: "same text", CreatedAt: at,
		})
		canonical = append(canonical, outgoing("srv-"+string(rune('a'+i)), "c1", "same text", at.Add(time.Second)))
	}
	grouped := map[string][]message.Message{"c1": canonical}

	r := newReconciler()
	r.Supersede(grouped, ov)
	vm := r.Reconcile(grouped, ov)

	if ov.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", ov.PendingCount())
	}
	count := 0
	for _, m := range vm.Messages("c1") {
		if m.Body == "same text" {
			count++
		}
	}
	if count != n {
		t.Errorf("got %d messages with body, want %d (no ghost duplicates)", count, n)
	}
}

func TestReconcileLeavesPendingUntouched(t *testing.T) {
	// A cached canonical message with identical text must not swallow a
	// pending entry added after the last fetch. Only Supersede, run once
	// against freshly fetched groups, may consume pending entries.
	grouped := map[string][]message.Message{
		"c1": {outgoing("srv-1", "c1", "hello there", t0)},
	}
	ov := overlay.New()
	ov.AddPending(overlay.PendingSend{
		TempID: "tmp-1", ConversationKey: "c1",
		Direction: message.DirectionToTutor, Body: "hello there",
		CreatedAt: t0.Add(30 * time.Second),
	})

	r := newReconciler()
	vm := r.Reconcile(grouped, ov)
	vm = r.Reconcile(grouped, ov)

	if ov.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", ov.PendingCount())
	}
	msgs := vm.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2 (canonical plus pending)", len(msgs))
	}
	if !msgs[1].Pending || msgs[1].ID != "tmp-1" {
		t.Errorf("tail message = %+v, want pending tmp-1", msgs[1])
	}
}

func TestReconcileIdempotentOnSameInput(t *testing.T) {
	grouped := map[string][]message.Message{
		"c1": {outgoing("srv-1", "c1", "hello", t0)},
	}
	ov := overlay.New()
	ov.AddPending(overlay.PendingSend{
		TempID: "tmp-1", ConversationKey: "c1",
		Direction: message.DirectionToTutor, Body: "hello", CreatedAt: t0,
	})

	r := newReconciler()
	r.Supersede(grouped, ov)
	first := r.Reconcile(grouped, ov)
	second := r.Reconcile(grouped, ov)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-reconcile changed the view (-first +second):\n%s", diff)
	}
	if len(second.Messages("c1")) != 1 {
		t.Errorf("len = %d, want 1", len(second.Messages("c1")))
	}
}

func TestEmptyViewModel(t *testing.T) {
	vm := EmptyViewModel()
	if vm.Has("anything") {
		t.Error("empty view model should have no conversations")
	}
	if len(vm.Keys()) != 0 {
		t.Error("Keys() should be empty")
	}
}
