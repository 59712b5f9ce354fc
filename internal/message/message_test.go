package message

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOutgoingIncoming(t *testing.T) {
	if got := Outgoing(RoleStudent); got != DirectionToTutor {
		t.Errorf("Outgoing(student) = %v, want %v", got, DirectionToTutor)
	}
	if got := Outgoing(RoleTutor); got != DirectionToStudent {
		t.Errorf("Outgoing(tutor) = %v, want %v", got, DirectionToStudent)
	}
	if got := Incoming(RoleStudent); got != DirectionToStudent {
		t.Errorf("Incoming(student) = %v, want %v", got, DirectionToStudent)
	}
	if got := Incoming(RoleTutor); got != DirectionToTutor {
		t.Errorf("Incoming(tutor) = %v, want %v", got, DirectionToTutor)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	in := []Message{
		{ID: "1", Direction: DirectionToStudent, Kind: KindText},
		{ID: "2"}, // no direction, no kind
		{ID: "3", Kind: KindEvent},
	}

	got := Normalize(in, RoleStudent)

	want := []Message{
		{ID: "1", Direction: DirectionToStudent, Kind: KindText},
		{ID: "2", Direction: DirectionToStudent, Kind: KindText},
		{ID: "3", Direction: DirectionToStudent, Kind: KindEvent},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}

	// Input must not be mutated.
	if in[1].Direction != "" {
		t.Error("Normalize mutated its input")
	}
}

func TestNormalizeInfersIncomingForTutor(t *testing.T) {
	got := Normalize([]Message{{ID: "1"}}, RoleTutor)
	if got[0].Direction != DirectionToTutor {
		t.Errorf("Direction = %v, want %v", got[0].Direction, DirectionToTutor)
	}
}

func TestSortAscending(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", SentAt: base.Add(2 * time.Minute)},
		{ID: "b", SentAt: base},
		{ID: "a", SentAt: base},
	}

	SortAscending(msgs)

	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if msgs[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, msgs[i].ID, want)
		}
	}
}

func TestIncomingFor(t *testing.T) {
	m := Message{Direction: DirectionToStudent}
	if !m.IncomingFor(RoleStudent) {
		t.Error("to-student message should be incoming for student")
	}
	if m.IncomingFor(RoleTutor) {
		t.Error("to-student message should not be incoming for tutor")
	}
}
