package commsutil

import "testing"

func TestBuildEventSubject(t *testing.T) {
	tests := []struct {
		name    string
		eventID string
		want    string
	}{
		{"dotted", "stracatore.note", "straca.caw.fire.stracatore.note"},
		{"empty", "", "straca.caw.fire"},
		{"wildcards", "a*b>c", "straca.caw.fire.a_b_c"},
		{"trailing dot", "order.", "straca.caw.fire.order._"},
		{"space", "my event", "straca.caw.fire.my_event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEventSubject(SubjectEventFire, tt.eventID)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildEventSubject(%q) = %q, want %q", tt.eventID, got, tt.want)
			}
		})
	}
}

func TestServiceSubjectRoundTrip(t *testing.T) {
	subject := BuildServiceSubject(SubjectRPC, "math", "add")
	if subject != "straca.rpc.math.add" {
		t.Fatalf("commsutil:subjects_test - BuildServiceSubject = %q", subject)
	}

	service, op, ok := ParseServiceSubject(SubjectRPC, "straca.rpc.app.math.add")
	if !ok || service != "app.math" || op != "add" {
		t.Errorf("commsutil:subjects_test - ParseServiceSubject = %q %q %v", service, op, ok)
	}

	for _, s := range []string{"straca.rpc", "straca.rpc.math", "other.math.add", "straca.rpc.math."} {
		if _, _, ok := ParseServiceSubject(SubjectRPC, s); ok {
			t.Errorf("commsutil:subjects_test - ParseServiceSubject(%q) should fail", s)
		}
	}
}
