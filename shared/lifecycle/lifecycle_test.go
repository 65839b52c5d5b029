package lifecycle

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{StatusDraft, StatusReview, true},
		{StatusReview, StatusApproved, true},
		{StatusApproved, StatusDeployed, true},
		{StatusDraft, StatusDeployed, false},
		{StatusDraft, StatusApproved, false},
		{StatusReview, StatusDraft, false},
		{StatusDeployed, StatusDraft, false},
		{StatusDeployed, StatusReview, false},
		{StatusDraft, StatusDraft, false},
		{"REVIEW", "approved", true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEventTypeForTransition(t *testing.T) {
	if ev := EventTypeForTransition(StatusDraft, StatusReview); ev != EventSubmitted {
		t.Fatalf("expected %q, got %q", EventSubmitted, ev)
	}
	if ev := EventTypeForTransition(StatusDeployed, StatusDraft); ev != "" {
		t.Fatalf("expected empty event type, got %q", ev)
	}
}

func TestEditable(t *testing.T) {
	if !Editable(StatusDraft) {
		t.Fatalf("expected draft to be editable")
	}
	for _, status := range []string{StatusReview, StatusApproved, StatusDeployed} {
		if Editable(status) {
			t.Fatalf("expected %s to be read-only", status)
		}
	}
}
