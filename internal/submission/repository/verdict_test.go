package repository

import "testing"

func TestVerdictPredicates(t *testing.T) {
	cases := []struct {
		verdict  Verdict
		valid    bool
		final    bool
		accepted bool
	}{
		{VerdictWaiting, true, false, false},
		{VerdictAccepted, true, true, true},
		{VerdictWrongAnswer, true, true, false},
		{VerdictTimeLimitExceeded, true, true, false},
		{VerdictMemoryLimitExceeded, true, true, false},
		{VerdictOutputLimitExceeded, true, true, false},
		{VerdictRuntimeError, true, true, false},
		{VerdictCompileError, true, true, false},
		{VerdictSystemError, true, true, false},
		{Verdict(""), false, false, false},
		{Verdict("ac"), false, false, false},
		{Verdict("PASS"), false, false, false},
	}
	for _, tc := range cases {
		if got := tc.verdict.Valid(); got != tc.valid {
			t.Errorf("%q.Valid() = %v, want %v", tc.verdict, got, tc.valid)
		}
		if got := tc.verdict.IsFinal(); got != tc.final {
			t.Errorf("%q.IsFinal() = %v, want %v", tc.verdict, got, tc.final)
		}
		if got := tc.verdict.IsAccepted(); got != tc.accepted {
			t.Errorf("%q.IsAccepted() = %v, want %v", tc.verdict, got, tc.accepted)
		}
	}
}

func TestSubmissionPending(t *testing.T) {
	s := &Submission{Verdict: VerdictWaiting}
	if !s.Pending() {
		t.Error("unclaimed WJ submission should be pending")
	}
	s.Judger = "judger-a"
	if s.Pending() {
		t.Error("claimed submission should not be pending")
	}
	s = &Submission{Verdict: VerdictAccepted}
	if s.Pending() {
		t.Error("judged submission should not be pending")
	}
}
