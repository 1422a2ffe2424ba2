package model

import "testing"

func TestValidateQueueTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusDeadLetter, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusFailed, StatusDeadLetter, true},
		{StatusFailed, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusDeadLetter, StatusPending, false},
		{StatusPending, StatusCompleted, false},
	}
	for _, tc := range cases {
		err := ValidateQueueTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s -> %s: expected error, got nil", tc.from, tc.to)
		}
	}
}

func TestValidateQueueTransition_UnknownStatus(t *testing.T) {
	if err := ValidateQueueTransition(Status("limbo"), StatusPending); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
