package domain

import (
	"errors"
	"testing"
)

func TestParseActionRoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
	}{
		{"approve_receipt:r1:10", Action{Kind: ActionApproveReceipt, SubjectID: "r1", Points: 10}},
		{"reject_receipt:r1", Action{Kind: ActionRejectReceipt, SubjectID: "r1"}},
		{"custom_points:r2", Action{Kind: ActionCustomPoints, SubjectID: "r2"}},
		{"approve_custom:r2:25", Action{Kind: ActionApproveCustom, SubjectID: "r2", Points: 25}},
		{"cancel_custom:r2", Action{Kind: ActionCancelCustom, SubjectID: "r2"}},
		{"process_order:o1", Action{Kind: ActionProcessOrder, SubjectID: "o1"}},
		{"complete_order:o1", Action{Kind: ActionCompleteOrder, SubjectID: "o1"}},
	}

	for _, tc := range cases {
		got, err := ParseAction(tc.raw)
		if err != nil {
			t.Fatalf("ParseAction(%q) failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("ParseAction(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
		if got.CustomID() != tc.raw {
			t.Errorf("CustomID() = %q, want %q", got.CustomID(), tc.raw)
		}
	}
}

func TestParseActionRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"approve_receipt",
		"approve_receipt:r1",
		"approve_receipt:r1:abc",
		"approve_receipt:r1:0",
		"reject_receipt:r1:5",
		"launch_rockets:r1",
		"process_order::",
		"a:b:c:d",
	} {
		if _, err := ParseAction(raw); !errors.Is(err, ErrInvalidAction) {
			t.Errorf("ParseAction(%q) error = %v, want ErrInvalidAction", raw, err)
		}
	}
}

func TestIsOrderAction(t *testing.T) {
	if !(Action{Kind: ActionProcessOrder}).IsOrderAction() {
		t.Error("expected process_order to be an order action")
	}
	if (Action{Kind: ActionApproveReceipt}).IsOrderAction() {
		t.Error("expected approve_receipt not to be an order action")
	}
}
