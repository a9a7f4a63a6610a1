package fsm

import "testing"

type state string
type action string

func TestTable(t *testing.T) {
	t.Parallel()

	tbl := Table[state, action]{
		"pending": {"approve": "approved", "reject": "rejected"},
	}
	if next, ok := tbl.Next("pending", "approve"); !ok || next != "approved" {
		t.Fatalf("next=%q ok=%v", next, ok)
	}
	if _, ok := tbl.Next("approved", "approve"); ok {
		t.Fatal("terminal state accepted an action")
	}
	if _, ok := tbl.Next("pending", "edit"); ok {
		t.Fatal("unknown action accepted")
	}

	if err := tbl.Validate("approved", "rejected"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := tbl.Validate("approved"); err == nil {
		t.Fatal("missing terminal state not reported")
	}
}
