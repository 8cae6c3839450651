package core

import (
	"testing"
	"time"
)

func mustDate(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestColorForStable(t *testing.T) {
	// Case and accent variants of the same owner get the same color.
	if ColorFor("José") != ColorFor("jose") {
		t.Error("accent variants should map to the same color")
	}
	if ColorFor("ANA") != ColorFor("ana ") {
		t.Error("case variants should map to the same color")
	}
	if got := ColorFor(""); got != SharedColor {
		t.Errorf("empty name color = %q, want shared color %q", got, SharedColor)
	}
	// Repeated calls are deterministic.
	if ColorFor("Marta") != ColorFor("Marta") {
		t.Error("color mapping must be deterministic")
	}
}

func TestBillEffectiveStatus(t *testing.T) {
	today := mustDate(2025, 3, 15)
	cases := []struct {
		name string
		bill Bill
		want BillStatus
	}{
		{"pending future stays pending", Bill{Status: BillPending, DueDate: mustDate(2025, 3, 20)}, BillPending},
		{"pending today stays pending", Bill{Status: BillPending, DueDate: mustDate(2025, 3, 15)}, BillPending},
		{"pending past reads overdue", Bill{Status: BillPending, DueDate: mustDate(2025, 3, 1)}, BillOverdue},
		{"paid past stays paid", Bill{Status: BillPaid, DueDate: mustDate(2025, 3, 1)}, BillPaid},
		{"cancelled past stays cancelled", Bill{Status: BillCancelled, DueDate: mustDate(2025, 3, 1)}, BillCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.bill.EffectiveStatus(today); got != tc.want {
				t.Errorf("EffectiveStatus = %q, want %q", got, tc.want)
			}
		})
	}
}
