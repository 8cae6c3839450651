package core

import "testing"

func TestFinancialScore(t *testing.T) {
	cases := []struct {
		name     string
		expenses int64
		income   int64
		want     int
	}{
		{"no income", 5000, 0, 100},
		{"ratio 1.1", 110000, 100000, 90},
		{"ratio 1.5", 150000, 100000, 50},
		{"ratio 2.0 hits floor", 200000, 100000, 20},
		{"ratio 5.0 stays at floor", 500000, 100000, 20},
		{"ratio 0.95", 95000, 100000, 60},
		{"ratio 0.8", 80000, 100000, 80},
		{"ratio 0.5", 50000, 100000, 90},
		{"exactly 1.0 takes stricter bucket", 100000, 100000, 60},
		{"exactly 0.9", 90000, 100000, 80},
		{"exactly 0.7", 70000, 100000, 90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FinancialScore(Money{Cents: tc.expenses}, Money{Cents: tc.income})
			if got != tc.want {
				t.Errorf("FinancialScore(%d, %d) = %d, want %d", tc.expenses, tc.income, got, tc.want)
			}
		})
	}
}
