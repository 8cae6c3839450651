package core

// FinancialScore grades a month's spending against income on a 0-100 scale.
// With no income the score is 100. Otherwise the expense/income ratio maps to
// a step function; the checks are ordered so an exact boundary ratio lands in
// the stricter bucket.
//
//	ratio > 1.0 -> max(20, 100 - (ratio-1)*100)
//	ratio > 0.9 -> 60
//	ratio > 0.7 -> 80
//	otherwise   -> 90
func FinancialScore(totalExpenses, totalIncome Money) int {
	if totalIncome.Cents <= 0 {
		return 100
	}
	ratio := float64(totalExpenses.Cents) / float64(totalIncome.Cents)
	switch {
	case ratio > 1.0:
		score := 100 - int((ratio-1)*100)
		if score < 20 {
			return 20
		}
		return score
	case ratio > 0.9:
		return 60
	case ratio > 0.7:
		return 80
	default:
		return 90
	}
}
