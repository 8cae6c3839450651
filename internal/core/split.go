package core

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Share is one (cost center, percentage) pair of a proposed split.
type Share struct {
	CostCenterID int64
	Percentage   float64 // 0-100
}

// SplitAmount is the computed allocation for one cost center.
type SplitAmount struct {
	CostCenterID int64
	Amount       Money
}

var (
	ErrNoShares      = errors.New("no shares provided")
	ErrBadSplitTotal = errors.New("split percentages must sum to 100")
)

var (
	hundred      = decimal.NewFromInt(100)
	sumTolerance = decimal.RequireFromString("0.01")
)

// ValidateShares checks that every percentage lies in [0,100] and that the
// percentages sum to 100 within a ±0.01 tolerance. This runs before any
// write; a failing set of shares must never reach the store.
func ValidateShares(shares []Share) error {
	if len(shares) == 0 {
		return ErrNoShares
	}
	sum := decimal.Zero
	for _, s := range shares {
		p := decimal.NewFromFloat(s.Percentage)
		if p.IsNegative() || p.GreaterThan(hundred) {
			return ErrBadPercentage
		}
		sum = sum.Add(p)
	}
	if sum.Sub(hundred).Abs().GreaterThan(sumTolerance) {
		return ErrBadSplitTotal
	}
	return nil
}

// ComputeSplits allocates a total amount across shares by percentage.
//
// Each share gets floor(total * percentage / 100) cents; the cents left over
// are handed out one at a time in order of largest fractional remainder
// (ties keep input order), so the returned amounts always sum exactly to the
// total. Callers recompute all amounts whenever the total or any percentage
// changes; percentages are never rebalanced here.
func ComputeSplits(total Money, shares []Share) ([]SplitAmount, error) {
	if total.Cents < 0 {
		return nil, ErrInvalidAmount
	}
	if err := ValidateShares(shares); err != nil {
		return nil, err
	}

	totalD := decimal.NewFromInt(total.Cents)
	out := make([]SplitAmount, len(shares))
	order := make([]int, len(shares))
	fracs := make([]decimal.Decimal, len(shares))

	var allocated int64
	for i, s := range shares {
		raw := totalD.Mul(decimal.NewFromFloat(s.Percentage)).Div(hundred)
		base := raw.Floor()
		out[i] = SplitAmount{CostCenterID: s.CostCenterID, Amount: Money{Cents: base.IntPart()}}
		fracs[i] = raw.Sub(base)
		order[i] = i
		allocated += base.IntPart()
	}

	sort.SliceStable(order, func(a, b int) bool {
		return fracs[order[a]].GreaterThan(fracs[order[b]])
	})

	left := total.Cents - allocated
	for ; left > 0; left-- {
		out[order[int(left-1)%len(order)]].Amount.Cents++
	}
	// Percentages summing just above 100 within the tolerance can allocate
	// more than the total; hand cents back starting from the smallest
	// remainders until the sum matches again.
	for i := len(order) - 1; left < 0; i-- {
		if i < 0 {
			i = len(order) - 1
		}
		if out[order[i]].Amount.Cents > 0 {
			out[order[i]].Amount.Cents--
			left++
		}
	}

	return out, nil
}

// SharesFromSplits extracts the percentage shares of existing split rows,
// used to recompute amounts after the parent transaction's total changes.
func SharesFromSplits(splits []Split) []Share {
	shares := make([]Share, len(splits))
	for i, sp := range splits {
		shares[i] = Share{CostCenterID: sp.CostCenterID, Percentage: sp.Percentage}
	}
	return shares
}
