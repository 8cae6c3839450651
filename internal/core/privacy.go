package core

import "log/slog"

// FilterVisible returns the transactions the viewer is allowed to see,
// preserving input order. A transaction is visible when it is shared or when
// it belongs to the viewer's cost center.
//
// A non-shared transaction with no cost center belongs to nobody: it is
// hidden from every viewer and logged, since no write path produces that
// combination.
func FilterVisible(txs []Transaction, viewerCostCenterID int64) []Transaction {
	visible := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Shared {
			visible = append(visible, t)
			continue
		}
		if t.CostCenterID == nil {
			slog.Warn("transaction has no cost center and is not shared, hiding",
				"transaction_id", t.ID, "organization_id", t.OrganizationID)
			continue
		}
		if *t.CostCenterID == viewerCostCenterID {
			visible = append(visible, t)
		}
	}
	return visible
}
