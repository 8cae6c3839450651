package core

import "time"

const (
	LinkPendingSync LinkStatus = "pending_sync"
	LinkSynced      LinkStatus = "synced"
	LinkExpired     LinkStatus = "expired"
	LinkError       LinkStatus = "error"
)

type LinkStatus string

// BankLink is a registered connection to an institution at the open-banking
// provider. Accounts and transactions flow in through it during a sync.
type BankLink struct {
	ID             int64
	OrganizationID int64
	ProviderLinkID string
	Institution    string
	Status         LinkStatus
	LastSyncedAt   *time.Time
}

// Terminal reports whether the link can never become synced again without
// re-registration.
func (s LinkStatus) Terminal() bool {
	return s == LinkExpired || s == LinkError
}
