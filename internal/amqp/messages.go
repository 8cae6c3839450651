package amqp

import (
	"encoding/json"
	"time"
)

// LinkSyncMessage asks the sync worker to pull accounts and transactions for
// one bank link. It carries identifiers only; the worker reads the rest from
// the store.
type LinkSyncMessage struct {
	LinkID         int64     `json:"link_id"`
	OrganizationID int64     `json:"organization_id"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewLinkSyncMessage(orgID, linkID int64) *LinkSyncMessage {
	return &LinkSyncMessage{
		LinkID:         linkID,
		OrganizationID: orgID,
		Timestamp:      time.Now(),
	}
}

func (m *LinkSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LinkSyncMessageFromJSON(data []byte) (*LinkSyncMessage, error) {
	var msg LinkSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// LedgerEventMessage announces a ledger change (created, updated, deleted
// transaction) so downstream consumers such as the export worker can react.
type LedgerEventMessage struct {
	TransactionID  int64     `json:"transaction_id"`
	OrganizationID int64     `json:"organization_id"`
	Action         string    `json:"action"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(orgID, txID int64, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID:  txID,
		OrganizationID: orgID,
		Action:         action,
		Timestamp:      time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
