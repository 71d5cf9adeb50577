package models

import "time"

// Auto-cancellation attempt statuses. BALANCE_CHECK marks an attempt that was
// skipped because the on-chain balance probe contradicted the ledger.
const (
	AutoCancelStatusPending      = "PENDING"
	AutoCancelStatusSuccess      = "SUCCESS"
	AutoCancelStatusFailed       = "FAILED"
	AutoCancelStatusBalanceCheck = "BALANCE_CHECK"
)

type ContractAutoCancellation struct {
	ID              int64     `json:"id"`
	EscrowDBID      int64     `json:"escrow_db_id"`
	NetworkID       int64     `json:"network_id"`
	Status          string    `json:"status"`
	TransactionHash *string   `json:"transaction_hash,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
