package models

import "time"

// Transaction statuses
const (
	TxStatusPending = "PENDING"
	TxStatusSuccess = "SUCCESS"
	TxStatusFailed  = "FAILED"
)

// Transaction types
const (
	TxTypeCreateEscrow   = "CREATE_ESCROW"
	TxTypeFundEscrow     = "FUND_ESCROW"
	TxTypeMarkFiatPaid   = "MARK_FIAT_PAID"
	TxTypeReleaseEscrow  = "RELEASE_ESCROW"
	TxTypeCancelEscrow   = "CANCEL_ESCROW"
	TxTypeOpenDispute    = "OPEN_DISPUTE"
	TxTypeResolveDispute = "RESOLVE_DISPUTE"
	TxTypeEvent          = "EVENT"
	TxTypeOther          = "OTHER"
)

// TransactionRecord is one ledger row per observed on-chain transaction.
// Exactly one of TransactionHash (EVM) or Signature (Solana) is set.
type TransactionRecord struct {
	ID                int64     `json:"id"`
	TransactionHash   *string   `json:"transaction_hash,omitempty"`
	Signature         *string   `json:"signature,omitempty"`
	NetworkID         int64     `json:"network_id"`
	Status            string    `json:"status"`
	Type              string    `json:"type"`
	BlockNumber       *int64    `json:"block_number,omitempty"` // block on EVM, slot on Solana
	SenderAddress     *string   `json:"sender_address,omitempty"`
	ReceiverAddress   *string   `json:"receiver_address,omitempty"`
	RelatedTradeID    *int64    `json:"related_trade_id,omitempty"`
	RelatedEscrowDBID *int64    `json:"related_escrow_db_id,omitempty"`
	// ErrorMessage carries the error text when Status is FAILED and free-form
	// JSON metadata otherwise. Known overload, kept for existing readers.
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TxID returns whichever chain-native identifier is set.
func (t *TransactionRecord) TxID() string {
	if t.TransactionHash != nil {
		return *t.TransactionHash
	}
	if t.Signature != nil {
		return *t.Signature
	}
	return ""
}
