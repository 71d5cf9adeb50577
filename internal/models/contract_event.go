package models

import "time"

// ContractEvent archives every decoded on-chain event as received, before any
// reconciliation. Degraded marks events recovered by discriminator match only.
type ContractEvent struct {
	ID          int64          `json:"id"`
	NetworkID   int64          `json:"network_id"`
	EventName   string         `json:"event_name"`
	TxID        string         `json:"tx_id"` // hash on EVM, signature on Solana
	BlockNumber int64          `json:"block_number"`
	Payload     map[string]any `json:"payload"`
	Degraded    bool           `json:"degraded"`
	CreatedAt   time.Time      `json:"created_at"`
}
