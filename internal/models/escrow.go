package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Escrow states
const (
	EscrowStateCreated       = "CREATED"
	EscrowStateFunded        = "FUNDED"
	EscrowStateDisputed      = "DISPUTED"
	EscrowStateReleased      = "RELEASED"
	EscrowStateResolved      = "RESOLVED"
	EscrowStateCancelled     = "CANCELLED"
	EscrowStateAutoCancelled = "AUTO_CANCELLED"
)

// escrowStateRank orders states along the forward-only lattice.
// Terminal states share the top rank; there are no lateral moves between them.
var escrowStateRank = map[string]int{
	EscrowStateCreated:       1,
	EscrowStateFunded:        2,
	EscrowStateDisputed:      3,
	EscrowStateReleased:      4,
	EscrowStateResolved:      4,
	EscrowStateCancelled:     4,
	EscrowStateAutoCancelled: 4,
}

func EscrowStateRank(state string) int {
	return escrowStateRank[state]
}

func IsTerminalEscrowState(state string) bool {
	switch state {
	case EscrowStateReleased, EscrowStateResolved, EscrowStateCancelled, EscrowStateAutoCancelled:
		return true
	}
	return false
}

// CanAdvanceEscrow reports whether moving from -> to is a forward step in the
// lattice. Terminal states never advance; unknown states never advance.
// Skipping ranks is allowed because on-chain events are authoritative.
func CanAdvanceEscrow(from, to string) bool {
	fromRank, ok := escrowStateRank[from]
	if !ok {
		return false
	}
	toRank, ok := escrowStateRank[to]
	if !ok {
		return false
	}
	if IsTerminalEscrowState(from) {
		return false
	}
	return toRank > fromRank
}

type Escrow struct {
	ID                      int64           `json:"id"`
	TradeID                 int64           `json:"trade_id"`
	NetworkID               int64           `json:"network_id"`
	OnchainEscrowID         string          `json:"onchain_escrow_id"` // chain-native counter, string to avoid precision loss
	EscrowAddress           string          `json:"escrow_address"`    // contract-side id on EVM, PDA on Solana
	SellerAddress           string          `json:"seller_address"`
	BuyerAddress            string          `json:"buyer_address"`
	ArbitratorAddress       string          `json:"arbitrator_address"`
	TokenAccount            *string         `json:"token_account,omitempty"` // Solana escrow token account
	Amount                  decimal.Decimal `json:"amount"`
	CurrentBalance          decimal.Decimal `json:"current_balance"`
	State                   string          `json:"state"`
	FiatPaid                bool            `json:"fiat_paid"`
	Sequential              bool            `json:"sequential"`
	SequentialEscrowAddress *string         `json:"sequential_escrow_address,omitempty"`
	DepositDeadline         *time.Time      `json:"deposit_deadline,omitempty"`
	FiatDeadline            *time.Time      `json:"fiat_deadline,omitempty"`
	CompletedAt             *time.Time      `json:"completed_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}
