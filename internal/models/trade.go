package models

import "time"

// Trade overall statuses
const (
	TradeStatusInProgress = "IN_PROGRESS"
	TradeStatusCompleted  = "COMPLETED"
	TradeStatusCancelled  = "CANCELLED"
	TradeStatusDisputed   = "DISPUTED"
)

// Trade leg states. A leg mirrors its escrow and additionally tracks the
// off-chain fiat payment step. COMPLETED marks a released-and-settled leg.
const (
	LegStateCreated   = "CREATED"
	LegStateFunded    = "FUNDED"
	LegStateFiatPaid  = "FIAT_PAID"
	LegStateDisputed  = "DISPUTED"
	LegStateReleased  = "RELEASED"
	LegStateCompleted = "COMPLETED"
	LegStateResolved  = "RESOLVED"
	LegStateCancelled = "CANCELLED"
)

var legStateRank = map[string]int{
	LegStateCreated:   1,
	LegStateFunded:    2,
	LegStateFiatPaid:  3,
	LegStateDisputed:  4,
	LegStateReleased:  5,
	LegStateCompleted: 5,
	LegStateResolved:  5,
	LegStateCancelled: 5,
}

func LegStateRank(state string) int {
	return legStateRank[state]
}

func IsTerminalLegState(state string) bool {
	switch state {
	case LegStateReleased, LegStateCompleted, LegStateResolved, LegStateCancelled:
		return true
	}
	return false
}

func CanAdvanceLeg(from, to string) bool {
	fromRank, ok := legStateRank[from]
	if !ok {
		return false
	}
	toRank, ok := legStateRank[to]
	if !ok {
		return false
	}
	if IsTerminalLegState(from) {
		return false
	}
	return toRank > fromRank
}

type Trade struct {
	ID            int64     `json:"id"`
	OverallStatus string    `json:"overall_status"`
	FiatCurrency  string    `json:"fiat_currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Leg1State           string     `json:"leg1_state"`
	Leg1EscrowOnchainID *string    `json:"leg1_escrow_onchain_id,omitempty"`
	Leg1NetworkID       *int64     `json:"leg1_network_id,omitempty"`
	Leg1DepositDeadline *time.Time `json:"leg1_deposit_deadline,omitempty"`
	Leg1FiatDeadline    *time.Time `json:"leg1_fiat_deadline,omitempty"`

	Leg2State           *string    `json:"leg2_state,omitempty"`
	Leg2EscrowOnchainID *string    `json:"leg2_escrow_onchain_id,omitempty"`
	Leg2NetworkID       *int64     `json:"leg2_network_id,omitempty"`
	Leg2DepositDeadline *time.Time `json:"leg2_deposit_deadline,omitempty"`
	Leg2FiatDeadline    *time.Time `json:"leg2_fiat_deadline,omitempty"`
}

// TradeLeg is a flattened view of one side of a trade, produced by the
// deadline sweep query so the monitor never has to care which leg matched.
type TradeLeg struct {
	TradeID         int64      `json:"trade_id"`
	Leg             int        `json:"leg"` // 1 or 2
	State           string     `json:"state"`
	EscrowOnchainID string     `json:"escrow_onchain_id"`
	NetworkID       int64      `json:"network_id"`
	DepositDeadline *time.Time `json:"deposit_deadline,omitempty"`
	FiatDeadline    *time.Time `json:"fiat_deadline,omitempty"`
}
