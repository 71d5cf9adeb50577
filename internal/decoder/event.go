package decoder

import "strconv"

// Lifecycle event names shared by both chain families. The Solana
// program and the EVM contract emit the same set under the same names.
const (
	EventEscrowCreated        = "EscrowCreated"
	EventFundsDeposited       = "FundsDeposited"
	EventFiatMarkedPaid       = "FiatMarkedPaid"
	EventEscrowReleased       = "EscrowReleased"
	EventEscrowCancelled      = "EscrowCancelled"
	EventDisputeOpened        = "DisputeOpened"
	EventDisputeResolved      = "DisputeResolved"
	EventEscrowBalanceChanged = "EscrowBalanceChanged"
)

// Event is a contract event normalized across chain families. Numeric
// fields are decimal strings (EVM uint256 does not fit a JSON number, so
// all integers take the same shape). Addresses are lowercase 0x-hex on
// EVM and base58 on Solana. Amounts stay in base units; fiat-point
// conversion happens downstream.
type Event struct {
	Name      string
	NetworkID int64
	TxID      string // transaction hash (EVM) or signature (Solana)
	Block     uint64 // block number (EVM) or slot (Solana)
	Fields    map[string]any

	// Degraded marks an event whose payload could not be decoded. Only
	// Name, Discriminator and ByteLen carry information in that case.
	Degraded      bool
	Discriminator string
	ByteLen       int
}

// FieldUint64 reads an unsigned numeric field emitted as a decimal string.
func (e *Event) FieldUint64(name string) (uint64, bool) {
	s, ok := e.Fields[name].(string)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FieldInt64 reads a signed numeric field emitted as a decimal string.
func (e *Event) FieldInt64(name string) (int64, bool) {
	s, ok := e.Fields[name].(string)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FieldString reads a string field (addresses, reasons, destinations).
func (e *Event) FieldString(name string) (string, bool) {
	s, ok := e.Fields[name].(string)
	return s, ok
}

// FieldBool reads a boolean field.
func (e *Event) FieldBool(name string) (bool, bool) {
	b, ok := e.Fields[name].(bool)
	return b, ok
}
