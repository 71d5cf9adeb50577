package decoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/escrow-marketplace/backend/internal/chain"
)

func mustPack(t *testing.T, event string, args ...any) []byte {
	t.Helper()
	ev, ok := chain.EscrowABI().Events[event]
	if !ok {
		t.Fatalf("no such event %s", event)
	}
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		t.Fatalf("pack %s: %v", event, err)
	}
	return data
}

func escrowLog(t *testing.T, event string, escrowID, tradeID int64, data []byte) types.Log {
	t.Helper()
	return types.Log{
		Address: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Topics: []common.Hash{
			chain.EscrowABI().Events[event].ID,
			common.BigToHash(big.NewInt(escrowID)),
			common.BigToHash(big.NewInt(tradeID)),
		},
		Data:        data,
		BlockNumber: 4242,
		TxHash:      common.HexToHash("0x6d06b8f8a959ddeae4087ae3ef0f50a5a00379710ca1dca1cd3334080a3cf2b1"),
	}
}

func TestDecodeEVMLogEscrowCreated(t *testing.T) {
	seller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer := common.HexToAddress("0xabcdef0123456789abcdef0123456789abcdef01")
	arbitrator := common.HexToAddress("0x3333333333333333333333333333333333333333")

	lg := escrowLog(t, EventEscrowCreated, 12345, 67890, mustPack(t, EventEscrowCreated,
		seller, buyer, arbitrator,
		big.NewInt(50_000_000), big.NewInt(1_700_000_000), big.NewInt(1_700_003_600),
		false, common.Address{},
	))

	ev, err := DecodeEVMLog(7, lg)
	if err != nil {
		t.Fatalf("DecodeEVMLog: %v", err)
	}

	if ev.Name != EventEscrowCreated {
		t.Errorf("Name = %q, want %q", ev.Name, EventEscrowCreated)
	}
	if ev.NetworkID != 7 {
		t.Errorf("NetworkID = %d, want 7", ev.NetworkID)
	}
	if ev.Block != 4242 {
		t.Errorf("Block = %d, want 4242", ev.Block)
	}
	if ev.TxID != lg.TxHash.Hex() {
		t.Errorf("TxID = %q", ev.TxID)
	}
	if ev.Degraded {
		t.Error("event unexpectedly degraded")
	}

	if got, ok := ev.FieldUint64("escrowId"); !ok || got != 12345 {
		t.Errorf("escrowId = %d (%v), want 12345", got, ok)
	}
	if got, ok := ev.FieldUint64("tradeId"); !ok || got != 67890 {
		t.Errorf("tradeId = %d (%v), want 67890", got, ok)
	}
	if got, ok := ev.FieldUint64("amount"); !ok || got != 50_000_000 {
		t.Errorf("amount = %d (%v), want 50000000", got, ok)
	}
	// Addresses come out lowercase regardless of checksum casing.
	if got, _ := ev.FieldString("buyer"); got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("buyer = %q", got)
	}
	if got, ok := ev.FieldBool("sequential"); !ok || got {
		t.Errorf("sequential = %v (%v), want false", got, ok)
	}
	if got, ok := ev.FieldInt64("depositDeadline"); !ok || got != 1_700_000_000 {
		t.Errorf("depositDeadline = %d (%v)", got, ok)
	}
}

func TestDecodeEVMLogEscrowCancelled(t *testing.T) {
	canceller := common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789ABCDEF01")

	lg := escrowLog(t, EventEscrowCancelled, 555, 666, mustPack(t, EventEscrowCancelled,
		canceller, big.NewInt(0), big.NewInt(3), big.NewInt(1_700_000_100),
	))

	ev, err := DecodeEVMLog(1, lg)
	if err != nil {
		t.Fatalf("DecodeEVMLog: %v", err)
	}
	if ev.Name != EventEscrowCancelled {
		t.Errorf("Name = %q", ev.Name)
	}
	if got, _ := ev.FieldString("canceller"); got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("canceller = %q, want lowercase hex", got)
	}
	if got, ok := ev.FieldUint64("amount"); !ok || got != 0 {
		t.Errorf("amount = %d (%v), want 0", got, ok)
	}
}

func TestDecodeEVMLogErrors(t *testing.T) {
	t.Run("no topics", func(t *testing.T) {
		if _, err := DecodeEVMLog(1, types.Log{}); err == nil {
			t.Error("expected error for log without topics")
		}
	})

	t.Run("unknown topic", func(t *testing.T) {
		lg := types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
		if _, err := DecodeEVMLog(1, lg); err == nil {
			t.Error("expected error for unknown event topic")
		}
	})
}

func TestFieldHelpers(t *testing.T) {
	ev := &Event{Fields: map[string]any{
		"amount":     "50000000",
		"deadline":   "-5",
		"sequential": true,
		"junk":       "not-a-number",
	}}

	if v, ok := ev.FieldUint64("amount"); !ok || v != 50_000_000 {
		t.Errorf("FieldUint64(amount) = %d, %v", v, ok)
	}
	if _, ok := ev.FieldUint64("missing"); ok {
		t.Error("FieldUint64(missing) reported ok")
	}
	if _, ok := ev.FieldUint64("junk"); ok {
		t.Error("FieldUint64(junk) reported ok")
	}
	if v, ok := ev.FieldInt64("deadline"); !ok || v != -5 {
		t.Errorf("FieldInt64(deadline) = %d, %v", v, ok)
	}
	if v, ok := ev.FieldBool("sequential"); !ok || !v {
		t.Errorf("FieldBool(sequential) = %v, %v", v, ok)
	}
	if _, ok := ev.FieldString("sequential"); ok {
		t.Error("FieldString on a bool reported ok")
	}
}
