package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

func encodeEventLog(t *testing.T, name string, v any) string {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		t.Fatalf("borsh encode: %v", err)
	}
	disc := anchorEventDiscriminator(name)
	return programDataPrefix + base64.StdEncoding.EncodeToString(append(disc[:], buf.Bytes()...))
}

func TestDecodeSolanaLogsFundsDeposited(t *testing.T) {
	logs := []string{
		"Program 4PonUp1nPEzDPnRMPjTqufLT3f37QuBJGk1SVkVvmK6u invoke [1]",
		"Program log: Instruction: FundEscrow",
		encodeEventLog(t, EventFundsDeposited, fundsDepositedEvent{
			EscrowID:  12345,
			TradeID:   67890,
			Amount:    50_000_000,
			Counter:   1,
			Timestamp: 1_700_000_000,
		}),
		"Program 4PonUp1nPEzDPnRMPjTqufLT3f37QuBJGk1SVkVvmK6u success",
	}

	events := DecodeSolanaLogs(3, "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tp", 987654, logs)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Name != EventFundsDeposited {
		t.Errorf("Name = %q", ev.Name)
	}
	if ev.Degraded {
		t.Error("event unexpectedly degraded")
	}
	if ev.NetworkID != 3 || ev.Block != 987654 {
		t.Errorf("envelope = %+v", ev)
	}
	if got, ok := ev.FieldUint64("escrowId"); !ok || got != 12345 {
		t.Errorf("escrowId = %d (%v)", got, ok)
	}
	if got, ok := ev.FieldUint64("amount"); !ok || got != 50_000_000 {
		t.Errorf("amount = %d (%v)", got, ok)
	}
	if got, ok := ev.FieldInt64("timestamp"); !ok || got != 1_700_000_000 {
		t.Errorf("timestamp = %d (%v)", got, ok)
	}
}

func TestDecodeSolanaLogsEscrowCreated(t *testing.T) {
	seller := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	buyer := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	arbitrator := solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")

	logs := []string{
		encodeEventLog(t, EventEscrowCreated, escrowCreatedEvent{
			EscrowID:                12345,
			TradeID:                 67890,
			Seller:                  seller,
			Buyer:                   buyer,
			Arbitrator:              arbitrator,
			Amount:                  50_000_000,
			DepositDeadline:         1_700_000_000,
			FiatDeadline:            1_700_003_600,
			Sequential:              true,
			SequentialEscrowAddress: buyer,
		}),
	}

	events := DecodeSolanaLogs(4, "sig", 1, logs)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if got, _ := ev.FieldString("seller"); got != seller.String() {
		t.Errorf("seller = %q", got)
	}
	if got, ok := ev.FieldBool("sequential"); !ok || !got {
		t.Errorf("sequential = %v (%v)", got, ok)
	}
	if got, _ := ev.FieldString("sequentialEscrowAddress"); got != buyer.String() {
		t.Errorf("sequentialEscrowAddress = %q", got)
	}
	if got, ok := ev.FieldInt64("fiatDeadline"); !ok || got != 1_700_003_600 {
		t.Errorf("fiatDeadline = %d (%v)", got, ok)
	}
}

func TestDecodeSolanaLogsDegraded(t *testing.T) {
	// Known discriminator followed by a payload too short to decode.
	disc := anchorEventDiscriminator(EventEscrowReleased)
	raw := append(disc[:], 0x01, 0x02, 0x03, 0x04)
	logs := []string{programDataPrefix + base64.StdEncoding.EncodeToString(raw)}

	events := DecodeSolanaLogs(2, "sig", 10, logs)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 degraded event", len(events))
	}

	ev := events[0]
	if !ev.Degraded {
		t.Fatal("expected degraded event")
	}
	if ev.Name != EventEscrowReleased {
		t.Errorf("Name = %q", ev.Name)
	}
	if ev.Discriminator != hex.EncodeToString(disc[:]) {
		t.Errorf("Discriminator = %q", ev.Discriminator)
	}
	if ev.ByteLen != len(raw) {
		t.Errorf("ByteLen = %d, want %d", ev.ByteLen, len(raw))
	}
	if ev.Fields != nil {
		t.Error("degraded event should carry no fields")
	}
}

func TestDecodeSolanaLogsSkipsForeignData(t *testing.T) {
	unknown := bytes.Repeat([]byte{0xff}, 24)
	logs := []string{
		"Program log: hello",
		programDataPrefix + base64.StdEncoding.EncodeToString(unknown),
		programDataPrefix + "%%%not-base64%%%",
		programDataPrefix + base64.StdEncoding.EncodeToString([]byte{0x01}),
	}

	if events := DecodeSolanaLogs(1, "sig", 1, logs); len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestEventDiscriminatorPins(t *testing.T) {
	want := [8]byte{70, 127, 105, 102, 92, 97, 7, 173}
	if got := anchorEventDiscriminator(EventEscrowCreated); got != want {
		t.Errorf("EscrowCreated discriminator = %v, want %v", got, want)
	}
	if len(solanaEvents) != 8 {
		t.Errorf("discriminator table has %d entries, want 8", len(solanaEvents))
	}
}
