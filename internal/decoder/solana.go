package decoder

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// programDataPrefix marks Anchor event payloads in transaction logs:
// the runtime base64-encodes emitted events behind this marker.
const programDataPrefix = "Program data: "

// anchorEventDiscriminator derives the 8-byte tag the Anchor runtime
// prepends to an emitted event's Borsh payload.
func anchorEventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// solanaEvents is the discriminator table for the escrow program. The
// layouts mirror the program IDL field for field.
var solanaEvents = map[[8]byte]struct {
	name   string
	decode func(*bin.Decoder) (map[string]any, error)
}{
	anchorEventDiscriminator(EventEscrowCreated):        {EventEscrowCreated, decodeEscrowCreated},
	anchorEventDiscriminator(EventFundsDeposited):       {EventFundsDeposited, decodeFundsDeposited},
	anchorEventDiscriminator(EventFiatMarkedPaid):       {EventFiatMarkedPaid, decodeFiatMarkedPaid},
	anchorEventDiscriminator(EventEscrowReleased):       {EventEscrowReleased, decodeEscrowReleased},
	anchorEventDiscriminator(EventEscrowCancelled):      {EventEscrowCancelled, decodeEscrowCancelled},
	anchorEventDiscriminator(EventDisputeOpened):        {EventDisputeOpened, decodeDisputeOpened},
	anchorEventDiscriminator(EventDisputeResolved):      {EventDisputeResolved, decodeDisputeResolved},
	anchorEventDiscriminator(EventEscrowBalanceChanged): {EventEscrowBalanceChanged, decodeEscrowBalanceChanged},
}

// DecodeSolanaLogs extracts escrow program events from a transaction's
// log messages. A recognized discriminator whose payload fails to
// decode still yields a degraded event carrying the name, discriminator
// and byte length, so a known event is never silently dropped. Unknown
// discriminators belong to other programs in the call stack and are
// skipped.
func DecodeSolanaLogs(networkID int64, signature string, slot uint64, logs []string) []*Event {
	var events []*Event
	for _, line := range logs {
		idx := strings.Index(line, programDataPrefix)
		if idx < 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[idx+len(programDataPrefix):]))
		if err != nil || len(raw) < 8 {
			continue
		}

		var disc [8]byte
		copy(disc[:], raw[:8])
		entry, ok := solanaEvents[disc]
		if !ok {
			continue
		}

		ev := &Event{
			Name:      entry.name,
			NetworkID: networkID,
			TxID:      signature,
			Block:     slot,
		}
		fields, err := entry.decode(bin.NewBorshDecoder(raw[8:]))
		if err != nil {
			ev.Degraded = true
			ev.Discriminator = hex.EncodeToString(disc[:])
			ev.ByteLen = len(raw)
		} else {
			ev.Fields = fields
		}
		events = append(events, ev)
	}
	return events
}

type escrowCreatedEvent struct {
	EscrowID                uint64
	TradeID                 uint64
	Seller                  solana.PublicKey
	Buyer                   solana.PublicKey
	Arbitrator              solana.PublicKey
	Amount                  uint64
	DepositDeadline         int64
	FiatDeadline            int64
	Sequential              bool
	SequentialEscrowAddress solana.PublicKey
}

func decodeEscrowCreated(dec *bin.Decoder) (map[string]any, error) {
	var ev escrowCreatedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":                strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":                 strconv.FormatUint(ev.TradeID, 10),
		"seller":                  ev.Seller.String(),
		"buyer":                   ev.Buyer.String(),
		"arbitrator":              ev.Arbitrator.String(),
		"amount":                  strconv.FormatUint(ev.Amount, 10),
		"depositDeadline":         strconv.FormatInt(ev.DepositDeadline, 10),
		"fiatDeadline":            strconv.FormatInt(ev.FiatDeadline, 10),
		"sequential":              ev.Sequential,
		"sequentialEscrowAddress": ev.SequentialEscrowAddress.String(),
	}, nil
}

type fundsDepositedEvent struct {
	EscrowID  uint64
	TradeID   uint64
	Amount    uint64
	Counter   uint64
	Timestamp int64
}

func decodeFundsDeposited(dec *bin.Decoder) (map[string]any, error) {
	var ev fundsDepositedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":  strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":   strconv.FormatUint(ev.TradeID, 10),
		"amount":    strconv.FormatUint(ev.Amount, 10),
		"counter":   strconv.FormatUint(ev.Counter, 10),
		"timestamp": strconv.FormatInt(ev.Timestamp, 10),
	}, nil
}

type fiatMarkedPaidEvent struct {
	EscrowID  uint64
	TradeID   uint64
	Timestamp int64
}

func decodeFiatMarkedPaid(dec *bin.Decoder) (map[string]any, error) {
	var ev fiatMarkedPaidEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":  strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":   strconv.FormatUint(ev.TradeID, 10),
		"timestamp": strconv.FormatInt(ev.Timestamp, 10),
	}, nil
}

type escrowReleasedEvent struct {
	EscrowID    uint64
	TradeID     uint64
	Buyer       solana.PublicKey
	Amount      uint64
	Counter     uint64
	Timestamp   int64
	Destination string
}

func decodeEscrowReleased(dec *bin.Decoder) (map[string]any, error) {
	var ev escrowReleasedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":    strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":     strconv.FormatUint(ev.TradeID, 10),
		"buyer":       ev.Buyer.String(),
		"amount":      strconv.FormatUint(ev.Amount, 10),
		"counter":     strconv.FormatUint(ev.Counter, 10),
		"timestamp":   strconv.FormatInt(ev.Timestamp, 10),
		"destination": ev.Destination,
	}, nil
}

type escrowCancelledEvent struct {
	EscrowID  uint64
	TradeID   uint64
	Canceller solana.PublicKey
	Amount    uint64
	Counter   uint64
	Timestamp int64
}

func decodeEscrowCancelled(dec *bin.Decoder) (map[string]any, error) {
	var ev escrowCancelledEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":  strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":   strconv.FormatUint(ev.TradeID, 10),
		"canceller": ev.Canceller.String(),
		"amount":    strconv.FormatUint(ev.Amount, 10),
		"counter":   strconv.FormatUint(ev.Counter, 10),
		"timestamp": strconv.FormatInt(ev.Timestamp, 10),
	}, nil
}

type disputeOpenedEvent struct {
	EscrowID   uint64
	TradeID    uint64
	Opener     solana.PublicKey
	BondAmount uint64
	Timestamp  int64
}

func decodeDisputeOpened(dec *bin.Decoder) (map[string]any, error) {
	var ev disputeOpenedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":   strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":    strconv.FormatUint(ev.TradeID, 10),
		"opener":     ev.Opener.String(),
		"bondAmount": strconv.FormatUint(ev.BondAmount, 10),
		"timestamp":  strconv.FormatInt(ev.Timestamp, 10),
	}, nil
}

type disputeResolvedEvent struct {
	EscrowID  uint64
	TradeID   uint64
	Winner    solana.PublicKey
	BuyerWins bool
	Timestamp int64
}

func decodeDisputeResolved(dec *bin.Decoder) (map[string]any, error) {
	var ev disputeResolvedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":  strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":   strconv.FormatUint(ev.TradeID, 10),
		"winner":    ev.Winner.String(),
		"buyerWins": ev.BuyerWins,
		"timestamp": strconv.FormatInt(ev.Timestamp, 10),
	}, nil
}

type escrowBalanceChangedEvent struct {
	EscrowID   uint64
	TradeID    uint64
	NewBalance uint64
	Reason     string
}

func decodeEscrowBalanceChanged(dec *bin.Decoder) (map[string]any, error) {
	var ev escrowBalanceChangedEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return map[string]any{
		"escrowId":   strconv.FormatUint(ev.EscrowID, 10),
		"tradeId":    strconv.FormatUint(ev.TradeID, 10),
		"newBalance": strconv.FormatUint(ev.NewBalance, 10),
		"reason":     ev.Reason,
	}, nil
}
