package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/chain"
	"github.com/escrow-marketplace/backend/internal/events"
	"github.com/escrow-marketplace/backend/internal/models"
)

type monFixture struct {
	*recFixture
	adapter *fakeAdapter
	mon     *DeadlineMonitor
}

func newMonFixture() *monFixture {
	f := &monFixture{
		recFixture: newRecFixture(),
		adapter:    &fakeAdapter{family: models.FamilyEVM, eligible: true, submitTx: "0xcancel01"},
	}
	factory := func(*models.Network) (chain.Adapter, error) { return f.adapter, nil }
	f.mon = NewDeadlineMonitor(f.trades, f.escrows, f.autocancel, f.ledger, f.networks,
		f.pub, time.Minute, factory, zap.NewNop())
	return f
}

func expiredLeg(tradeID int64, onchainID string, networkID int64, state string) models.TradeLeg {
	past := time.Now().Add(-2 * time.Hour).UTC()
	return models.TradeLeg{
		TradeID:         tradeID,
		Leg:             1,
		State:           state,
		EscrowOnchainID: onchainID,
		NetworkID:       networkID,
		DepositDeadline: &past,
		FiatDeadline:    &past,
	}
}

func TestSweepSubmitsAutoCancel(t *testing.T) {
	f := newMonFixture()
	esc := f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateCreated)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateCreated)}

	f.mon.Sweep(context.Background())

	rows := f.autocancel.all()
	if len(rows) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(rows))
	}
	if rows[0].Status != models.AutoCancelStatusSuccess {
		t.Errorf("attempt status = %s, want SUCCESS", rows[0].Status)
	}
	if rows[0].TransactionHash == nil || *rows[0].TransactionHash != "0xcancel01" {
		t.Error("attempt should carry the submitted tx hash")
	}

	rec := f.ledger.byTx("0xcancel01")
	if rec == nil {
		t.Fatal("no ledger row for the submitted cancel")
	}
	if rec.Status != models.TxStatusPending || rec.Type != models.TxTypeCancelEscrow {
		t.Errorf("ledger row = %s/%s, want PENDING/CANCEL_ESCROW", rec.Status, rec.Type)
	}
	if rec.SenderAddress == nil || *rec.SenderAddress != testArbEVM {
		t.Error("cancel should be attributed to the arbitrator")
	}

	// The monitor submits but never flips ledger state; the on-chain
	// EscrowCancelled event does that later.
	if got := f.escrows.state(esc.ID); got != models.EscrowStateCreated {
		t.Errorf("escrow state = %s, monitor must not change it", got)
	}
	if got := f.pub.byType(events.EventAutoCancelSubmitted); len(got) != 1 {
		t.Errorf("autocancel_submitted published %d times, want 1", len(got))
	}
}

func TestSweepBalanceContradiction(t *testing.T) {
	f := newMonFixture()
	f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateCreated)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateCreated)}
	f.adapter.balance = 50_000_000 // funds arrived, deposit event missed

	f.mon.Sweep(context.Background())

	rows := f.autocancel.all()
	if len(rows) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(rows))
	}
	if rows[0].Status != models.AutoCancelStatusBalanceCheck {
		t.Errorf("attempt status = %s, want BALANCE_CHECK", rows[0].Status)
	}
	if rows[0].ErrorMessage == nil || !strings.Contains(*rows[0].ErrorMessage, "50") {
		t.Error("balance-check note should mention the observed balance")
	}
	if len(f.adapter.submitted) != 0 {
		t.Error("contradicted escrow must not be cancelled")
	}
	if len(f.pub.sent) != 0 {
		t.Error("balance check should not publish notifications")
	}
}

func TestSweepIneligibleOnChain(t *testing.T) {
	f := newMonFixture()
	f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateCreated)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateCreated)}
	f.adapter.eligible = false

	f.mon.Sweep(context.Background())

	rows := f.autocancel.all()
	if len(rows) != 1 || rows[0].Status != models.AutoCancelStatusFailed {
		t.Fatalf("want a single FAILED attempt, got %+v", rows)
	}
	if len(f.adapter.submitted) != 0 {
		t.Error("ineligible escrow must not be submitted")
	}
}

func TestSweepSubmitFailure(t *testing.T) {
	f := newMonFixture()
	f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateCreated)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateCreated)}
	f.adapter.submitErr = errors.New("rpc: insufficient funds for gas")

	f.mon.Sweep(context.Background())

	rows := f.autocancel.all()
	if len(rows) != 1 || rows[0].Status != models.AutoCancelStatusFailed {
		t.Fatalf("want a single FAILED attempt, got %+v", rows)
	}
	if rows[0].ErrorMessage == nil || !strings.Contains(*rows[0].ErrorMessage, "insufficient funds") {
		t.Error("failure reason should be recorded")
	}
	if got := f.pub.byType(events.EventAutoCancelFailed); len(got) != 1 {
		t.Errorf("autocancel_failed published %d times, want 1", len(got))
	}
}

func TestSweepPerItemIsolation(t *testing.T) {
	f := newMonFixture()
	// First leg points at a network the resolver does not know; the second
	// is healthy and must still be processed.
	f.escrows.seed(models.Escrow{
		TradeID: 111, NetworkID: 99, OnchainEscrowID: "901",
		State: models.EscrowStateCreated,
	})
	good := f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateCreated)
	f.trades.expired = []models.TradeLeg{
		expiredLeg(111, "901", 99, models.LegStateCreated),
		expiredLeg(67890, "12345", 1, models.LegStateCreated),
	}

	f.mon.Sweep(context.Background())

	if len(f.adapter.submitted) != 1 || f.adapter.submitted[0] != good.ID {
		t.Fatalf("submitted = %v, want only escrow %d", f.adapter.submitted, good.ID)
	}
}

func TestSweepSkipsEscrowPastCancellableState(t *testing.T) {
	f := newMonFixture()
	f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateDisputed)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateFunded)}

	f.mon.Sweep(context.Background())

	if len(f.autocancel.all()) != 0 {
		t.Error("disputed escrow must not get an attempt row")
	}
	if len(f.adapter.submitted) != 0 {
		t.Error("disputed escrow must not be submitted")
	}
}

func TestSweepFundedLegCancels(t *testing.T) {
	f := newMonFixture()
	esc := f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateFunded)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateFunded)}
	f.adapter.balance = 50_000_000 // chain agrees with FUNDED

	f.mon.Sweep(context.Background())

	if len(f.adapter.submitted) != 1 || f.adapter.submitted[0] != esc.ID {
		t.Fatalf("submitted = %v, want escrow %d", f.adapter.submitted, esc.ID)
	}
	rows := f.autocancel.all()
	if len(rows) != 1 || rows[0].Status != models.AutoCancelStatusSuccess {
		t.Fatalf("want one SUCCESS attempt, got %+v", rows)
	}
}

func TestSweepFundedButDrainedOnChain(t *testing.T) {
	f := newMonFixture()
	f.seedBoundEscrow(67890, "12345", 1, models.EscrowStateFunded)
	f.trades.expired = []models.TradeLeg{expiredLeg(67890, "12345", 1, models.LegStateFunded)}
	// adapter balance stays 0: funds already left without the ledger seeing it

	f.mon.Sweep(context.Background())

	rows := f.autocancel.all()
	if len(rows) != 1 || rows[0].Status != models.AutoCancelStatusBalanceCheck {
		t.Fatalf("want one BALANCE_CHECK attempt, got %+v", rows)
	}
	if rows[0].ErrorMessage == nil || !strings.Contains(*rows[0].ErrorMessage, "FUNDED") {
		t.Error("balance-check note should name the contradicted state")
	}
	if len(f.adapter.submitted) != 0 {
		t.Error("drained escrow must not be cancelled")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newMonFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.mon.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}
