package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/chain"
	"github.com/escrow-marketplace/backend/internal/events"
	"github.com/escrow-marketplace/backend/internal/models"
)

// ExpiredLegSource yields trade legs whose on-chain deadline has passed
// while the leg is still waiting on the counterparty.
type ExpiredLegSource interface {
	FindDeadlineExpired(ctx context.Context, now time.Time) ([]models.TradeLeg, error)
}

// EscrowReader is the read-only escrow lookup the monitor needs.
type EscrowReader interface {
	GetByOnchainID(ctx context.Context, onchainID string, networkID int64) (*models.Escrow, error)
}

// AdapterFactory builds a chain adapter for a network. The default is
// chain.NewAdapter; tests substitute fakes.
type AdapterFactory func(net *models.Network) (chain.Adapter, error)

// DeadlineMonitor periodically sweeps for expired trade legs and submits
// on-chain auto-cancel transactions with the arbitrator key. It records
// every attempt but never changes escrow or trade state itself: the
// resulting EscrowCancelled event drives the ledger like any other event.
type DeadlineMonitor struct {
	legs       ExpiredLegSource
	escrows    EscrowReader
	autocancel AutoCancelStore
	txs        TransactionLedger
	networks   NetworkResolver
	publisher  events.Publisher
	interval   time.Duration
	newAdapter AdapterFactory
	log        *zap.Logger

	mu       sync.Mutex
	adapters map[int64]chain.Adapter
}

func NewDeadlineMonitor(
	legs ExpiredLegSource,
	escrows EscrowReader,
	autocancel AutoCancelStore,
	txs TransactionLedger,
	networks NetworkResolver,
	publisher events.Publisher,
	interval time.Duration,
	newAdapter AdapterFactory,
	log *zap.Logger,
) *DeadlineMonitor {
	return &DeadlineMonitor{
		legs:       legs,
		escrows:    escrows,
		autocancel: autocancel,
		txs:        txs,
		networks:   networks,
		publisher:  publisher,
		interval:   interval,
		newAdapter: newAdapter,
		log:        log,
		adapters:   make(map[int64]chain.Adapter),
	}
}

// Run sweeps immediately, then on every tick until the context ends.
func (m *DeadlineMonitor) Run(ctx context.Context) {
	m.log.Info("deadline monitor started", zap.Duration("interval", m.interval))
	m.Sweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAdapters()
			m.log.Info("deadline monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Each expired leg is handled independently so one
// bad network or RPC outage cannot stall the rest.
func (m *DeadlineMonitor) Sweep(ctx context.Context) {
	expired, err := m.legs.FindDeadlineExpired(ctx, time.Now().UTC())
	if err != nil {
		m.log.Error("deadline sweep query failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}
	m.log.Info("deadline sweep found expired legs", zap.Int("count", len(expired)))

	for _, leg := range expired {
		if ctx.Err() != nil {
			return
		}
		if err := m.process(ctx, leg); err != nil {
			m.log.Error("auto-cancel attempt failed",
				zap.Int64("trade_id", leg.TradeID),
				zap.Int("leg", leg.Leg),
				zap.String("onchain_escrow_id", leg.EscrowOnchainID),
				zap.Int64("network_id", leg.NetworkID),
				zap.Error(err))
		}
	}
}

func (m *DeadlineMonitor) process(ctx context.Context, leg models.TradeLeg) error {
	esc, err := m.escrows.GetByOnchainID(ctx, leg.EscrowOnchainID, leg.NetworkID)
	if err != nil {
		return fmt.Errorf("load escrow: %w", err)
	}
	if esc == nil {
		m.log.Warn("expired leg has no escrow row",
			zap.Int64("trade_id", leg.TradeID), zap.String("onchain_escrow_id", leg.EscrowOnchainID))
		return nil
	}
	if esc.State != models.EscrowStateCreated && esc.State != models.EscrowStateFunded {
		// Already moved past a cancellable state between the sweep query
		// and now.
		return nil
	}

	net, err := m.networks.ByID(ctx, leg.NetworkID)
	if err != nil {
		return fmt.Errorf("load network: %w", err)
	}
	ad, err := m.adapter(net)
	if err != nil {
		return fmt.Errorf("chain adapter: %w", err)
	}

	// Probe the chain before cancelling. A balance that contradicts the
	// ledger state means an event was missed; record the contradiction and
	// leave the row for reconciliation instead of cancelling over a stale
	// ledger.
	bal, balErr := ad.EscrowBalance(ctx, esc)
	if balErr != nil {
		m.log.Warn("escrow balance probe failed", zap.Int64("escrow_id", esc.ID), zap.Error(balErr))
	} else if note := balanceContradiction(esc.State, bal); note != "" {
		attemptID, err := m.autocancel.Create(ctx, esc.ID, net.ID)
		if err != nil {
			return fmt.Errorf("record balance-check attempt: %w", err)
		}
		if err := m.autocancel.MarkBalanceCheck(ctx, attemptID, note); err != nil {
			m.log.Warn("balance-check note failed", zap.Error(err))
		}
		m.log.Warn("on-chain balance contradicts ledger state, skipping cancel",
			zap.Int64("escrow_id", esc.ID),
			zap.String("state", esc.State),
			zap.Uint64("balance", bal))
		return nil
	}

	attemptID, err := m.autocancel.Create(ctx, esc.ID, net.ID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	eligible, err := ad.AutoCancelEligible(ctx, esc)
	if err != nil {
		m.failAttempt(ctx, attemptID, esc, fmt.Errorf("eligibility check: %w", err))
		return err
	}
	if !eligible {
		if err := m.autocancel.MarkFailed(ctx, attemptID, "contract reports escrow not eligible"); err != nil {
			m.log.Warn("attempt update failed", zap.Error(err))
		}
		m.log.Info("escrow not eligible for auto-cancel on-chain", zap.Int64("escrow_id", esc.ID))
		return nil
	}

	txID, err := ad.SubmitAutoCancel(ctx, esc)
	if err != nil {
		m.failAttempt(ctx, attemptID, esc, fmt.Errorf("submit cancel: %w", err))
		return err
	}

	if err := m.autocancel.MarkSuccess(ctx, attemptID, txID); err != nil {
		m.log.Warn("attempt update failed", zap.Error(err))
	}
	m.recordSubmission(ctx, esc, net, txID)
	m.log.Info("auto-cancel submitted",
		zap.Int64("escrow_id", esc.ID), zap.Int64("trade_id", esc.TradeID), zap.String("tx_id", txID))

	_ = m.publisher.Publish(ctx, events.ChannelAutoCancel, events.New(events.EventAutoCancelSubmitted, map[string]any{
		"escrow_id":         esc.ID,
		"onchain_escrow_id": esc.OnchainEscrowID,
		"trade_id":          esc.TradeID,
		"network_id":        net.ID,
		"tx_id":             txID,
		"explorer_url":      ad.ExplorerTxURL(txID),
	}))
	return nil
}

// balanceContradiction reports why the cancel must be skipped, or "" when
// the chain agrees with the ledger. A CREATED escrow holding funds means a
// deposit event was missed; a FUNDED escrow holding nothing means the funds
// already moved.
func balanceContradiction(state string, balance uint64) string {
	switch {
	case state == models.EscrowStateCreated && balance > 0:
		return fmt.Sprintf("on-chain balance %s but ledger state CREATED, skipping cancel", usdc(balance))
	case state == models.EscrowStateFunded && balance == 0:
		return "on-chain balance 0 but ledger state FUNDED, skipping cancel"
	}
	return ""
}

func (m *DeadlineMonitor) failAttempt(ctx context.Context, attemptID int64, esc *models.Escrow, cause error) {
	if err := m.autocancel.MarkFailed(ctx, attemptID, cause.Error()); err != nil {
		m.log.Warn("attempt update failed", zap.Error(err))
	}
	_ = m.publisher.Publish(ctx, events.ChannelAutoCancel, events.New(events.EventAutoCancelFailed, map[string]any{
		"escrow_id":         esc.ID,
		"onchain_escrow_id": esc.OnchainEscrowID,
		"trade_id":          esc.TradeID,
		"network_id":        esc.NetworkID,
		"error":             cause.Error(),
	}))
}

// recordSubmission writes the submitted cancel to the transactions table
// as PENDING; the EscrowCancelled event later upgrades it to SUCCESS.
func (m *DeadlineMonitor) recordSubmission(ctx context.Context, esc *models.Escrow, net *models.Network, txID string) {
	rec := &models.TransactionRecord{
		NetworkID:         net.ID,
		Status:            models.TxStatusPending,
		Type:              models.TxTypeCancelEscrow,
		RelatedTradeID:    &esc.TradeID,
		RelatedEscrowDBID: &esc.ID,
	}
	if net.ArbitratorAddress != "" {
		sender := net.ArbitratorAddress
		rec.SenderAddress = &sender
	}
	if net.Family == models.FamilySolana {
		rec.Signature = &txID
	} else {
		rec.TransactionHash = &txID
	}
	if _, err := m.txs.Record(ctx, rec); err != nil {
		m.log.Warn("submission ledger record failed", zap.Error(err))
	}
}

func (m *DeadlineMonitor) adapter(net *models.Network) (chain.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ad, ok := m.adapters[net.ID]; ok {
		return ad, nil
	}
	ad, err := m.newAdapter(net)
	if err != nil {
		return nil, err
	}
	m.adapters[net.ID] = ad
	return ad, nil
}

func (m *DeadlineMonitor) closeAdapters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ad := range m.adapters {
		ad.Close()
		delete(m.adapters, id)
	}
}
