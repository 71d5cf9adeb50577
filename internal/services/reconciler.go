package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/decoder"
	"github.com/escrow-marketplace/backend/internal/events"
	"github.com/escrow-marketplace/backend/internal/models"
	"github.com/escrow-marketplace/backend/internal/repositories"
)

// TransactionLedger records observed transactions. Implemented by
// repositories.TransactionRepo.
type TransactionLedger interface {
	Record(ctx context.Context, t *models.TransactionRecord) (int64, error)
}

// EscrowStore is the escrow surface the reconciler drives. Every state
// change is a guarded UPDATE; false means the guard did not match.
type EscrowStore interface {
	Create(ctx context.Context, e *models.Escrow) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Escrow, error)
	GetByOnchainID(ctx context.Context, onchainID string, networkID int64) (*models.Escrow, error)
	GetLatestByTradeID(ctx context.Context, tradeID int64) (*models.Escrow, error)
	MarkFunded(ctx context.Context, id int64, balance decimal.Decimal) (bool, error)
	SetFiatPaid(ctx context.Context, id int64) (bool, error)
	MarkReleased(ctx context.Context, id int64) (bool, error)
	MarkCancelled(ctx context.Context, id int64, state string) (bool, error)
	MarkDisputed(ctx context.Context, id int64) (bool, error)
	MarkResolved(ctx context.Context, id int64) (bool, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) (bool, error)
}

type TradeStore interface {
	GetByID(ctx context.Context, id int64) (*models.Trade, error)
	AssignLegEscrow(ctx context.Context, tradeID int64, onchainID string, networkID int64, depositDeadline, fiatDeadline *time.Time) (int, error)
	LegForEscrow(ctx context.Context, tradeID int64, onchainID string, networkID int64) (int, error)
	AdvanceLeg(ctx context.Context, tradeID int64, leg int, to string, allowedFrom []string) (bool, error)
	DisputeLegs(ctx context.Context, tradeID int64) (bool, error)
	SetOverall(ctx context.Context, tradeID int64, to string, allowedFrom []string) (bool, error)
}

type MappingStore interface {
	Get(ctx context.Context, blockchainID string, networkID int64) (int64, error)
	Upsert(ctx context.Context, blockchainID string, networkID, escrowDBID int64) error
}

type AutoCancelStore interface {
	Create(ctx context.Context, escrowDBID, networkID int64) (int64, error)
	MarkSuccess(ctx context.Context, id int64, txHash string) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	MarkBalanceCheck(ctx context.Context, id int64, note string) error
	FindMatch(ctx context.Context, escrowDBID int64, txHash string) (*models.ContractAutoCancellation, error)
	LinkRetroactive(ctx context.Context, escrowDBID, networkID int64, txHash string) (int64, error)
}

type EventArchive interface {
	Insert(ctx context.Context, e *models.ContractEvent) (bool, error)
}

type NetworkResolver interface {
	ByID(ctx context.Context, id int64) (*models.Network, error)
}

// legActiveStates are the leg states a terminal transition may leave from.
var legActiveStates = []string{
	models.LegStateCreated,
	models.LegStateFunded,
	models.LegStateFiatPaid,
	models.LegStateDisputed,
}

var overallOpenStates = []string{models.TradeStatusInProgress, models.TradeStatusDisputed}

// Reconciler folds decoded contract events into the off-chain ledger:
// archive, transaction upsert, escrow id resolution, guarded state
// transitions and auto-cancel attribution, then redis notifications.
// The chain is authoritative; the database only ever moves forward.
type Reconciler struct {
	txs        TransactionLedger
	escrows    EscrowStore
	trades     TradeStore
	mappings   MappingStore
	autocancel AutoCancelStore
	archive    EventArchive
	networks   NetworkResolver
	publisher  events.Publisher
	log        *zap.Logger
}

func NewReconciler(
	txs TransactionLedger,
	escrows EscrowStore,
	trades TradeStore,
	mappings MappingStore,
	autocancel AutoCancelStore,
	archive EventArchive,
	networks NetworkResolver,
	publisher events.Publisher,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		txs:        txs,
		escrows:    escrows,
		trades:     trades,
		mappings:   mappings,
		autocancel: autocancel,
		archive:    archive,
		networks:   networks,
		publisher:  publisher,
		log:        log,
	}
}

// ProcessEvent applies one decoded event. Replays are no-ops end to end:
// the archive and ledger writes are conflict-tolerant upserts and every
// state transition is guarded by the current state.
func (r *Reconciler) ProcessEvent(ctx context.Context, ev *decoder.Event) error {
	log := r.log.With(
		zap.String("event", ev.Name),
		zap.String("tx_id", ev.TxID),
		zap.Int64("network_id", ev.NetworkID),
	)

	net, err := r.networks.ByID(ctx, ev.NetworkID)
	if err != nil {
		log.Warn("network lookup failed, proceeding without attribution", zap.Error(err))
		net = nil
	}

	// 1. Archive the raw event. Best effort: a failed archive write never
	// blocks reconciliation.
	payload := ev.Fields
	if ev.Degraded {
		payload = map[string]any{"discriminator": ev.Discriminator, "byte_len": ev.ByteLen}
	}
	if _, err := r.archive.Insert(ctx, &models.ContractEvent{
		NetworkID:   ev.NetworkID,
		EventName:   ev.Name,
		TxID:        ev.TxID,
		BlockNumber: int64(ev.Block),
		Payload:     payload,
		Degraded:    ev.Degraded,
	}); err != nil {
		log.Error("event archive insert failed", zap.Error(err))
	}

	// 2. Ledger upsert, keyed by (hash-or-signature, network).
	rec := r.buildRecord(ev, net)
	if _, err := r.txs.Record(ctx, rec); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}

	// A degraded event carries nothing to reconcile; the ledger row and
	// archive entry are all we can produce.
	if ev.Degraded {
		return nil
	}

	// 3. Resolve the escrow's database id.
	escrowDBID, err := r.resolveEscrow(ctx, ev, log)
	if err != nil {
		r.recordFailure(ctx, rec, err, log)
		return err
	}
	if escrowDBID == 0 && ev.Name == decoder.EventEscrowCreated {
		escrowDBID, err = r.createFromEvent(ctx, ev, net)
		if err != nil {
			r.recordFailure(ctx, rec, err, log)
			return err
		}
	}
	if escrowDBID == 0 {
		log.Warn("escrow unresolved, event recorded to ledger only")
		return nil
	}

	// Merge the linkage back into the ledger row. COALESCE semantics keep
	// whatever a concurrent writer already linked.
	rec.RelatedEscrowDBID = &escrowDBID
	if _, err := r.txs.Record(ctx, rec); err != nil {
		log.Warn("ledger linkage merge failed", zap.Error(err))
	}

	// 4. Event-specific forward-only transition.
	switch ev.Name {
	case decoder.EventEscrowCreated:
		err = r.applyCreated(ctx, ev, escrowDBID, log)
	case decoder.EventFundsDeposited:
		err = r.applyFunded(ctx, ev, escrowDBID, log)
	case decoder.EventFiatMarkedPaid:
		err = r.applyFiatPaid(ctx, ev, escrowDBID, log)
	case decoder.EventEscrowReleased:
		err = r.applyReleased(ctx, ev, escrowDBID, log)
	case decoder.EventEscrowCancelled:
		err = r.applyCancelled(ctx, ev, net, escrowDBID, log)
	case decoder.EventDisputeOpened:
		err = r.applyDisputeOpened(ctx, ev, escrowDBID, log)
	case decoder.EventDisputeResolved:
		err = r.applyDisputeResolved(ctx, ev, escrowDBID, log)
	case decoder.EventEscrowBalanceChanged:
		err = r.applyBalanceChanged(ctx, ev, escrowDBID, log)
	default:
		log.Warn("no transition for event, ledger-only")
	}
	if err != nil {
		r.recordFailure(ctx, rec, err, log)
		return err
	}
	return nil
}

// buildRecord maps the event onto a ledger row. The chain family picks
// which identifier column holds the tx id; when the network row is not
// available the id shape decides.
func (r *Reconciler) buildRecord(ev *decoder.Event, net *models.Network) *models.TransactionRecord {
	block := int64(ev.Block)
	rec := &models.TransactionRecord{
		NetworkID:       ev.NetworkID,
		Status:          models.TxStatusSuccess,
		Type:            txTypeForEvent(ev.Name),
		BlockNumber:     &block,
		SenderAddress:   eventAddress(ev, senderField(ev.Name)),
		ReceiverAddress: eventAddress(ev, receiverField(ev.Name)),
	}
	if ev.Degraded {
		rec.Type = models.TxTypeEvent
	}

	txID := ev.TxID
	family := models.FamilyEVM
	if net != nil {
		family = net.Family
	} else if !strings.HasPrefix(txID, "0x") {
		family = models.FamilySolana
	}
	if family == models.FamilySolana {
		rec.Signature = &txID
	} else {
		rec.TransactionHash = &txID
	}

	if tradeID, ok := ev.FieldUint64("tradeId"); ok {
		v := int64(tradeID)
		rec.RelatedTradeID = &v
	}
	return rec
}

// recordFailure flips the ledger row to FAILED with the processing error,
// so a stuck event is visible in the transactions table.
func (r *Reconciler) recordFailure(ctx context.Context, rec *models.TransactionRecord, cause error, log *zap.Logger) {
	msg := cause.Error()
	rec.Status = models.TxStatusFailed
	rec.ErrorMessage = &msg
	if _, err := r.txs.Record(ctx, rec); err != nil {
		log.Error("failed to record processing failure", zap.Error(err))
	}
}

// resolveEscrow maps the chain-native escrow id to the database id:
// mapping table first, then the escrow row itself, then the trade's most
// recent escrow. Whichever resolves is written back to the mapping.
func (r *Reconciler) resolveEscrow(ctx context.Context, ev *decoder.Event, log *zap.Logger) (int64, error) {
	onchainID, ok := ev.FieldString("escrowId")
	if !ok {
		return 0, nil
	}

	id, err := r.mappings.Get(ctx, onchainID, ev.NetworkID)
	if err != nil {
		return 0, fmt.Errorf("mapping lookup: %w", err)
	}
	if id == 0 {
		esc, err := r.escrows.GetByOnchainID(ctx, onchainID, ev.NetworkID)
		if err != nil {
			return 0, fmt.Errorf("escrow lookup: %w", err)
		}
		if esc != nil {
			id = esc.ID
		}
	}
	if id == 0 {
		if tradeID, ok := ev.FieldUint64("tradeId"); ok {
			esc, err := r.escrows.GetLatestByTradeID(ctx, int64(tradeID))
			if err != nil {
				return 0, fmt.Errorf("escrow lookup by trade: %w", err)
			}
			// The fallback must not cross networks: the same on-chain id
			// exists independently per network.
			if esc != nil && esc.NetworkID == ev.NetworkID {
				id = esc.ID
			}
		}
	}

	if id != 0 {
		if err := r.mappings.Upsert(ctx, onchainID, ev.NetworkID, id); err != nil {
			log.Warn("escrow id mapping upsert failed", zap.Error(err))
		}
	}
	return id, nil
}

// createFromEvent builds the escrow row straight from an EscrowCreated
// event. The intake path normally inserts it first; this covers escrows
// created directly on-chain.
func (r *Reconciler) createFromEvent(ctx context.Context, ev *decoder.Event, net *models.Network) (int64, error) {
	onchainID, _ := ev.FieldString("escrowId")
	tradeID, _ := ev.FieldUint64("tradeId")
	amount, _ := ev.FieldUint64("amount")

	esc := &models.Escrow{
		TradeID:         int64(tradeID),
		NetworkID:       ev.NetworkID,
		OnchainEscrowID: onchainID,
		Amount:          usdc(amount),
		CurrentBalance:  decimal.Zero,
		State:           models.EscrowStateCreated,
	}
	if net != nil {
		esc.EscrowAddress = net.EscrowTarget()
	}
	if s, ok := ev.FieldString("seller"); ok {
		esc.SellerAddress = s
	}
	if s, ok := ev.FieldString("buyer"); ok {
		esc.BuyerAddress = s
	}
	if s, ok := ev.FieldString("arbitrator"); ok {
		esc.ArbitratorAddress = s
	}
	if b, ok := ev.FieldBool("sequential"); ok {
		esc.Sequential = b
	}
	if s, ok := ev.FieldString("sequentialEscrowAddress"); ok && s != "" && !isZeroAddress(s) {
		esc.SequentialEscrowAddress = &s
	}
	esc.DepositDeadline = eventDeadline(ev, "depositDeadline")
	esc.FiatDeadline = eventDeadline(ev, "fiatDeadline")

	inserted, err := r.escrows.Create(ctx, esc)
	if err != nil {
		return 0, fmt.Errorf("create escrow from event: %w", err)
	}
	if !inserted {
		// Lost the insert race; the winner's row is authoritative.
		existing, err := r.escrows.GetByOnchainID(ctx, onchainID, ev.NetworkID)
		if err != nil {
			return 0, fmt.Errorf("escrow lookup after create: %w", err)
		}
		if existing == nil {
			return 0, nil
		}
		esc.ID = existing.ID
	}
	if err := r.mappings.Upsert(ctx, onchainID, ev.NetworkID, esc.ID); err != nil {
		r.log.Warn("escrow id mapping upsert failed", zap.Error(err))
	}
	if inserted {
		r.publishEscrow(ctx, esc.ID, models.EscrowStateCreated, ev)
	}
	return esc.ID, nil
}

func (r *Reconciler) applyCreated(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	tradeID, ok := ev.FieldUint64("tradeId")
	if !ok {
		return fmt.Errorf("%s event has no trade id", ev.Name)
	}
	onchainID, _ := ev.FieldString("escrowId")

	leg, err := r.trades.LegForEscrow(ctx, int64(tradeID), onchainID, ev.NetworkID)
	if err != nil {
		return fmt.Errorf("resolve trade leg: %w", err)
	}
	if leg == 0 {
		leg, err = r.trades.AssignLegEscrow(ctx, int64(tradeID), onchainID, ev.NetworkID,
			eventDeadline(ev, "depositDeadline"), eventDeadline(ev, "fiatDeadline"))
		if err != nil {
			return fmt.Errorf("assign trade leg: %w", err)
		}
		if leg == 0 {
			log.Warn("no open trade leg for escrow", zap.Uint64("trade_id", tradeID))
		} else {
			r.publishTrade(ctx, int64(tradeID), leg, models.LegStateCreated, ev)
		}
	}
	return nil
}

func (r *Reconciler) applyFunded(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	amount, ok := ev.FieldUint64("amount")
	if !ok {
		return fmt.Errorf("%s event has no amount", ev.Name)
	}
	balance := usdc(amount)

	changed, err := r.escrows.MarkFunded(ctx, escrowDBID, balance)
	if err != nil {
		return fmt.Errorf("mark funded: %w", err)
	}

	if tradeID, leg := r.legFor(ctx, ev, log); leg != 0 {
		if ok, err := r.advanceLeg(ctx, tradeID, leg, models.LegStateFunded, []string{models.LegStateCreated}, log); err != nil {
			return err
		} else if ok {
			r.publishTrade(ctx, tradeID, leg, models.LegStateFunded, ev)
		}
	}

	if changed {
		r.publishEscrow(ctx, escrowDBID, models.EscrowStateFunded, ev)
		r.publishBalance(ctx, escrowDBID, balance, ev)
	}
	return nil
}

func (r *Reconciler) applyFiatPaid(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	if _, err := r.escrows.SetFiatPaid(ctx, escrowDBID); err != nil {
		return fmt.Errorf("set fiat paid: %w", err)
	}
	if tradeID, leg := r.legFor(ctx, ev, log); leg != 0 {
		moved, err := r.advanceLeg(ctx, tradeID, leg, models.LegStateFiatPaid,
			[]string{models.LegStateCreated, models.LegStateFunded}, log)
		if err != nil {
			return err
		}
		if moved {
			r.publishTrade(ctx, tradeID, leg, models.LegStateFiatPaid, ev)
		}
	}
	return nil
}

func (r *Reconciler) applyReleased(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	changed, err := r.escrows.MarkReleased(ctx, escrowDBID)
	if err != nil {
		return fmt.Errorf("mark released: %w", err)
	}
	if tradeID, leg := r.legFor(ctx, ev, log); leg != 0 {
		moved, err := r.advanceLeg(ctx, tradeID, leg, models.LegStateCompleted, legActiveStates, log)
		if err != nil {
			return err
		}
		if moved {
			r.publishTrade(ctx, tradeID, leg, models.LegStateCompleted, ev)
		}
		if err := r.maybeSettleTrade(ctx, tradeID, ev); err != nil {
			return err
		}
	}
	if changed {
		r.publishEscrow(ctx, escrowDBID, models.EscrowStateReleased, ev)
	}
	return nil
}

func (r *Reconciler) applyCancelled(ctx context.Context, ev *decoder.Event, net *models.Network, escrowDBID int64, log *zap.Logger) error {
	state := models.EscrowStateCancelled

	// Attribute the cancellation: a recorded auto-cancel attempt wins, a
	// cancel signed by the arbitrator without one is retro-linked as a
	// probable system cancellation.
	match, err := r.autocancel.FindMatch(ctx, escrowDBID, ev.TxID)
	if err != nil {
		log.Warn("auto-cancel attempt lookup failed", zap.Error(err))
	}
	switch {
	case match != nil:
		state = models.EscrowStateAutoCancelled
		if match.Status == models.AutoCancelStatusPending {
			if err := r.autocancel.MarkSuccess(ctx, match.ID, ev.TxID); err != nil {
				log.Warn("auto-cancel attempt confirm failed", zap.Error(err))
			}
		}
	case cancellerIsArbitrator(ev, net):
		state = models.EscrowStateAutoCancelled
		if _, err := r.autocancel.LinkRetroactive(ctx, escrowDBID, ev.NetworkID, ev.TxID); err != nil {
			log.Warn("auto-cancel retro-link failed", zap.Error(err))
		} else {
			log.Info("cancellation attributed to arbitrator, retro-linked")
		}
	}

	changed, err := r.escrows.MarkCancelled(ctx, escrowDBID, state)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if tradeID, leg := r.legFor(ctx, ev, log); leg != 0 {
		moved, err := r.advanceLeg(ctx, tradeID, leg, models.LegStateCancelled, legActiveStates, log)
		if err != nil {
			return err
		}
		if moved {
			r.publishTrade(ctx, tradeID, leg, models.LegStateCancelled, ev)
		}
		if err := r.maybeSettleTrade(ctx, tradeID, ev); err != nil {
			return err
		}
	}
	if changed {
		r.publishEscrow(ctx, escrowDBID, state, ev)
	}
	return nil
}

func (r *Reconciler) applyDisputeOpened(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	changed, err := r.escrows.MarkDisputed(ctx, escrowDBID)
	if err != nil {
		return fmt.Errorf("mark disputed: %w", err)
	}
	if tradeID, ok := ev.FieldUint64("tradeId"); ok {
		moved, err := r.trades.DisputeLegs(ctx, int64(tradeID))
		if err != nil {
			return fmt.Errorf("dispute trade: %w", err)
		}
		if moved {
			r.publishTrade(ctx, int64(tradeID), 0, models.LegStateDisputed, ev)
		}
	}
	if changed {
		r.publishEscrow(ctx, escrowDBID, models.EscrowStateDisputed, ev)
	}
	return nil
}

func (r *Reconciler) applyDisputeResolved(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	changed, err := r.escrows.MarkResolved(ctx, escrowDBID)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	if tradeID, leg := r.legFor(ctx, ev, log); leg != 0 {
		moved, err := r.advanceLeg(ctx, tradeID, leg, models.LegStateResolved, legActiveStates, log)
		if err != nil {
			return err
		}
		if moved {
			r.publishTrade(ctx, tradeID, leg, models.LegStateResolved, ev)
		}
		if err := r.maybeSettleTrade(ctx, tradeID, ev); err != nil {
			return err
		}
	}
	if changed {
		r.publishEscrow(ctx, escrowDBID, models.EscrowStateResolved, ev)
	}
	return nil
}

func (r *Reconciler) applyBalanceChanged(ctx context.Context, ev *decoder.Event, escrowDBID int64, log *zap.Logger) error {
	amount, ok := ev.FieldUint64("newBalance")
	if !ok {
		return fmt.Errorf("%s event has no balance", ev.Name)
	}
	balance := usdc(amount)
	changed, err := r.escrows.UpdateBalance(ctx, escrowDBID, balance)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if changed {
		r.publishBalance(ctx, escrowDBID, balance, ev)
	}
	return nil
}

// advanceLeg applies a guarded leg transition. A rejection by the
// deadline trigger means the database defended an invariant, not that
// processing failed; it is logged and treated as a no-op.
func (r *Reconciler) advanceLeg(ctx context.Context, tradeID int64, leg int, to string, allowedFrom []string, log *zap.Logger) (bool, error) {
	changed, err := r.trades.AdvanceLeg(ctx, tradeID, leg, to, allowedFrom)
	if err != nil {
		if repositories.IsDeadlineViolation(err) {
			log.Warn("leg transition rejected by deadline guard",
				zap.Int64("trade_id", tradeID), zap.Int("leg", leg), zap.String("to", to))
			return false, nil
		}
		return false, fmt.Errorf("advance leg %d to %s: %w", leg, to, err)
	}
	return changed, nil
}

// maybeSettleTrade closes the overall trade once every leg is terminal:
// COMPLETED when value moved to the buyer on any leg, CANCELLED when
// everything unwound.
func (r *Reconciler) maybeSettleTrade(ctx context.Context, tradeID int64, ev *decoder.Event) error {
	trade, err := r.trades.GetByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("load trade: %w", err)
	}
	if trade == nil {
		return nil
	}
	if trade.OverallStatus != models.TradeStatusInProgress && trade.OverallStatus != models.TradeStatusDisputed {
		return nil
	}

	legStates := []string{trade.Leg1State}
	if trade.Leg2State != nil {
		legStates = append(legStates, *trade.Leg2State)
	}
	settled := models.TradeStatusCancelled
	for _, st := range legStates {
		if !models.IsTerminalLegState(st) {
			return nil
		}
		switch st {
		case models.LegStateReleased, models.LegStateCompleted, models.LegStateResolved:
			settled = models.TradeStatusCompleted
		}
	}

	changed, err := r.trades.SetOverall(ctx, tradeID, settled, overallOpenStates)
	if err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}
	if changed {
		_ = r.publisher.Publish(ctx, events.ChannelTrade, events.New(events.EventTradeStateChanged, map[string]any{
			"trade_id":       tradeID,
			"overall_status": settled,
			"tx_id":          ev.TxID,
			"network_id":     ev.NetworkID,
		}))
	}
	return nil
}

// legFor resolves which trade leg the event's escrow is bound to.
func (r *Reconciler) legFor(ctx context.Context, ev *decoder.Event, log *zap.Logger) (int64, int) {
	tradeID, ok := ev.FieldUint64("tradeId")
	if !ok {
		return 0, 0
	}
	onchainID, _ := ev.FieldString("escrowId")
	leg, err := r.trades.LegForEscrow(ctx, int64(tradeID), onchainID, ev.NetworkID)
	if err != nil {
		log.Warn("trade leg lookup failed", zap.Uint64("trade_id", tradeID), zap.Error(err))
		return int64(tradeID), 0
	}
	return int64(tradeID), leg
}

func (r *Reconciler) publishEscrow(ctx context.Context, escrowDBID int64, state string, ev *decoder.Event) {
	onchainID, _ := ev.FieldString("escrowId")
	_ = r.publisher.Publish(ctx, events.ChannelEscrow, events.New(events.EventEscrowStateChanged, map[string]any{
		"escrow_id":         escrowDBID,
		"onchain_escrow_id": onchainID,
		"network_id":        ev.NetworkID,
		"new_state":         state,
		"tx_id":             ev.TxID,
	}))
}

func (r *Reconciler) publishTrade(ctx context.Context, tradeID int64, leg int, state string, ev *decoder.Event) {
	payload := map[string]any{
		"trade_id":   tradeID,
		"new_state":  state,
		"network_id": ev.NetworkID,
		"tx_id":      ev.TxID,
	}
	if leg != 0 {
		payload["leg"] = leg
	}
	_ = r.publisher.Publish(ctx, events.ChannelTrade, events.New(events.EventTradeStateChanged, payload))
}

func (r *Reconciler) publishBalance(ctx context.Context, escrowDBID int64, balance decimal.Decimal, ev *decoder.Event) {
	_ = r.publisher.Publish(ctx, events.ChannelEscrow, events.New(events.EventEscrowBalanceChanged, map[string]any{
		"escrow_id":  escrowDBID,
		"network_id": ev.NetworkID,
		"balance":    balance.String(),
		"tx_id":      ev.TxID,
	}))
}

// usdc converts 6-decimal base units into a decimal amount.
func usdc(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -6)
}

func eventDeadline(ev *decoder.Event, field string) *time.Time {
	v, ok := ev.FieldInt64(field)
	if !ok || v <= 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

func eventAddress(ev *decoder.Event, field string) *string {
	if field == "" {
		return nil
	}
	s, ok := ev.FieldString(field)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func senderField(event string) string {
	switch event {
	case decoder.EventEscrowCreated:
		return "seller"
	case decoder.EventEscrowCancelled:
		return "canceller"
	case decoder.EventDisputeOpened:
		return "opener"
	}
	return ""
}

func receiverField(event string) string {
	if event == decoder.EventEscrowReleased {
		return "buyer"
	}
	return ""
}

func txTypeForEvent(event string) string {
	switch event {
	case decoder.EventEscrowCreated:
		return models.TxTypeCreateEscrow
	case decoder.EventFundsDeposited:
		return models.TxTypeFundEscrow
	case decoder.EventFiatMarkedPaid:
		return models.TxTypeMarkFiatPaid
	case decoder.EventEscrowReleased:
		return models.TxTypeReleaseEscrow
	case decoder.EventEscrowCancelled:
		return models.TxTypeCancelEscrow
	case decoder.EventDisputeOpened:
		return models.TxTypeOpenDispute
	case decoder.EventDisputeResolved:
		return models.TxTypeResolveDispute
	}
	return models.TxTypeEvent
}

// cancellerIsArbitrator compares the cancelling address against the
// network's configured arbitrator. EVM addresses compare case-insensitive
// (checksum casing), base58 is exact.
func cancellerIsArbitrator(ev *decoder.Event, net *models.Network) bool {
	if net == nil || net.ArbitratorAddress == "" {
		return false
	}
	canceller, ok := ev.FieldString("canceller")
	if !ok || canceller == "" {
		return false
	}
	if net.Family == models.FamilyEVM {
		return strings.EqualFold(canceller, net.ArbitratorAddress)
	}
	return canceller == net.ArbitratorAddress
}

func isZeroAddress(s string) bool {
	switch s {
	case "0x0000000000000000000000000000000000000000", "11111111111111111111111111111111":
		return true
	}
	return false
}
