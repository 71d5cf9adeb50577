package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/chain"
	"github.com/escrow-marketplace/backend/internal/events"
	"github.com/escrow-marketplace/backend/internal/models"
)

// NetworkDirectory is the registry surface the intake path uses.
type NetworkDirectory interface {
	ByID(ctx context.Context, id int64) (*models.Network, error)
	Default(ctx context.Context, family models.ChainFamily) (*models.Network, error)
}

// RecordEscrowParams is the escrow-creation record handed over by the
// trading API after a user signs the create transaction. Solana escrows
// additionally carry the program-derived account addresses.
type RecordEscrowParams struct {
	TradeID           int64
	NetworkID         *int64 // nil selects the family default network
	TransactionID     string // create tx hash or signature
	OnchainEscrowID   string
	Seller            string
	Buyer             string
	Amount            decimal.Decimal
	Sequential        bool
	SequentialAddress *string

	// Solana only.
	ProgramID          *string
	EscrowPDA          *string
	EscrowTokenAccount *string
	TradeOnchainID     *string
}

func (p *RecordEscrowParams) solanaShaped() bool {
	return p.ProgramID != nil || p.EscrowPDA != nil || p.EscrowTokenAccount != nil || p.TradeOnchainID != nil
}

// EscrowIntake accepts escrow-creation records from the trading API and
// answers balance and eligibility reads. Writes here are provisional: the
// on-chain EscrowCreated event remains the authority and reconciliation
// converges the row regardless of which side wrote first.
type EscrowIntake struct {
	escrows    EscrowStore
	mappings   MappingStore
	txs        TransactionLedger
	networks   NetworkDirectory
	publisher  events.Publisher
	newAdapter AdapterFactory
	log        *zap.Logger

	mu       sync.Mutex
	adapters map[int64]chain.Adapter
}

func NewEscrowIntake(
	escrows EscrowStore,
	mappings MappingStore,
	txs TransactionLedger,
	networks NetworkDirectory,
	publisher events.Publisher,
	newAdapter AdapterFactory,
	log *zap.Logger,
) *EscrowIntake {
	return &EscrowIntake{
		escrows:    escrows,
		mappings:   mappings,
		txs:        txs,
		networks:   networks,
		publisher:  publisher,
		newAdapter: newAdapter,
		log:        log,
		adapters:   make(map[int64]chain.Adapter),
	}
}

// RecordEscrow validates the record against the target network's family
// and inserts the escrow row, id mapping and a PENDING transaction. The
// insert is conflict-tolerant so an event-driven row that landed first
// wins.
func (s *EscrowIntake) RecordEscrow(ctx context.Context, p RecordEscrowParams) (*models.Escrow, error) {
	net, err := s.network(ctx, &p)
	if err != nil {
		return nil, err
	}
	ad, err := s.adapter(net)
	if err != nil {
		return nil, fmt.Errorf("chain adapter: %w", err)
	}
	if err := validateRecord(&p, net, ad); err != nil {
		return nil, err
	}

	esc := &models.Escrow{
		TradeID:         p.TradeID,
		NetworkID:       net.ID,
		OnchainEscrowID: p.OnchainEscrowID,
		EscrowAddress:   net.EscrowTarget(),
		SellerAddress:   p.Seller,
		BuyerAddress:    p.Buyer,
		Amount:          p.Amount,
		CurrentBalance:  decimal.Zero,
		State:           models.EscrowStateCreated,
		Sequential:      p.Sequential,
	}
	if net.ArbitratorAddress != "" {
		esc.ArbitratorAddress = net.ArbitratorAddress
	}
	if p.Sequential && p.SequentialAddress != nil {
		esc.SequentialEscrowAddress = p.SequentialAddress
	}
	if p.EscrowPDA != nil {
		esc.EscrowAddress = *p.EscrowPDA
	}
	if p.EscrowTokenAccount != nil {
		esc.TokenAccount = p.EscrowTokenAccount
	}

	inserted, err := s.escrows.Create(ctx, esc)
	if err != nil {
		return nil, fmt.Errorf("insert escrow: %w", err)
	}
	if !inserted {
		existing, err := s.escrows.GetByOnchainID(ctx, p.OnchainEscrowID, net.ID)
		if err != nil {
			return nil, fmt.Errorf("load existing escrow: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("escrow %s on network %d already recorded but not readable", p.OnchainEscrowID, net.ID)
		}
		esc = existing
	}

	if err := s.mappings.Upsert(ctx, p.OnchainEscrowID, net.ID, esc.ID); err != nil {
		s.log.Warn("escrow id mapping upsert failed", zap.Error(err))
	}
	s.recordCreateTx(ctx, &p, net, esc)

	if inserted {
		_ = s.publisher.Publish(ctx, events.ChannelEscrow, events.New(events.EventEscrowStateChanged, map[string]any{
			"escrow_id":         esc.ID,
			"onchain_escrow_id": esc.OnchainEscrowID,
			"network_id":        net.ID,
			"new_state":         models.EscrowStateCreated,
			"tx_id":             p.TransactionID,
		}))
	}
	s.log.Info("escrow recorded",
		zap.Int64("escrow_id", esc.ID),
		zap.Int64("trade_id", p.TradeID),
		zap.String("onchain_escrow_id", p.OnchainEscrowID),
		zap.Int64("network_id", net.ID))
	return esc, nil
}

// StoredBalance reads the current balance from the ledger row.
func (s *EscrowIntake) StoredBalance(ctx context.Context, escrowDBID int64) (decimal.Decimal, error) {
	esc, err := s.escrows.GetByID(ctx, escrowDBID)
	if err != nil {
		return decimal.Zero, err
	}
	if esc == nil {
		return decimal.Zero, fmt.Errorf("escrow %d not found", escrowDBID)
	}
	return esc.CurrentBalance, nil
}

// CalculatedBalance asks the chain for the live escrow balance.
func (s *EscrowIntake) CalculatedBalance(ctx context.Context, escrowDBID int64) (decimal.Decimal, error) {
	esc, ad, err := s.load(ctx, escrowDBID)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := ad.EscrowBalance(ctx, esc)
	if err != nil {
		return decimal.Zero, fmt.Errorf("escrow balance call: %w", err)
	}
	return usdc(raw), nil
}

// SequentialInfo reports the sequential flag and successor address.
func (s *EscrowIntake) SequentialInfo(ctx context.Context, escrowDBID int64) (bool, *string, error) {
	esc, err := s.escrows.GetByID(ctx, escrowDBID)
	if err != nil {
		return false, nil, err
	}
	if esc == nil {
		return false, nil, fmt.Errorf("escrow %d not found", escrowDBID)
	}
	return esc.Sequential, esc.SequentialEscrowAddress, nil
}

// AutoCancelEligible asks the contract whether the escrow can be
// auto-cancelled right now.
func (s *EscrowIntake) AutoCancelEligible(ctx context.Context, escrowDBID int64) (bool, error) {
	esc, ad, err := s.load(ctx, escrowDBID)
	if err != nil {
		return false, err
	}
	eligible, err := ad.AutoCancelEligible(ctx, esc)
	if err != nil {
		return false, fmt.Errorf("eligibility call: %w", err)
	}
	return eligible, nil
}

func (s *EscrowIntake) load(ctx context.Context, escrowDBID int64) (*models.Escrow, chain.Adapter, error) {
	esc, err := s.escrows.GetByID(ctx, escrowDBID)
	if err != nil {
		return nil, nil, err
	}
	if esc == nil {
		return nil, nil, fmt.Errorf("escrow %d not found", escrowDBID)
	}
	net, err := s.networks.ByID(ctx, esc.NetworkID)
	if err != nil {
		return nil, nil, fmt.Errorf("load network: %w", err)
	}
	ad, err := s.adapter(net)
	if err != nil {
		return nil, nil, fmt.Errorf("chain adapter: %w", err)
	}
	return esc, ad, nil
}

// network picks the target: explicit id when given, otherwise the family
// default inferred from the record's shape.
func (s *EscrowIntake) network(ctx context.Context, p *RecordEscrowParams) (*models.Network, error) {
	if p.NetworkID != nil {
		net, err := s.networks.ByID(ctx, *p.NetworkID)
		if err != nil {
			return nil, fmt.Errorf("network %d: %w", *p.NetworkID, err)
		}
		return net, nil
	}
	family := models.FamilyEVM
	if p.solanaShaped() {
		family = models.FamilySolana
	}
	net, err := s.networks.Default(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("default %s network: %w", family, err)
	}
	return net, nil
}

func validateRecord(p *RecordEscrowParams, net *models.Network, ad chain.Adapter) error {
	if p.TradeID <= 0 {
		return fmt.Errorf("trade id is required")
	}
	if p.OnchainEscrowID == "" {
		return fmt.Errorf("onchain escrow id is required")
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if !ad.ValidateTransactionHash(p.TransactionID) {
		return fmt.Errorf("transaction id %q is not valid for %s", p.TransactionID, net.Family)
	}
	if !ad.ValidateAddress(p.Seller) {
		return fmt.Errorf("seller address %q is not valid for %s", p.Seller, net.Family)
	}
	if !ad.ValidateAddress(p.Buyer) {
		return fmt.Errorf("buyer address %q is not valid for %s", p.Buyer, net.Family)
	}
	if p.Sequential {
		if p.SequentialAddress == nil || *p.SequentialAddress == "" {
			return fmt.Errorf("sequential escrow requires a sequential address")
		}
		if !ad.ValidateAddress(*p.SequentialAddress) {
			return fmt.Errorf("sequential address %q is not valid for %s", *p.SequentialAddress, net.Family)
		}
	}

	if net.Family == models.FamilyEVM && p.solanaShaped() {
		return fmt.Errorf("program id, escrow pda, token account and trade onchain id only apply to SOLANA networks")
	}
	if net.Family == models.FamilySolana {
		for name, v := range map[string]*string{
			"program id":    p.ProgramID,
			"escrow pda":    p.EscrowPDA,
			"token account": p.EscrowTokenAccount,
		} {
			if v != nil && !ad.ValidateAddress(*v) {
				return fmt.Errorf("%s %q is not a valid SOLANA address", name, *v)
			}
		}
	}
	return nil
}

func (s *EscrowIntake) recordCreateTx(ctx context.Context, p *RecordEscrowParams, net *models.Network, esc *models.Escrow) {
	rec := &models.TransactionRecord{
		NetworkID:         net.ID,
		Status:            models.TxStatusPending,
		Type:              models.TxTypeCreateEscrow,
		SenderAddress:     &p.Seller,
		RelatedTradeID:    &p.TradeID,
		RelatedEscrowDBID: &esc.ID,
	}
	if net.Family == models.FamilySolana {
		rec.Signature = &p.TransactionID
	} else {
		rec.TransactionHash = &p.TransactionID
	}
	if _, err := s.txs.Record(ctx, rec); err != nil {
		s.log.Warn("create transaction record failed", zap.Error(err))
	}
}

func (s *EscrowIntake) adapter(net *models.Network) (chain.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ad, ok := s.adapters[net.ID]; ok {
		return ad, nil
	}
	ad, err := s.newAdapter(net)
	if err != nil {
		return nil, err
	}
	s.adapters[net.ID] = ad
	return ad, nil
}

// Close releases all cached chain adapters.
func (s *EscrowIntake) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ad := range s.adapters {
		ad.Close()
		delete(s.adapters, id)
	}
}
