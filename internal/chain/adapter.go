package chain

import (
	"context"
	"errors"

	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFamily = errors.New("unsupported chain family")
	ErrNoSigner          = errors.New("arbitrator signer is not configured")
	ErrNoTokenAccount    = errors.New("escrow has no token account recorded")
)

// NetworkInfo is diagnostic output for health endpoints, never hot-path state.
type NetworkInfo struct {
	Name          string             `json:"name"`
	Family        models.ChainFamily `json:"family"`
	ChainID       int64              `json:"chain_id,omitempty"`       // EVM
	ClientVersion string             `json:"client_version,omitempty"` // EVM
	CoreVersion   string             `json:"core_version,omitempty"`   // Solana
	Slot          uint64             `json:"slot,omitempty"`           // Solana
}

// Adapter normalizes per-family chain access. One instance per network,
// selected once at construction; call sites never branch on family.
type Adapter interface {
	Family() models.ChainFamily
	ValidateAddress(addr string) bool
	ValidateTransactionHash(id string) bool
	ExplorerTxURL(txID string) string
	ExplorerAddressURL(addr string) string
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)

	// Read-only escrow contract calls.
	EscrowBalance(ctx context.Context, esc *models.Escrow) (uint64, error)
	AutoCancelEligible(ctx context.Context, esc *models.Escrow) (bool, error)

	// SubmitAutoCancel signs and submits the cancel call with the arbitrator
	// key and returns the transaction hash or signature.
	SubmitAutoCancel(ctx context.Context, esc *models.Escrow) (string, error)

	Close()
}

func NewAdapter(net *models.Network, cfg *config.Config, log *zap.Logger) (Adapter, error) {
	switch net.Family {
	case models.FamilyEVM:
		return NewEVMAdapter(net, cfg, log)
	case models.FamilySolana:
		return NewSolanaAdapter(net, cfg, log)
	default:
		return nil, ErrUnsupportedFamily
	}
}
