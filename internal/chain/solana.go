package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// On-chain escrow account states, mirroring the program's enum order.
const (
	onchainEscrowCreated uint8 = iota
	onchainEscrowFunded
	onchainEscrowReleased
	onchainEscrowCancelled
	onchainEscrowDisputed
	onchainEscrowResolved
)

var solanaSigRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{87,88}$`)

var autoCancelDiscriminator = anchorInstructionDiscriminator("auto_cancel")

// anchorInstructionDiscriminator derives the 8-byte Anchor instruction id:
// sha256("global:<name>")[0:8].
func anchorInstructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

// Commitment maps the configured commitment level to the RPC constant,
// defaulting to confirmed.
func Commitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// escrowAccount is the Borsh layout of the program's escrow state account,
// after the 8-byte account discriminator.
type escrowAccount struct {
	EscrowID        uint64
	TradeID         uint64
	Seller          solana.PublicKey
	Buyer           solana.PublicKey
	Arbitrator      solana.PublicKey
	Amount          uint64
	DepositDeadline int64
	FiatDeadline    int64
	State           uint8
	Sequential      bool
}

type SolanaAdapter struct {
	net        *models.Network
	log        *zap.Logger
	key        solana.PrivateKey // nil when no arbitrator key is configured
	commitment rpc.CommitmentType
	client     *rpc.Client
}

func NewSolanaAdapter(net *models.Network, cfg *config.Config, log *zap.Logger) (*SolanaAdapter, error) {
	a := &SolanaAdapter{
		net:        net,
		log:        log,
		commitment: Commitment(cfg.SolanaCommitment),
		client:     rpc.New(net.RPCURL),
	}

	if cfg.ArbitratorSolanaKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.ArbitratorSolanaKey)
		if err != nil {
			return nil, fmt.Errorf("parse arbitrator solana key: %w", err)
		}
		a.key = key
	}
	return a, nil
}

func (a *SolanaAdapter) Family() models.ChainFamily {
	return models.FamilySolana
}

// ValidateAddress accepts anything that parses as an ed25519 public key.
func (a *SolanaAdapter) ValidateAddress(addr string) bool {
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

// ValidateTransactionHash accepts base58 signatures of 87 or 88 characters.
func (a *SolanaAdapter) ValidateTransactionHash(id string) bool {
	if !solanaSigRe.MatchString(id) {
		return false
	}
	_, err := solana.SignatureFromBase58(id)
	return err == nil
}

func (a *SolanaAdapter) ExplorerTxURL(txID string) string {
	return "https://explorer.solana.com/tx/" + txID + a.clusterSuffix()
}

func (a *SolanaAdapter) ExplorerAddressURL(addr string) string {
	return "https://explorer.solana.com/address/" + addr + a.clusterSuffix()
}

func (a *SolanaAdapter) clusterSuffix() string {
	if a.net.IsTestnet {
		return "?cluster=devnet"
	}
	return ""
}

func (a *SolanaAdapter) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	version, err := a.client.GetVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}

	slot, err := a.client.GetSlot(ctx, a.commitment)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	return &NetworkInfo{
		Name:        a.net.Name,
		Family:      models.FamilySolana,
		CoreVersion: version.SolanaCore,
		Slot:        slot,
	}, nil
}

// EscrowBalance reads the escrow token account when one is recorded, falling
// back to the amount held in the state account. A closed account reads as 0.
func (a *SolanaAdapter) EscrowBalance(ctx context.Context, esc *models.Escrow) (uint64, error) {
	if esc.TokenAccount != nil {
		account, err := solana.PublicKeyFromBase58(*esc.TokenAccount)
		if err != nil {
			return 0, fmt.Errorf("parse token account: %w", err)
		}
		res, err := a.client.GetTokenAccountBalance(ctx, account, a.commitment)
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return 0, nil
			}
			return 0, fmt.Errorf("token account balance: %w", err)
		}
		return strconv.ParseUint(res.Value.Amount, 10, 64)
	}

	acc, err := a.fetchEscrowAccount(ctx, esc.EscrowAddress)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if acc.State == onchainEscrowFunded {
		return acc.Amount, nil
	}
	return 0, nil
}

// AutoCancelEligible mirrors the program's own check: a created escrow past
// its deposit deadline, or a funded one past its fiat deadline.
func (a *SolanaAdapter) AutoCancelEligible(ctx context.Context, esc *models.Escrow) (bool, error) {
	acc, err := a.fetchEscrowAccount(ctx, esc.EscrowAddress)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	now := time.Now().Unix()
	switch acc.State {
	case onchainEscrowCreated:
		return acc.DepositDeadline > 0 && acc.DepositDeadline < now, nil
	case onchainEscrowFunded:
		return acc.FiatDeadline > 0 && acc.FiatDeadline < now, nil
	}
	return false, nil
}

func (a *SolanaAdapter) SubmitAutoCancel(ctx context.Context, esc *models.Escrow) (string, error) {
	if a.key == nil {
		return "", ErrNoSigner
	}
	if a.net.ProgramID == nil {
		return "", fmt.Errorf("network %s has no program id", a.net.Name)
	}

	program, err := solana.PublicKeyFromBase58(*a.net.ProgramID)
	if err != nil {
		return "", fmt.Errorf("parse program id: %w", err)
	}
	escrowPDA, err := solana.PublicKeyFromBase58(esc.EscrowAddress)
	if err != nil {
		return "", fmt.Errorf("parse escrow address: %w", err)
	}

	escrowID, err := strconv.ParseUint(esc.OnchainEscrowID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("onchain escrow id %q is not a u64", esc.OnchainEscrowID)
	}

	arbitrator := a.key.PublicKey()
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(escrowPDA, true, false),
		solana.NewAccountMeta(arbitrator, true, true),
	}
	if esc.TokenAccount != nil {
		tokenAccount, err := solana.PublicKeyFromBase58(*esc.TokenAccount)
		if err != nil {
			return "", fmt.Errorf("parse token account: %w", err)
		}
		accounts = append(accounts,
			solana.NewAccountMeta(tokenAccount, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		)
	}

	data := make([]byte, 0, 16)
	data = append(data, autoCancelDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, escrowID)

	blockhash, err := a.client.GetLatestBlockhash(ctx, a.commitment)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(program, accounts, data)},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(arbitrator),
	)
	if err != nil {
		return "", fmt.Errorf("build autoCancel tx: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(arbitrator) {
			return &a.key
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign autoCancel tx: %w", err)
	}

	sig, err := a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: a.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send autoCancel tx: %w", err)
	}

	a.log.Info("auto-cancel transaction submitted",
		zap.String("network", a.net.Name),
		zap.String("escrow_onchain_id", esc.OnchainEscrowID),
		zap.String("signature", sig.String()),
	)
	return sig.String(), nil
}

func (a *SolanaAdapter) fetchEscrowAccount(ctx context.Context, address string) (*escrowAccount, error) {
	pda, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse escrow address: %w", err)
	}

	res, err := a.client.GetAccountInfo(ctx, pda)
	if err != nil {
		return nil, err
	}

	data := res.Value.Data.GetBinary()
	if len(data) <= 8 {
		return nil, fmt.Errorf("escrow account %s too short: %d bytes", address, len(data))
	}

	var acc escrowAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&acc); err != nil {
		return nil, fmt.Errorf("decode escrow account %s: %w", address, err)
	}
	return &acc, nil
}

func (a *SolanaAdapter) Close() {
	// rpc.Client is HTTP-backed, nothing to tear down.
}
