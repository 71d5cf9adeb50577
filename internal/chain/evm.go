package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const autoCancelGasLimit = 250_000

var (
	evmAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	evmTxHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type EVMAdapter struct {
	net *models.Network
	log *zap.Logger
	key *ecdsa.PrivateKey // nil when no arbitrator key is configured

	mu     sync.Mutex
	client *ethclient.Client // dialed lazily, validation never needs it
}

func NewEVMAdapter(net *models.Network, cfg *config.Config, log *zap.Logger) (*EVMAdapter, error) {
	a := &EVMAdapter{net: net, log: log}

	if cfg.ArbitratorEVMKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.ArbitratorEVMKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse arbitrator evm key: %w", err)
		}
		a.key = key
	}
	return a, nil
}

func (a *EVMAdapter) Family() models.ChainFamily {
	return models.FamilyEVM
}

func (a *EVMAdapter) ValidateAddress(addr string) bool {
	return evmAddressRe.MatchString(addr)
}

func (a *EVMAdapter) ValidateTransactionHash(id string) bool {
	return evmTxHashRe.MatchString(id)
}

func (a *EVMAdapter) ExplorerTxURL(txID string) string {
	return a.explorerBase() + "/tx/" + txID
}

func (a *EVMAdapter) ExplorerAddressURL(addr string) string {
	return a.explorerBase() + "/address/" + addr
}

func (a *EVMAdapter) explorerBase() string {
	var chainID int64
	if a.net.ChainID != nil {
		chainID = *a.net.ChainID
	}
	switch chainID {
	case 42220:
		return "https://celoscan.io"
	case 44787:
		return "https://alfajores.celoscan.io"
	case 1:
		return "https://etherscan.io"
	case 11155111:
		return "https://sepolia.etherscan.io"
	}
	if a.net.IsTestnet {
		return "https://sepolia.etherscan.io"
	}
	return "https://etherscan.io"
}

func (a *EVMAdapter) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	client, err := a.ethClient(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	var version string
	if err := client.Client().CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return nil, fmt.Errorf("client version: %w", err)
	}

	return &NetworkInfo{
		Name:          a.net.Name,
		Family:        models.FamilyEVM,
		ChainID:       chainID.Int64(),
		ClientVersion: version,
	}, nil
}

func (a *EVMAdapter) EscrowBalance(ctx context.Context, esc *models.Escrow) (uint64, error) {
	escrowID, err := parseOnchainID(esc.OnchainEscrowID)
	if err != nil {
		return 0, err
	}

	out, err := a.callView(ctx, "escrowBalance", escrowID)
	if err != nil {
		return 0, err
	}

	balance, ok := out[0].(*big.Int)
	if !ok || !balance.IsUint64() {
		return 0, fmt.Errorf("escrowBalance returned unusable value for escrow %s", esc.OnchainEscrowID)
	}
	return balance.Uint64(), nil
}

func (a *EVMAdapter) AutoCancelEligible(ctx context.Context, esc *models.Escrow) (bool, error) {
	escrowID, err := parseOnchainID(esc.OnchainEscrowID)
	if err != nil {
		return false, err
	}

	out, err := a.callView(ctx, "isEligibleForAutoCancel", escrowID)
	if err != nil {
		return false, err
	}

	eligible, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isEligibleForAutoCancel returned unusable value for escrow %s", esc.OnchainEscrowID)
	}
	return eligible, nil
}

func (a *EVMAdapter) SubmitAutoCancel(ctx context.Context, esc *models.Escrow) (string, error) {
	if a.key == nil {
		return "", ErrNoSigner
	}
	if a.net.ContractAddress == nil {
		return "", fmt.Errorf("network %s has no contract address", a.net.Name)
	}

	escrowID, err := parseOnchainID(esc.OnchainEscrowID)
	if err != nil {
		return "", err
	}

	client, err := a.ethClient(ctx)
	if err != nil {
		return "", err
	}

	data, err := EscrowABI().Pack("autoCancel", escrowID)
	if err != nil {
		return "", fmt.Errorf("pack autoCancel: %w", err)
	}

	from := crypto.PubkeyToAddress(a.key.PublicKey)
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	chainID, err := a.chainID(ctx, client)
	if err != nil {
		return "", err
	}

	contract := common.HexToAddress(*a.net.ContractAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      autoCancelGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return "", fmt.Errorf("sign autoCancel tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send autoCancel tx: %w", err)
	}

	hash := signed.Hash().Hex()
	a.log.Info("auto-cancel transaction submitted",
		zap.String("network", a.net.Name),
		zap.String("escrow_onchain_id", esc.OnchainEscrowID),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}

func (a *EVMAdapter) callView(ctx context.Context, method string, args ...any) ([]any, error) {
	if a.net.ContractAddress == nil {
		return nil, fmt.Errorf("network %s has no contract address", a.net.Name)
	}

	client, err := a.ethClient(ctx)
	if err != nil {
		return nil, err
	}

	data, err := EscrowABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	contract := common.HexToAddress(*a.net.ContractAddress)
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := EscrowABI().Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s returned no values", method)
	}
	return out, nil
}

func (a *EVMAdapter) chainID(ctx context.Context, client *ethclient.Client) (*big.Int, error) {
	if a.net.ChainID != nil {
		return big.NewInt(*a.net.ChainID), nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return id, nil
}

func (a *EVMAdapter) ethClient(ctx context.Context) (*ethclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	client, err := ethclient.DialContext(ctx, a.net.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.net.RPCURL, err)
	}
	a.client = client
	return client, nil
}

func (a *EVMAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}

func parseOnchainID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("onchain escrow id %q is not a decimal integer", s)
	}
	return id, nil
}
