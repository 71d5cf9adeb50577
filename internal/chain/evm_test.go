package chain

import (
	"testing"

	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestEVMAdapter(t *testing.T, chainID int64, testnet bool) *EVMAdapter {
	t.Helper()
	a, err := NewEVMAdapter(&models.Network{
		Name:      "test-evm",
		Family:    models.FamilyEVM,
		ChainID:   int64Ptr(chainID),
		IsTestnet: testnet,
	}, &config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	return a
}

func TestEVMValidateAddress(t *testing.T) {
	a := newTestEVMAdapter(t, 44787, true)

	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"valid lowercase", "0x5425890298aed601595a70ab815c96711a31bc65", true},
		{"valid checksummed", "0x5425890298AEd601595a70AB815c96711a31Bc65", true},
		{"missing prefix", "5425890298aed601595a70ab815c96711a31bc65", false},
		{"too short", "0x5425890298aed601595a70ab815c96711a31bc6", false},
		{"too long", "0x5425890298aed601595a70ab815c96711a31bc655", false},
		{"non-hex chars", "0x5425890298aed601595a70ab815c96711a31bg65", false},
		{"empty", "", false},
		{"solana address", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ValidateAddress(tt.addr); got != tt.expected {
				t.Errorf("ValidateAddress(%q) = %v, want %v", tt.addr, got, tt.expected)
			}
		})
	}
}

func TestEVMValidateTransactionHash(t *testing.T) {
	a := newTestEVMAdapter(t, 44787, true)

	tests := []struct {
		name     string
		hash     string
		expected bool
	}{
		{"valid", "0x6d06b8f8a959ddeae4087ae3ef0f50a5a00379710ca1dca1cd3334080a3cf2b1", true},
		{"valid uppercase", "0x6D06B8F8A959DDEAE4087AE3EF0F50A5A00379710CA1DCA1CD3334080A3CF2B1", true},
		{"missing prefix", "6d06b8f8a959ddeae4087ae3ef0f50a5a00379710ca1dca1cd3334080a3cf2b1", false},
		{"too short", "0x6d06b8f8a959ddeae4087ae3ef0f50a5a00379710ca1dca1cd3334080a3cf2b", false},
		{"address length", "0x5425890298aed601595a70ab815c96711a31bc65", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ValidateTransactionHash(tt.hash); got != tt.expected {
				t.Errorf("ValidateTransactionHash(%q) = %v, want %v", tt.hash, got, tt.expected)
			}
		})
	}
}

func TestEVMExplorerURLs(t *testing.T) {
	tests := []struct {
		name     string
		chainID  int64
		testnet  bool
		txURL    string
		addrURL  string
	}{
		{"celo mainnet", 42220, false,
			"https://celoscan.io/tx/0xabc", "https://celoscan.io/address/0xdef"},
		{"celo alfajores", 44787, true,
			"https://alfajores.celoscan.io/tx/0xabc", "https://alfajores.celoscan.io/address/0xdef"},
		{"ethereum mainnet", 1, false,
			"https://etherscan.io/tx/0xabc", "https://etherscan.io/address/0xdef"},
		{"unknown testnet falls back", 999, true,
			"https://sepolia.etherscan.io/tx/0xabc", "https://sepolia.etherscan.io/address/0xdef"},
		{"unknown mainnet falls back", 999, false,
			"https://etherscan.io/tx/0xabc", "https://etherscan.io/address/0xdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestEVMAdapter(t, tt.chainID, tt.testnet)
			if got := a.ExplorerTxURL("0xabc"); got != tt.txURL {
				t.Errorf("ExplorerTxURL = %q, want %q", got, tt.txURL)
			}
			if got := a.ExplorerAddressURL("0xdef"); got != tt.addrURL {
				t.Errorf("ExplorerAddressURL = %q, want %q", got, tt.addrURL)
			}
		})
	}
}

func TestNewEVMAdapterRejectsBadKey(t *testing.T) {
	_, err := NewEVMAdapter(&models.Network{Name: "test-evm", Family: models.FamilyEVM},
		&config.Config{ArbitratorEVMKey: "not-a-key"}, zap.NewNop())
	if err == nil {
		t.Error("expected error for malformed private key")
	}
}

func TestParseOnchainID(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"12345", true},
		{"0", true},
		{"18446744073709551615", true},
		{"340282366920938463463374607431768211455", true}, // beyond u64, still a valid uint256
		{"", false},
		{"12.5", false},
		{"0x1f", false},
		{"abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseOnchainID(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("parseOnchainID(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}
