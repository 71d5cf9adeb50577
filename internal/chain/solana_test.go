package chain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func newTestSolanaAdapter(t *testing.T, testnet bool) *SolanaAdapter {
	t.Helper()
	a, err := NewSolanaAdapter(&models.Network{
		Name:      "test-solana",
		Family:    models.FamilySolana,
		RPCURL:    "http://localhost:8899",
		ProgramID: strPtr("4PonUp1nPEzDPnRMPjTqufLT3f37QuBJGk1SVkVvmK6u"),
		IsTestnet: testnet,
	}, &config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSolanaAdapter: %v", err)
	}
	return a
}

func TestSolanaValidateAddress(t *testing.T) {
	a := newTestSolanaAdapter(t, true)

	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"system program", "11111111111111111111111111111111", true},
		{"usdc mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"token program", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", true},
		{"too short", "abc", false},
		{"invalid base58 chars", "0OIl1111111111111111111111111111", false},
		{"evm address", "0x5425890298aed601595a70ab815c96711a31bc65", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ValidateAddress(tt.addr); got != tt.expected {
				t.Errorf("ValidateAddress(%q) = %v, want %v", tt.addr, got, tt.expected)
			}
		})
	}
}

func TestSolanaValidateTransactionHash(t *testing.T) {
	a := newTestSolanaAdapter(t, true)

	// A well-formed signature is base58 over 64 bytes, 87-88 characters.
	var raw [64]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	valid := solana.Signature(raw).String()
	if len(valid) < 87 || len(valid) > 88 {
		t.Fatalf("test signature has unexpected length %d", len(valid))
	}

	tests := []struct {
		name     string
		sig      string
		expected bool
	}{
		{"valid signature", valid, true},
		{"too short", valid[:86], false},
		{"too long", valid + strings.Repeat("1", 3), false},
		{"invalid charset", strings.Replace(valid, valid[1:2], "0", 1), false},
		{"evm hash", "0x6d06b8f8a959ddeae4087ae3ef0f50a5a00379710ca1dca1cd3334080a3cf2b1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ValidateTransactionHash(tt.sig); got != tt.expected {
				t.Errorf("ValidateTransactionHash(%q) = %v, want %v", tt.sig, got, tt.expected)
			}
		})
	}
}

func TestSolanaExplorerURLs(t *testing.T) {
	devnet := newTestSolanaAdapter(t, true)
	mainnet := newTestSolanaAdapter(t, false)

	sig := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

	if got := devnet.ExplorerTxURL(sig); got != "https://explorer.solana.com/tx/"+sig+"?cluster=devnet" {
		t.Errorf("devnet ExplorerTxURL = %q", got)
	}
	if got := mainnet.ExplorerTxURL(sig); got != "https://explorer.solana.com/tx/"+sig {
		t.Errorf("mainnet ExplorerTxURL = %q", got)
	}
	if got := devnet.ExplorerAddressURL("abc"); got != "https://explorer.solana.com/address/abc?cluster=devnet" {
		t.Errorf("devnet ExplorerAddressURL = %q", got)
	}
}

func TestAnchorInstructionDiscriminator(t *testing.T) {
	d := anchorInstructionDiscriminator("auto_cancel")
	if len(d) != 8 {
		t.Fatalf("discriminator length = %d, want 8", len(d))
	}
	if !bytes.Equal(d, autoCancelDiscriminator) {
		t.Error("autoCancelDiscriminator does not match derivation")
	}
	if bytes.Equal(d, anchorInstructionDiscriminator("release")) {
		t.Error("different instruction names must not collide")
	}
}

func TestCommitment(t *testing.T) {
	tests := []struct {
		in       string
		expected rpc.CommitmentType
	}{
		{"processed", rpc.CommitmentProcessed},
		{"confirmed", rpc.CommitmentConfirmed},
		{"finalized", rpc.CommitmentFinalized},
		{"", rpc.CommitmentConfirmed},
		{"bogus", rpc.CommitmentConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Commitment(tt.in); got != tt.expected {
				t.Errorf("Commitment(%q) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestNewSolanaAdapterRejectsBadKey(t *testing.T) {
	_, err := NewSolanaAdapter(&models.Network{Name: "test-solana", Family: models.FamilySolana, RPCURL: "http://localhost:8899"},
		&config.Config{ArbitratorSolanaKey: "not-a-key"}, zap.NewNop())
	if err == nil {
		t.Error("expected error for malformed private key")
	}
}
