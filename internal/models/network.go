package models

import "time"

type ChainFamily string

const (
	FamilyEVM    ChainFamily = "EVM"
	FamilySolana ChainFamily = "SOLANA"
)

func (f ChainFamily) Valid() bool {
	return f == FamilyEVM || f == FamilySolana
}

type Network struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Family            ChainFamily `json:"family"`
	ChainID           *int64      `json:"chain_id,omitempty"` // EVM only
	RPCURL            string      `json:"rpc_url"`
	WSURL             *string     `json:"ws_url,omitempty"`
	ContractAddress   *string     `json:"contract_address,omitempty"` // EVM escrow contract
	ProgramID         *string     `json:"program_id,omitempty"`       // Solana escrow program
	USDCMint          *string     `json:"usdc_mint,omitempty"`
	ArbitratorAddress string      `json:"arbitrator_address"`
	IsTestnet         bool        `json:"is_testnet"`
	IsActive          bool        `json:"is_active"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// EscrowTarget returns the on-chain entity the listener watches:
// the contract address on EVM networks, the program id on Solana.
func (n *Network) EscrowTarget() string {
	switch n.Family {
	case FamilyEVM:
		if n.ContractAddress != nil {
			return *n.ContractAddress
		}
	case FamilySolana:
		if n.ProgramID != nil {
			return *n.ProgramID
		}
	}
	return ""
}
