package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/escrow-marketplace/backend/internal/chain"
)

// DecodeEVMLog decodes one contract log against the escrow ABI. The
// subscription is already address-scoped, so any log arriving here with
// an unknown topic is a contract we do not understand rather than noise
// to skip, and that surfaces as an error.
func DecodeEVMLog(networkID int64, lg types.Log) (*Event, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("log in tx %s has no topics", lg.TxHash.Hex())
	}

	contractABI := chain.EscrowABI()
	ev, err := contractABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event topic %s: %w", lg.Topics[0].Hex(), err)
	}

	fields := make(map[string]any)
	if len(lg.Data) > 0 {
		if err := contractABI.UnpackIntoMap(fields, ev.Name, lg.Data); err != nil {
			return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("parse %s topics: %w", ev.Name, err)
		}
	}

	for k, v := range fields {
		fields[k] = normalizeEVMValue(v)
	}

	return &Event{
		Name:      ev.Name,
		NetworkID: networkID,
		TxID:      lg.TxHash.Hex(),
		Block:     lg.BlockNumber,
		Fields:    fields,
	}, nil
}

// normalizeEVMValue renders ABI-decoded values JSON-safe. Big integers
// become decimal strings, addresses lowercase hex.
func normalizeEVMValue(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case common.Address:
		return strings.ToLower(t.Hex())
	case common.Hash:
		return t.Hex()
	default:
		return v
	}
}
