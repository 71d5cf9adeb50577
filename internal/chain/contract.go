package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// escrowABIJSON is the EVM escrow contract surface the backend touches:
// the lifecycle events the listener decodes and the three calls the
// adapter makes (two views plus the arbitrator-only auto-cancel).
const escrowABIJSON = `[
	{"type":"event","name":"EscrowCreated","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"seller","type":"address","indexed":false},
		{"name":"buyer","type":"address","indexed":false},
		{"name":"arbitrator","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"depositDeadline","type":"uint256","indexed":false},
		{"name":"fiatDeadline","type":"uint256","indexed":false},
		{"name":"sequential","type":"bool","indexed":false},
		{"name":"sequentialEscrowAddress","type":"address","indexed":false}]},
	{"type":"event","name":"FundsDeposited","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"counter","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"FiatMarkedPaid","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"EscrowReleased","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"buyer","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"counter","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"destination","type":"string","indexed":false}]},
	{"type":"event","name":"EscrowCancelled","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"canceller","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"counter","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"DisputeOpened","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"opener","type":"address","indexed":false},
		{"name":"bondAmount","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"DisputeResolved","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"winner","type":"address","indexed":false},
		{"name":"buyerWins","type":"bool","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"EscrowBalanceChanged","inputs":[
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"tradeId","type":"uint256","indexed":true},
		{"name":"newBalance","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false}]},
	{"type":"function","name":"escrowBalance","stateMutability":"view","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isEligibleForAutoCancel","stateMutability":"view","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"autoCancel","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[]}
]`

var (
	escrowABIOnce sync.Once
	escrowABI     abi.ABI
	escrowABIErr  error
)

// EscrowABI returns the parsed escrow contract ABI. Parsing a known-good
// constant cannot fail at runtime, so errors surface as a panic at first use.
func EscrowABI() abi.ABI {
	escrowABIOnce.Do(func() {
		escrowABI, escrowABIErr = abi.JSON(strings.NewReader(escrowABIJSON))
	})
	if escrowABIErr != nil {
		panic(escrowABIErr)
	}
	return escrowABI
}
