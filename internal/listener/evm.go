package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/decoder"
	"github.com/escrow-marketplace/backend/internal/models"
)

// EVMListener subscribes to the escrow contract's logs over websocket
// and feeds decoded events to the sink.
type EVMListener struct {
	net        *models.Network
	sink       Sink
	log        *zap.Logger
	maxBackoff time.Duration

	state atomic.Int32
	dedup *dedupSet

	mu     sync.Mutex
	client *ethclient.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEVMListener(net *models.Network, sink Sink, maxBackoff time.Duration, log *zap.Logger) *EVMListener {
	return &EVMListener{
		net:        net,
		sink:       sink,
		log:        log.With(zap.String("network", net.Name), zap.Int64("network_id", net.ID)),
		maxBackoff: maxBackoff,
		dedup:      newDedupSet(),
	}
}

func (l *EVMListener) Network() *models.Network { return l.net }

func (l *EVMListener) State() State { return State(l.state.Load()) }

func (l *EVMListener) setState(s State) { l.state.Store(int32(s)) }

// Start probes the contract and opens the log subscription. A missing
// or absent contract degrades the listener instead of failing, so the
// caller can keep starting the remaining networks. Transport errors are
// returned and leave the listener stopped.
func (l *EVMListener) Start(ctx context.Context) error {
	l.setState(StateStarting)

	if l.net.ContractAddress == nil || *l.net.ContractAddress == "" {
		l.log.Warn("no contract address configured, entering degraded mode")
		l.setState(StateDegraded)
		return nil
	}
	if !common.IsHexAddress(*l.net.ContractAddress) {
		l.log.Warn("malformed contract address, entering degraded mode",
			zap.String("contract", *l.net.ContractAddress))
		l.setState(StateDegraded)
		return nil
	}
	contract := common.HexToAddress(*l.net.ContractAddress)

	url := l.net.RPCURL
	if l.net.WSURL != nil && *l.net.WSURL != "" {
		url = *l.net.WSURL
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		l.setState(StateStopped)
		return fmt.Errorf("dial %s: %w", url, err)
	}

	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		client.Close()
		l.setState(StateStopped)
		return fmt.Errorf("probe contract %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		l.log.Warn("no code at contract address, entering degraded mode",
			zap.String("contract", contract.Hex()))
		client.Close()
		l.setState(StateDegraded)
		return nil
	}

	query := ethereum.FilterQuery{Addresses: []common.Address{contract}}
	logs := make(chan types.Log, 256)
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		client.Close()
		l.setState(StateStopped)
		return fmt.Errorf("subscribe logs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.client = client
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	l.setState(StateMonitoring)
	l.log.Info("listening for contract logs", zap.String("contract", contract.Hex()))

	go l.run(runCtx, client, sub, query, logs, done)
	return nil
}

func (l *EVMListener) run(ctx context.Context, client *ethclient.Client, sub ethereum.Subscription, query ethereum.FilterQuery, logs chan types.Log, done chan struct{}) {
	defer close(done)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				l.log.Warn("log subscription dropped", zap.Error(err))
			}
			sub = l.resubscribe(ctx, client, query, logs)
			if sub == nil {
				return
			}
		case lg := <-logs:
			l.handleLog(ctx, lg)
		}
	}
}

// resubscribe retries the log subscription with capped exponential
// backoff until it succeeds or the context is cancelled.
func (l *EVMListener) resubscribe(ctx context.Context, client *ethclient.Client, query ethereum.FilterQuery, logs chan types.Log) ethereum.Subscription {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		sub, err := client.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			l.log.Info("log subscription re-established")
			return sub
		}
		l.log.Warn("resubscribe failed", zap.Error(err), zap.Duration("next_attempt_in", backoff))

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *EVMListener) handleLog(ctx context.Context, lg types.Log) {
	if lg.Removed {
		// Reorged-out log. The replacement block's logs arrive separately.
		return
	}
	if l.dedup.Check(lg.TxHash.Hex(), lg.BlockNumber) {
		return
	}

	ev, err := decoder.DecodeEVMLog(l.net.ID, lg)
	if err != nil {
		l.log.Warn("undecodable log",
			zap.String("tx_hash", lg.TxHash.Hex()),
			zap.Uint64("block", lg.BlockNumber),
			zap.Error(err))
		return
	}

	if err := l.sink.ProcessEvent(ctx, ev); err != nil {
		l.log.Error("event processing failed",
			zap.String("event", ev.Name),
			zap.String("tx_hash", ev.TxID),
			zap.Error(err))
	}
}

// Stop cancels the subscription and waits for in-flight processing to
// finish. Safe to call on a listener that never started.
func (l *EVMListener) Stop() {
	l.mu.Lock()
	cancel, done, client := l.cancel, l.done, l.client
	l.cancel, l.done, l.client = nil, nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if client != nil {
		client.Close()
	}
	l.setState(StateStopped)
}
