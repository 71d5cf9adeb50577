package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/decoder"
	"github.com/escrow-marketplace/backend/internal/models"
)

// SolanaListener subscribes to log messages mentioning the escrow
// program and feeds decoded events to the sink.
type SolanaListener struct {
	net        *models.Network
	sink       Sink
	log        *zap.Logger
	commitment rpc.CommitmentType
	maxBackoff time.Duration

	state   atomic.Int32
	dedup   *dedupSet
	program solana.PublicKey

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSolanaListener(net *models.Network, commitment rpc.CommitmentType, sink Sink, maxBackoff time.Duration, log *zap.Logger) *SolanaListener {
	return &SolanaListener{
		net:        net,
		sink:       sink,
		log:        log.With(zap.String("network", net.Name), zap.Int64("network_id", net.ID)),
		commitment: commitment,
		maxBackoff: maxBackoff,
		dedup:      newDedupSet(),
	}
}

func (l *SolanaListener) Network() *models.Network { return l.net }

func (l *SolanaListener) State() State { return State(l.state.Load()) }

func (l *SolanaListener) setState(s State) { l.state.Store(int32(s)) }

// Start probes the program account and opens the log subscription. A
// missing or non-executable program degrades the listener; transport
// errors are returned and leave it stopped.
func (l *SolanaListener) Start(ctx context.Context) error {
	l.setState(StateStarting)

	if l.net.ProgramID == nil || *l.net.ProgramID == "" {
		l.log.Warn("no program id configured, entering degraded mode")
		l.setState(StateDegraded)
		return nil
	}
	program, err := solana.PublicKeyFromBase58(*l.net.ProgramID)
	if err != nil {
		l.log.Warn("malformed program id, entering degraded mode",
			zap.String("program_id", *l.net.ProgramID), zap.Error(err))
		l.setState(StateDegraded)
		return nil
	}
	l.program = program

	rpcClient := rpc.New(l.net.RPCURL)
	defer rpcClient.Close()

	info, err := rpcClient.GetAccountInfo(ctx, program)
	if err != nil && !errors.Is(err, rpc.ErrNotFound) {
		l.setState(StateStopped)
		return fmt.Errorf("probe program %s: %w", program, err)
	}
	if err != nil || info == nil || info.Value == nil || !info.Value.Executable {
		l.log.Warn("program not found on chain, entering degraded mode",
			zap.String("program_id", program.String()))
		l.setState(StateDegraded)
		return nil
	}

	wsClient, err := ws.Connect(ctx, solanaWSURL(l.net))
	if err != nil {
		l.setState(StateStopped)
		return fmt.Errorf("connect websocket: %w", err)
	}
	sub, err := wsClient.LogsSubscribeMentions(program, l.commitment)
	if err != nil {
		wsClient.Close()
		l.setState(StateStopped)
		return fmt.Errorf("subscribe logs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	l.setState(StateMonitoring)
	l.log.Info("listening for program logs", zap.String("program_id", program.String()))

	go l.run(runCtx, wsClient, sub, done)
	return nil
}

func (l *SolanaListener) run(ctx context.Context, wsClient *ws.Client, sub *ws.LogSubscription, done chan struct{}) {
	defer close(done)

	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			sub.Unsubscribe()
			wsClient.Close()
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("log subscription dropped", zap.Error(err))
			wsClient, sub = l.reconnect(ctx)
			if sub == nil {
				return
			}
			continue
		}
		if got == nil {
			continue
		}
		if got.Value.Err != nil {
			// Failed transaction: the program's state did not change.
			continue
		}
		l.handleLogs(ctx, got.Value.Signature.String(), got.Context.Slot, got.Value.Logs)
	}
}

// reconnect re-opens the websocket and subscription with capped
// exponential backoff until it succeeds or the context is cancelled.
func (l *SolanaListener) reconnect(ctx context.Context) (*ws.Client, *ws.LogSubscription) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(backoff):
		}

		wsClient, err := ws.Connect(ctx, solanaWSURL(l.net))
		if err == nil {
			sub, subErr := wsClient.LogsSubscribeMentions(l.program, l.commitment)
			if subErr == nil {
				l.log.Info("log subscription re-established")
				return wsClient, sub
			}
			wsClient.Close()
			err = subErr
		}
		l.log.Warn("resubscribe failed", zap.Error(err), zap.Duration("next_attempt_in", backoff))

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *SolanaListener) handleLogs(ctx context.Context, signature string, slot uint64, logLines []string) {
	if l.dedup.Check(signature, slot) {
		return
	}

	for _, ev := range decoder.DecodeSolanaLogs(l.net.ID, signature, slot, logLines) {
		if ev.Degraded {
			l.log.Warn("event payload undecodable, recording degraded event",
				zap.String("event", ev.Name),
				zap.String("signature", signature),
				zap.String("discriminator", ev.Discriminator),
				zap.Int("byte_len", ev.ByteLen))
		}
		if err := l.sink.ProcessEvent(ctx, ev); err != nil {
			l.log.Error("event processing failed",
				zap.String("event", ev.Name),
				zap.String("signature", signature),
				zap.Error(err))
		}
	}
}

// Stop cancels the subscription and waits for in-flight processing to
// finish. Safe to call on a listener that never started.
func (l *SolanaListener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	l.setState(StateStopped)
}

// solanaWSURL prefers the configured websocket endpoint and otherwise
// derives one from the RPC URL the way the public clusters lay out
// their endpoints.
func solanaWSURL(net *models.Network) string {
	if net.WSURL != nil && *net.WSURL != "" {
		return *net.WSURL
	}
	u := strings.Replace(net.RPCURL, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}
