package listener

import (
	"context"
	"sync"

	"github.com/escrow-marketplace/backend/internal/decoder"
	"github.com/escrow-marketplace/backend/internal/models"
)

// State is the lifecycle state of one network's listener.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateMonitoring
	// StateDegraded means the listener is running but not decoding:
	// the configured contract or program is absent or unreachable.
	// One misconfigured network must not block the others.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateMonitoring:
		return "MONITORING"
	case StateDegraded:
		return "DEGRADED"
	default:
		return "UNKNOWN"
	}
}

// Sink consumes decoded events. The reconciler implements it; errors
// are logged by the listener and never stop the subscription.
type Sink interface {
	ProcessEvent(ctx context.Context, ev *decoder.Event) error
}

// NetworkListener is one network's subscription worker.
type NetworkListener interface {
	Start(ctx context.Context) error
	Stop()
	State() State
	Network() *models.Network
}

type dedupKey struct {
	txID  string
	block uint64
}

// dedupSet drops duplicate log deliveries within one process lifetime.
// It grows unbounded; a restart resets it and the database unique
// constraint on (tx id, network) is the backstop across restarts.
type dedupSet struct {
	mu   sync.Mutex
	seen map[dedupKey]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[dedupKey]struct{})}
}

// Check records the key and reports whether it was already present.
func (d *dedupSet) Check(txID string, block uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dedupKey{txID: txID, block: block}
	if _, ok := d.seen[k]; ok {
		return true
	}
	d.seen[k] = struct{}{}
	return false
}
