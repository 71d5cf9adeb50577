package listener

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// NetworkStatus is one row of the ops status report.
type NetworkStatus struct {
	NetworkID int64  `json:"network_id"`
	Network   string `json:"network"`
	Family    string `json:"family"`
	State     string `json:"state"`
}

// Multi owns one listener per active network and manages them as a
// group. A single network's failure never blocks the rest.
type Multi struct {
	log       *zap.Logger
	listeners []NetworkListener
}

func NewMulti(log *zap.Logger) *Multi {
	return &Multi{log: log}
}

func (m *Multi) Add(l NetworkListener) {
	m.listeners = append(m.listeners, l)
}

// StartAll starts every listener concurrently and waits for all start
// attempts to settle. Failures are logged and skipped; the number of
// listeners that came up monitoring or degraded is returned.
func (m *Multi) StartAll(ctx context.Context) int {
	var wg sync.WaitGroup
	var started atomic.Int32

	for _, l := range m.listeners {
		wg.Add(1)
		go func(l NetworkListener) {
			defer wg.Done()
			if err := l.Start(ctx); err != nil {
				m.log.Error("listener failed to start",
					zap.String("network", l.Network().Name),
					zap.Error(err))
				return
			}
			started.Add(1)
		}(l)
	}
	wg.Wait()
	return int(started.Load())
}

// StopAll stops every listener concurrently and waits for completion.
func (m *Multi) StopAll() {
	var wg sync.WaitGroup
	for _, l := range m.listeners {
		wg.Add(1)
		go func(l NetworkListener) {
			defer wg.Done()
			l.Stop()
		}(l)
	}
	wg.Wait()
}

// Status reports every listener's current state.
func (m *Multi) Status() []NetworkStatus {
	out := make([]NetworkStatus, 0, len(m.listeners))
	for _, l := range m.listeners {
		net := l.Network()
		out = append(out, NetworkStatus{
			NetworkID: net.ID,
			Network:   net.Name,
			Family:    string(net.Family),
			State:     l.State().String(),
		})
	}
	return out
}
