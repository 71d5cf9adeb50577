package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/escrow-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// Registry errors are configuration errors: callers must not retry them.
var (
	ErrNetworkNotFound = errors.New("network not found")
	ErrNetworkInactive = errors.New("network is inactive")
)

// NetworkStore is the storage seam the registry loads from.
type NetworkStore interface {
	GetAll(ctx context.Context) ([]models.Network, error)
}

// Registry caches network rows with a TTL so listeners and services never
// hammer the networks table. Invalidate forces a reload on next access.
type Registry struct {
	store   NetworkStore
	ttl     time.Duration
	mainnet bool
	log     *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	networks []models.Network
	loadedAt time.Time
}

func NewRegistry(store NetworkStore, ttl time.Duration, mainnet bool, log *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		ttl:     ttl,
		mainnet: mainnet,
		log:     log,
		now:     time.Now,
	}
}

func (r *Registry) ByID(ctx context.Context, id int64) (*models.Network, error) {
	networks, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range networks {
		if networks[i].ID == id {
			return checkActive(&networks[i])
		}
	}
	return nil, fmt.Errorf("network id %d: %w", id, ErrNetworkNotFound)
}

func (r *Registry) ByName(ctx context.Context, name string) (*models.Network, error) {
	networks, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range networks {
		if networks[i].Name == name {
			return checkActive(&networks[i])
		}
	}
	return nil, fmt.Errorf("network %q: %w", name, ErrNetworkNotFound)
}

func (r *Registry) Active(ctx context.Context) ([]models.Network, error) {
	networks, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var active []models.Network
	for _, n := range networks {
		if n.IsActive {
			active = append(active, n)
		}
	}
	return active, nil
}

// Default picks the family member matching the deployment mode: the mainnet
// network when deployed to mainnet, the testnet one otherwise.
func (r *Registry) Default(ctx context.Context, family models.ChainFamily) (*models.Network, error) {
	networks, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range networks {
		n := &networks[i]
		if n.Family == family && n.IsActive && n.IsTestnet != r.mainnet {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no default %s network for this deployment mode: %w", family, ErrNetworkNotFound)
}

// Invalidate drops the cached snapshot; the next call reloads from storage.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.loadedAt = time.Time{}
	r.mu.Unlock()
}

func (r *Registry) snapshot(ctx context.Context) ([]models.Network, error) {
	r.mu.RLock()
	if !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < r.ttl {
		networks := r.networks
		r.mu.RUnlock()
		return networks, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < r.ttl {
		return r.networks, nil
	}

	networks, err := r.store.GetAll(ctx)
	if err != nil {
		// Serve the stale snapshot if one exists, storage may recover.
		if r.networks != nil {
			r.log.Warn("network reload failed, serving stale cache", zap.Error(err))
			return r.networks, nil
		}
		return nil, fmt.Errorf("load networks: %w", err)
	}

	r.networks = networks
	r.loadedAt = r.now()
	r.log.Debug("network cache refreshed", zap.Int("count", len(networks)))
	return networks, nil
}

func checkActive(n *models.Network) (*models.Network, error) {
	if !n.IsActive {
		return nil, fmt.Errorf("network %q: %w", n.Name, ErrNetworkInactive)
	}
	return n, nil
}
