// Package ops serves the diagnostics endpoints the listener and worker
// binaries expose: process health, per-network listener state and chain
// reachability. It is not a public API.
package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/chain"
	"github.com/escrow-marketplace/backend/internal/listener"
	"github.com/escrow-marketplace/backend/internal/models"
)

// StatusSource reports the current listener state per network.
type StatusSource interface {
	Status() []listener.NetworkStatus
}

type Server struct {
	app        *fiber.App
	registry   *chain.Registry
	source     StatusSource
	newAdapter func(*models.Network) (chain.Adapter, error)
	log        *zap.Logger
	started    time.Time

	mu       sync.Mutex
	adapters map[int64]chain.Adapter
}

func New(registry *chain.Registry, source StatusSource, newAdapter func(*models.Network) (chain.Adapter, error), log *zap.Logger) *Server {
	s := &Server{
		registry:   registry,
		source:     source,
		newAdapter: newAdapter,
		log:        log,
		started:    time.Now(),
		adapters:   make(map[int64]chain.Adapter),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(requestLogger(log))

	app.Get("/health", s.health)
	app.Get("/status", s.status)
	app.Get("/networks", s.networks)

	s.app = app
	return s
}

func (s *Server) Listen(port string) error {
	addr := fmt.Sprintf(":%s", port)
	s.log.Info("starting ops server", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	s.mu.Lock()
	for id, ad := range s.adapters {
		ad.Close()
		delete(s.adapters, id)
	}
	s.mu.Unlock()
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"listeners": s.source.Status()})
}

// networks lists active networks with a live reachability probe. A network
// that cannot be reached is reported, not omitted.
func (s *Server) networks(c *fiber.Ctx) error {
	nets, err := s.registry.Active(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	out := make([]fiber.Map, 0, len(nets))
	for i := range nets {
		n := &nets[i]
		entry := fiber.Map{
			"id":         n.ID,
			"name":       n.Name,
			"family":     n.Family,
			"is_testnet": n.IsTestnet,
		}
		ad, err := s.adapter(n)
		if err != nil {
			entry["status"] = "unreachable"
			entry["error"] = err.Error()
			out = append(out, entry)
			continue
		}
		if target := n.EscrowTarget(); target != "" {
			entry["escrow_target"] = target
			entry["explorer"] = ad.ExplorerAddressURL(target)
		}

		probeCtx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		info, err := ad.NetworkInfo(probeCtx)
		cancel()
		if err != nil {
			entry["status"] = "unreachable"
			entry["error"] = err.Error()
		} else {
			entry["status"] = "ok"
			entry["info"] = info
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"networks": out})
}

func (s *Server) adapter(n *models.Network) (chain.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ad, ok := s.adapters[n.ID]; ok {
		return ad, nil
	}
	ad, err := s.newAdapter(n)
	if err != nil {
		return nil, err
	}
	s.adapters[n.ID] = ad
	return ad, nil
}

// requestLogger tags every request with an id and logs it on completion.
// Incoming X-Request-ID headers are honored so probes can be correlated.
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		log.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}
