// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package shutdown stops long-running scans in order when the process is
// interrupted.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Handler releases one component
type Handler struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Manager runs registered handlers in reverse registration order, either on
// SIGINT/SIGTERM or when Shutdown is called
type Manager struct {
	mu       sync.Mutex
	handlers []Handler
	timeout  time.Duration

	stopping atomic.Bool
	done     chan struct{}
	sigCh    chan os.Signal
	quit     chan struct{}
}

// New creates a manager allowing timeout for all handlers together
func New(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		done:    make(chan struct{}),
		sigCh:   make(chan os.Signal, 1),
		quit:    make(chan struct{}),
	}
}

// Register adds a handler. Handlers registered after shutdown began are ignored.
func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping.Load() {
		log.Warn("Cannot register handler during shutdown", "handler", name)
		return
	}
	m.handlers = append(m.handlers, Handler{Name: name, Fn: fn})
	log.Debug("Shutdown handler registered", "handler", name)
}

// IsStopping reports whether shutdown has begun
func (m *Manager) IsStopping() bool {
	return m.stopping.Load()
}

// Start listens for interrupt signals until shutdown
func (m *Manager) Start() {
	signal.Notify(m.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(m.sigCh)
		select {
		case sig := <-m.sigCh:
			log.Info("Shutdown signal received", "signal", sig)
			m.Shutdown(context.Background())
		case <-m.quit:
		}
	}()
}

// Notify delivers sig as if the process had received it
func (m *Manager) Notify(sig os.Signal) {
	select {
	case m.sigCh <- sig:
	default:
	}
}

// Shutdown runs the handlers once; later calls return immediately
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.stopping.CompareAndSwap(false, true) {
		return nil
	}
	defer close(m.done)
	defer close(m.quit)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	var firstErr error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			log.Warn("Shutdown timeout, skipping handler", "handler", h.Name)
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			continue
		}
		if err := h.Fn(ctx); err != nil {
			log.Error("Shutdown error", "handler", h.Name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Debug("Shutdown complete", "handler", h.Name)
	}
	return firstErr
}

// Done is closed once all handlers have run
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
