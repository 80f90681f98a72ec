// Package corecontext owns the ordered startup and teardown of every
// long-lived service in the node, plus the single process-wide
// "initialized" guard that prevents two overlapping lifetimes.
package corecontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/privmesh/vmerr"
)

// ErrAlreadyInitialized is returned by Startup when a previous Context is
// still live: the process-wide guard is a single mutually exclusive lock,
// not per-instance.
var ErrAlreadyInitialized = vmerr.ErrAlreadyInitialized

var (
	globalMu          sync.Mutex
	globalInitialized bool
)

// Service is one step of the startup/teardown lattice. Init and Shutdown
// both receive a context for cancellation/deadlines; Shutdown must be safe
// to call on a Service whose Init never ran only if Init itself never
// registered it (the Context only calls Shutdown on services it actually
// started).
type Service interface {
	Name() string
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Event is delivered to the external update sink.
type Event int

const (
	// EventShutdown is the final event delivered once every service has
	// torn down.
	EventShutdown Event = iota
)

// UpdateSink receives lifecycle events.
type UpdateSink func(Event)

// Context orchestrates an ordered list of services: Startup runs Init on
// each in order, tearing down (in reverse) whatever already started if any
// step fails; Shutdown always tears down in strict reverse order.
//
// Services must be supplied in the order the lattice requires — e.g. the
// crypto registry is constructed before the table store service but placed
// later in this list, since its Init reads cached state the table store's
// Init makes available; the table store's own Init, in turn, never calls
// into crypto. Wiring that order is the caller's responsibility; Context
// itself only guarantees each Init/Shutdown runs in list order/reverse.
type Context struct {
	mu       sync.Mutex
	services []Service
	started  []Service
	sink     UpdateSink
}

// New builds a Context over services, run in the given order by Startup.
func New(sink UpdateSink, services ...Service) *Context {
	return &Context{services: services, sink: sink}
}

// Startup claims the process-wide initialized guard and runs Init on every
// service in order. On failure, whatever already started is torn down in
// reverse and the guard is released before the error is returned.
func (c *Context) Startup(ctx context.Context) error {
	globalMu.Lock()
	if globalInitialized {
		globalMu.Unlock()
		return ErrAlreadyInitialized
	}
	globalInitialized = true
	globalMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.services {
		if err := s.Init(ctx); err != nil {
			c.teardownLocked(ctx)
			globalMu.Lock()
			globalInitialized = false
			globalMu.Unlock()
			return fmt.Errorf("corecontext: init %s: %w", s.Name(), err)
		}
		c.started = append(c.started, s)
	}
	return nil
}

// Shutdown tears down every started service in strict reverse order,
// delivers a final Shutdown event, and releases the process-wide guard
// regardless of teardown errors (a stuck service must not wedge the
// process out of ever reinitializing).
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	err := c.teardownLocked(ctx)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink(EventShutdown)
	}

	globalMu.Lock()
	globalInitialized = false
	globalMu.Unlock()

	return err
}

func (c *Context) teardownLocked(ctx context.Context) error {
	var firstErr error
	for i := len(c.started) - 1; i >= 0; i-- {
		s := c.started[i]
		if err := s.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("corecontext: shutdown %s: %w", s.Name(), err)
		}
	}
	c.started = nil
	return firstErr
}
