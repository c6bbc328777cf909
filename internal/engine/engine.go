// Package engine is the single-writer orchestrator over the replica state.
//
// All mutations of the hosted stores happen under one mutex; the engines in
// signing, milestone and escrow are pure over a *state.Store and rely on the
// orchestrator for serialization. The one place the lock is dropped mid-
// operation is the escrow transfer await, which the escrow ledger makes safe
// by reserving funds first.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/clock"
	"github.com/calimero-network/MeroSign/internal/escrow"
	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// IDGenerator generates unique ids for contexts, documents, agreements and
// audit entries. Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
// Generate panics once all ids are consumed; tests should supply exactly as
// many ids as the scenario mints.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("fixed generator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Engine hosts the private and shared stores of one node and serializes all
// operations against them.
type Engine struct {
	mu      sync.Mutex
	shared  map[string]*state.Store
	private map[model.Identity]*state.Store

	clk    clock.Clock
	sink   audit.Sink
	ledger *escrow.Ledger
	ids    IDGenerator
	log    *slog.Logger

	metrics *metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock, typically with clock.NewManual in
// tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clk = c }
}

// WithAuditSink routes the audit trail to the given sink.
func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithTransfer sets the fund transfer collaborator used by milestone
// execution. The default refuses every transfer so a deployment cannot pay
// out without an explicitly configured backend.
func WithTransfer(t escrow.TransferService) Option {
	return func(e *Engine) { e.ledger = escrow.NewLedger(&e.mu, t) }
}

// WithIDGenerator replaces the id generator, typically with a
// FixedGenerator in tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine with no hosted contexts.
func New(opts ...Option) *Engine {
	e := &Engine{
		shared:  map[string]*state.Store{},
		private: map[model.Identity]*state.Store{},
		clk:     clock.NewSystem(),
		sink:    audit.NewMemorySink(),
		ids:     UUIDv7Generator{},
		log:     slog.Default(),
		metrics: newMetrics(),
	}
	e.ledger = escrow.NewLedger(&e.mu, escrow.TransferFunc(
		func(context.Context, model.Identity, uint64) error {
			return fmt.Errorf("no transfer backend configured: %w", model.ErrTemporarilyUnavailable)
		}))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sharedStore returns the shared store hosting contextID. Callers must hold
// e.mu.
func (e *Engine) sharedStore(contextID string) (*state.Store, error) {
	st, ok := e.shared[contextID]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", contextID, model.ErrNotFound)
	}
	return st, nil
}

// privateStore returns the owner's private store, creating it on first use.
// Callers must hold e.mu.
func (e *Engine) privateStore(owner model.Identity) *state.Store {
	st, ok := e.private[owner]
	if !ok {
		st = state.NewPrivate(owner)
		e.private[owner] = st
	}
	return st
}

// record appends one audit entry and counts the operation. Audit failures
// are logged, not surfaced: the state change has already happened and the
// trail is advisory in the in-memory deployment.
func (e *Engine) record(ctx context.Context, contextID string, actor model.Identity, action, subject, detail string) {
	e.metrics.operations.WithLabelValues(action).Inc()
	entry := audit.Entry{
		ID:        e.ids.Generate(),
		ContextID: contextID,
		Actor:     string(actor),
		Action:    action,
		Subject:   subject,
		Detail:    detail,
		At:        e.clk.Now(),
	}
	if err := e.sink.Append(ctx, entry); err != nil {
		e.log.Error("audit append failed",
			"action", action,
			"context_id", contextID,
			"error", err)
	}
}
