// Package harness drives clusters of engine replicas through divergence and
// exchange rounds so convergence properties can be asserted in tests.
//
// A cluster shares one manual clock. Each replica is a full engine with its
// own stores; Exchange snapshots every replica that knows a context and
// merges every snapshot into every other replica, which after one round
// leaves each replica holding the join of all of them.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/clock"
	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/escrow"
	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// Replica is one engine in a simulated deployment.
type Replica struct {
	Name   string
	Engine *engine.Engine
	Sink   *audit.MemorySink
}

// Cluster is a set of replicas sharing a manual clock.
type Cluster struct {
	Clock    *clock.Manual
	replicas []*Replica
}

// NewCluster builds a cluster with one engine per name. All engines share
// the clock and get a transfer service that always succeeds.
func NewCluster(t *testing.T, names ...string) *Cluster {
	t.Helper()
	clk := clock.NewManual(1000)
	c := &Cluster{Clock: clk}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, name := range names {
		sink := audit.NewMemorySink()
		eng := engine.New(
			engine.WithClock(clk),
			engine.WithAuditSink(sink),
			engine.WithLogger(logger),
			engine.WithTransfer(escrow.TransferFunc(func(context.Context, model.Identity, uint64) error {
				return nil
			})),
		)
		c.replicas = append(c.replicas, &Replica{Name: name, Engine: eng, Sink: sink})
	}
	return c
}

// Replica returns the named replica.
func (c *Cluster) Replica(name string) *Replica {
	for _, r := range c.replicas {
		if r.Name == name {
			return r
		}
	}
	panic(fmt.Sprintf("harness: no replica named %q", name))
}

// Replicas returns all replicas in creation order.
func (c *Cluster) Replicas() []*Replica {
	return c.replicas
}

// Exchange gossips the named context across the whole cluster. Snapshots are
// taken before any merge so the round is order-independent.
func (c *Cluster) Exchange(ctx context.Context, contextID string) error {
	snaps := make(map[string]*state.Store)
	for _, r := range c.replicas {
		st, err := r.Engine.Snapshot(contextID)
		if err != nil {
			continue
		}
		snaps[r.Name] = st
	}
	if len(snaps) == 0 {
		return fmt.Errorf("exchange %q: no replica knows the context: %w", contextID, model.ErrNotFound)
	}
	for _, r := range c.replicas {
		for from, st := range snaps {
			if from == r.Name {
				continue
			}
			if err := r.Engine.MergeReplica(ctx, st.Clone()); err != nil {
				return fmt.Errorf("merge %s into %s: %w", from, r.Name, err)
			}
		}
	}
	return nil
}
