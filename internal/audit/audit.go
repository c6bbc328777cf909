// Package audit records an append-only trail of every state-changing
// operation. Entries carry their own idempotency key so replaying an
// operation (or re-delivering its audit record) never duplicates the trail.
package audit

import (
	"context"
	"sort"
	"sync"
)

// Entry is one immutable audit record.
type Entry struct {
	// ID is the idempotency key. Appending the same ID twice is a no-op.
	ID        string `json:"id"`
	ContextID string `json:"context_id"`
	Actor     string `json:"actor"`
	// Action names the operation, e.g. "document.sign" or "escrow.execute".
	Action  string `json:"action"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
	At      int64  `json:"at"`
}

// Sink accepts audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Reader lists recorded entries for one context in append order.
type Reader interface {
	Entries(ctx context.Context, contextID string, limit int) ([]Entry, error)
}

// MemorySink keeps entries in memory. Used in tests and in deployments that
// do not configure a durable trail.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{seen: map[string]bool{}}
}

func (s *MemorySink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[e.ID] {
		return nil
	}
	s.seen[e.ID] = true
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemorySink) Entries(_ context.Context, contextID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if contextID == "" || e.ContextID == contextID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
