package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/calimero-network/MeroSign/internal/identity"
	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/signing"
	"github.com/calimero-network/MeroSign/internal/state"
)

// CreateContext creates a shared signing context owned by owner. An empty id
// is replaced with a generated one. The owner is admitted with Admin
// permission and the owner's private store records the membership.
func (e *Engine) CreateContext(ctx context.Context, id, name string, owner model.Identity) (*model.Context, error) {
	if name == "" {
		return nil, fmt.Errorf("context name must not be empty: %w", model.ErrInvalidInput)
	}
	if owner == "" {
		return nil, fmt.Errorf("context owner must not be empty: %w", model.ErrInvalidInput)
	}
	if id == "" {
		id = e.ids.Generate()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.shared[id]; ok {
		return nil, fmt.Errorf("context %q: %w", id, model.ErrAlreadyExists)
	}
	now := e.clk.Now()
	st := state.NewShared(id, name, owner, now)
	e.shared[id] = st

	// The creator's private replica learns about the membership too, with
	// the owner identity doubling as the shared identity.
	resolver := identity.NewResolver(e.privateStore(owner))
	if err := resolver.Join(id, st.Context.Name, owner, now); err != nil {
		return nil, fmt.Errorf("record owner membership: %w", err)
	}

	e.log.Info("context created", "context_id", id, "owner", owner)
	e.record(ctx, id, owner, "context.create", "", st.Context.Name)
	return st.Context.Clone(), nil
}

// JoinContext records, in owner's private store, membership of a shared
// context under the given shared identity, and registers that identity as a
// Sign-capable participant of the context when it is hosted here.
func (e *Engine) JoinContext(ctx context.Context, owner model.Identity, contextID string, shared model.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	contextName := contextID
	st, err := e.sharedStore(contextID)
	if err == nil {
		contextName = st.Context.Name
	}

	resolver := identity.NewResolver(e.privateStore(owner))
	if err := resolver.Join(contextID, contextName, shared, e.clk.Now()); err != nil {
		return err
	}

	if st != nil {
		// A participant the admin pre-admitted is already registered; the
		// join still succeeds for them.
		if err := signing.NewEngine(st).RegisterParticipant(shared); err != nil && !errors.Is(err, model.ErrAlreadyExists) {
			return err
		}
	}

	e.log.Info("context joined", "context_id", contextID, "owner", owner, "shared", shared)
	e.record(ctx, contextID, owner, "context.join", string(shared), "")
	return nil
}

// LeaveContext removes the membership record from owner's private store. The
// identity mapping is kept for history.
func (e *Engine) LeaveContext(ctx context.Context, owner model.Identity, contextID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	resolver := identity.NewResolver(e.privateStore(owner))
	if err := resolver.Leave(contextID); err != nil {
		return err
	}
	e.record(ctx, contextID, owner, "context.leave", "", "")
	return nil
}

// ListJoined lists the shared contexts recorded in owner's private store.
func (e *Engine) ListJoined(owner model.Identity) ([]*model.ContextMetadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return identity.NewResolver(e.privateStore(owner)).ListJoined()
}

// SharedIdentity returns the shared identity owner uses in a context.
func (e *Engine) SharedIdentity(owner model.Identity, contextID string) (model.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return identity.NewResolver(e.privateStore(owner)).SharedIdentity(contextID)
}

// ResolvePrivate maps a shared identity back to owner's private identity.
func (e *Engine) ResolvePrivate(owner, shared model.Identity) (model.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return identity.NewResolver(e.privateStore(owner)).ResolvePrivate(shared)
}

// ContextDetails returns a participant-level view of a shared context.
func (e *Engine) ContextDetails(contextID string) (*signing.ContextDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	return signing.NewEngine(st).Details()
}

// CreateSignatureAsset stores a reusable signature blob reference in owner's
// private store and returns its id.
func (e *Engine) CreateSignatureAsset(ctx context.Context, owner model.Identity, name, contentRef string, size uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := signing.NewEngine(e.privateStore(owner)).CreateAsset(name, contentRef, size, e.clk.Now())
	if err != nil {
		return 0, err
	}
	e.record(ctx, "private_"+string(owner), owner, "asset.create", fmt.Sprint(id), name)
	return id, nil
}

// DeleteSignatureAsset removes a signature asset from owner's private store.
func (e *Engine) DeleteSignatureAsset(ctx context.Context, owner model.Identity, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := signing.NewEngine(e.privateStore(owner)).DeleteAsset(id); err != nil {
		return err
	}
	e.record(ctx, "private_"+string(owner), owner, "asset.delete", fmt.Sprint(id), "")
	return nil
}

// ListSignatureAssets lists owner's signature assets.
func (e *Engine) ListSignatureAssets(owner model.Identity) ([]*model.SignatureAsset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return signing.NewEngine(e.privateStore(owner)).ListAssets()
}
