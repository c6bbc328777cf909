// Package identity implements the identity resolver: the bidirectional
// mapping between a participant's context-local private identity and the
// pseudonymous shared identity used inside each shared context.
package identity

import (
	"fmt"
	"sort"

	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// Resolver manages identity mappings on a private store.
//
// INVARIANT: one mapping per context id. A second Join for the same context
// fails with ErrAlreadyJoined rather than overwriting, so a (context,
// private identity) pair can never point at two shared identities.
type Resolver struct {
	store *state.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(s *state.Store) *Resolver {
	return &Resolver{store: s}
}

// Join records membership of a shared context: the identity mapping plus a
// context metadata record with role initialized to Unknown.
func (r *Resolver) Join(contextID, contextName string, shared model.Identity, now int64) error {
	if err := r.store.RequirePrivate(); err != nil {
		return err
	}
	if contextID == "" {
		return fmt.Errorf("%w: context id is required", model.ErrInvalidInput)
	}
	if shared == "" {
		return fmt.Errorf("%w: shared identity is required", model.ErrInvalidInput)
	}
	if _, ok := r.store.Mappings[contextID]; ok {
		return fmt.Errorf("context %q: %w", contextID, model.ErrAlreadyJoined)
	}

	private := r.store.Context.Owner
	r.store.Mappings[contextID] = &model.IdentityMapping{
		ContextID:       contextID,
		PrivateIdentity: private,
		SharedIdentity:  shared,
		CreatedAt:       now,
	}
	r.store.Joined[contextID] = &model.ContextMetadata{
		ContextID:   contextID,
		ContextName: model.NormalizeName(contextName),
		Role:        model.RoleUnknown,
		JoinedAt:    now,
	}
	return nil
}

// Leave removes the membership record for a context. The identity mapping
// is kept so past signatures remain resolvable.
func (r *Resolver) Leave(contextID string) error {
	if err := r.store.RequirePrivate(); err != nil {
		return err
	}
	if _, ok := r.store.Joined[contextID]; !ok {
		return fmt.Errorf("context %q: %w", contextID, model.ErrNotFound)
	}
	delete(r.store.Joined, contextID)
	return nil
}

// Mapping returns a copy of the identity mapping for a context.
func (r *Resolver) Mapping(contextID string) (*model.IdentityMapping, error) {
	if err := r.store.RequirePrivate(); err != nil {
		return nil, err
	}
	m, ok := r.store.Mappings[contextID]
	if !ok {
		return nil, fmt.Errorf("mapping for context %q: %w", contextID, model.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

// SharedIdentity returns the pseudonymous identity used in a context.
func (r *Resolver) SharedIdentity(contextID string) (model.Identity, error) {
	m, err := r.Mapping(contextID)
	if err != nil {
		return "", err
	}
	return m.SharedIdentity, nil
}

// ResolvePrivate returns the private identity behind a shared one, scanning
// all mappings. Defined only for private-context callers.
func (r *Resolver) ResolvePrivate(shared model.Identity) (model.Identity, error) {
	if err := r.store.RequirePrivate(); err != nil {
		return "", err
	}
	for _, m := range r.store.Mappings {
		if m.SharedIdentity == shared {
			return m.PrivateIdentity, nil
		}
	}
	return "", fmt.Errorf("shared identity %q: %w", shared, model.ErrNotFound)
}

// ListJoined returns copies of the joined context records ordered by
// context id.
func (r *Resolver) ListJoined() ([]*model.ContextMetadata, error) {
	if err := r.store.RequirePrivate(); err != nil {
		return nil, err
	}
	out := make([]*model.ContextMetadata, 0, len(r.store.Joined))
	for _, meta := range r.store.Joined {
		cp := *meta
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContextID < out[j].ContextID })
	return out, nil
}
