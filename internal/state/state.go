// Package state holds the explicitly owned entity store for one replica.
//
// There are no ambient singletons: every engine takes a *Store handle and
// mutates it under the caller's serialization (the orchestrating engine in
// the sequential deployment, the local replica in the replicated one). The
// store is also the unit of merge: two replicas' stores are combined
// record-by-record by the merge package.
package state

import (
	"fmt"

	"github.com/calimero-network/MeroSign/internal/model"
)

// Store is the complete mutable state of one replica. A store is created
// either private (a user's personal replica: signature assets, joined
// contexts, identity mappings) or shared (one signing workspace:
// participants, documents, consents, permissions, agreements).
type Store struct {
	// Private marks the context kind. Operations defined for one kind only
	// fail with ErrWrongContextKind on the other.
	Private bool

	// Context identifies this replica's own context. For shared stores its
	// participant and permission maps are live; for private stores only the
	// identity fields are meaningful.
	Context *model.Context

	// Shared context data.
	Documents  map[string]*model.Document
	Consents   map[model.ConsentKey]bool
	Agreements map[string]*model.Agreement

	// Private context data.
	Assets   map[uint64]*model.SignatureAsset
	AssetSeq uint64
	Joined   map[string]*model.ContextMetadata
	Mappings map[string]*model.IdentityMapping
}

// NewPrivate creates a private store owned by the given identity.
func NewPrivate(owner model.Identity) *Store {
	s := newStore()
	s.Private = true
	s.Context = &model.Context{
		ID:           "private_" + string(owner),
		Name:         "default",
		Owner:        owner,
		Participants: model.NewIdentitySet(),
		Permissions:  map[model.Identity]model.PermissionLevel{},
	}
	return s
}

// NewShared creates a shared store for one signing context. The owner is
// admitted as a participant with Admin permission, mirroring context
// creation in the replicated deployment.
func NewShared(contextID, name string, owner model.Identity, createdAt int64) *Store {
	s := newStore()
	s.Context = &model.Context{
		ID:           contextID,
		Name:         model.NormalizeName(name),
		Owner:        owner,
		Participants: model.NewIdentitySet(owner),
		Permissions:  map[model.Identity]model.PermissionLevel{owner: model.PermissionAdmin},
		CreatedAt:    createdAt,
	}
	return s
}

func newStore() *Store {
	return &Store{
		Documents:  map[string]*model.Document{},
		Consents:   map[model.ConsentKey]bool{},
		Agreements: map[string]*model.Agreement{},
		Assets:     map[uint64]*model.SignatureAsset{},
		Joined:     map[string]*model.ContextMetadata{},
		Mappings:   map[string]*model.IdentityMapping{},
	}
}

// RequirePrivate fails unless the store is a private context.
func (s *Store) RequirePrivate() error {
	if !s.Private {
		return fmt.Errorf("%w: operation requires a private context", model.ErrWrongContextKind)
	}
	return nil
}

// RequireShared fails unless the store is a shared context.
func (s *Store) RequireShared() error {
	if s.Private {
		return fmt.Errorf("%w: operation requires a shared context", model.ErrWrongContextKind)
	}
	return nil
}

// Document returns the document with the given id.
func (s *Store) Document(id string) (*model.Document, error) {
	d, ok := s.Documents[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, model.ErrNotFound)
	}
	return d, nil
}

// Agreement returns the agreement with the given id.
func (s *Store) Agreement(id string) (*model.Agreement, error) {
	a, ok := s.Agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %q: %w", id, model.ErrNotFound)
	}
	return a, nil
}

// MilestoneOf returns a milestone inside an agreement that is known to
// exist. A missing milestone here is an invariant breach, not a caller
// error, and is reported as store corruption.
func (s *Store) MilestoneOf(a *model.Agreement, id uint64) (*model.Milestone, error) {
	if m := a.Milestone(id); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("agreement %q milestone %d: %w", a.ID, id, model.ErrCorruptStore)
}

// Consent reports the recorded flag for a (signer, document) pair.
func (s *Store) Consent(signer model.Identity, documentID string) bool {
	return s.Consents[model.ConsentKey{Signer: signer, DocumentID: documentID}]
}

// Clone returns a deep copy of the store. Used to fork replicas from a
// common ancestor and to snapshot state in tests.
func (s *Store) Clone() *Store {
	out := newStore()
	out.Private = s.Private
	out.AssetSeq = s.AssetSeq
	if s.Context != nil {
		out.Context = s.Context.Clone()
	}
	for id, d := range s.Documents {
		out.Documents[id] = d.Clone()
	}
	for k, v := range s.Consents {
		out.Consents[k] = v
	}
	for id, a := range s.Agreements {
		out.Agreements[id] = a.Clone()
	}
	for id, asset := range s.Assets {
		cp := *asset
		out.Assets[id] = &cp
	}
	for id, meta := range s.Joined {
		cp := *meta
		out.Joined[id] = &cp
	}
	for id, m := range s.Mappings {
		cp := *m
		out.Mappings[id] = &cp
	}
	return out
}
