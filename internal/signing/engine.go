// Package signing implements the document signing engine and the consent
// ledger of a shared context: required vs. current signer tracking, the
// consent gate in front of every signature, and participant management with
// the one sanctioned status regression.
package signing

import (
	"fmt"
	"sort"

	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// Engine operates on one store. It performs no locking of its own; the
// orchestrating engine serializes access in the sequential deployment and
// each replica applies operations locally in the replicated one.
type Engine struct {
	store *state.Store
}

// NewEngine creates a signing engine over the given store.
func NewEngine(s *state.Store) *Engine {
	return &Engine{store: s}
}

// SignOutcome reports the result of a successful Sign call.
type SignOutcome struct {
	Document *model.Document `json:"document"`
	// Completed is true when this signature made the document FullySigned.
	Completed bool `json:"completed"`
}

// UploadDocument creates a document owned by this context. The required
// signer set is derived from context membership: every participant holding
// Sign or Admin permission, which always includes the context admin.
func (e *Engine) UploadDocument(id string, actor model.Identity, name, hash, contentRef string, size uint64, now int64) (*model.Document, error) {
	if err := e.store.RequireShared(); err != nil {
		return nil, err
	}
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: document id and name are required", model.ErrInvalidInput)
	}
	if !e.store.Context.Participants.Has(actor) {
		return nil, fmt.Errorf("%w: uploader %q is not a participant", model.ErrUnauthorized, actor)
	}
	if _, ok := e.store.Documents[id]; ok {
		return nil, fmt.Errorf("document %q: %w", id, model.ErrAlreadyExists)
	}

	doc := &model.Document{
		ID:              id,
		ContextID:       e.store.Context.ID,
		Name:            model.NormalizeName(name),
		Hash:            hash,
		ContentRef:      contentRef,
		Size:            size,
		UploadedBy:      actor,
		UploadedAt:      now,
		UpdatedAt:       now,
		Status:          model.DocumentPending,
		RequiredSigners: e.store.Context.Signers(),
		CurrentSigners:  model.NewIdentitySet(),
	}
	e.store.Documents[id] = doc
	return doc, nil
}

// DeleteDocument removes a document. Admin only. The audit trail retains the
// document's prior existence; consent records are kept as history.
func (e *Engine) DeleteDocument(actor model.Identity, id string) error {
	if err := e.requireAdmin(actor); err != nil {
		return err
	}
	if _, ok := e.store.Documents[id]; !ok {
		return fmt.Errorf("document %q: %w", id, model.ErrNotFound)
	}
	delete(e.store.Documents, id)
	return nil
}

// RecordConsent sets the (signer, document) consent flag. Idempotent by
// design: recording twice leaves state identical to recording once.
func (e *Engine) RecordConsent(signer model.Identity, documentID string) error {
	if err := e.store.RequireShared(); err != nil {
		return err
	}
	if _, err := e.store.Document(documentID); err != nil {
		return err
	}
	e.store.Consents[model.ConsentKey{Signer: signer, DocumentID: documentID}] = true
	return nil
}

// HasConsent reports whether the signer has consented to the document.
func (e *Engine) HasConsent(signer model.Identity, documentID string) bool {
	return e.store.Consent(signer, documentID)
}

// Sign applies a signature. The consent gate runs first: no consent record,
// no signature. Signing replaces the document's hash and content reference
// (the signed rendition) and recomputes the status from the signer sets.
func (e *Engine) Sign(signer model.Identity, documentID, newHash, newContentRef string, newSize uint64, now int64) (*SignOutcome, error) {
	if err := e.store.RequireShared(); err != nil {
		return nil, err
	}
	doc, err := e.store.Document(documentID)
	if err != nil {
		return nil, err
	}
	lvl, ok := e.store.Context.PermissionOf(signer)
	if !ok || lvl < model.PermissionSign {
		return nil, fmt.Errorf("%w: %q cannot sign in this context", model.ErrUnauthorized, signer)
	}
	if !e.HasConsent(signer, documentID) {
		return nil, fmt.Errorf("signer %q on document %q: %w", signer, documentID, model.ErrConsentRequired)
	}
	if doc.CurrentSigners.Has(signer) {
		return nil, fmt.Errorf("signer %q on document %q: %w", signer, documentID, model.ErrAlreadySigned)
	}

	doc.CurrentSigners.Add(signer)
	doc.Hash = newHash
	doc.ContentRef = newContentRef
	doc.Size = newSize
	doc.UpdatedAt = now

	prev := doc.Status
	doc.Status = doc.DeriveStatus()
	return &SignOutcome{
		Document:  doc,
		Completed: doc.Status == model.DocumentFullySigned && prev != model.DocumentFullySigned,
	}, nil
}

// RegisterParticipant self-registers the actor with Sign permission, for
// users who joined through an open invitation. Because the required signer
// set of every context document just grew, FullySigned documents regress to
// PartiallySigned until the new signer has signed.
func (e *Engine) RegisterParticipant(actor model.Identity) error {
	if err := e.store.RequireShared(); err != nil {
		return err
	}
	if e.store.Context.Participants.Has(actor) {
		return fmt.Errorf("participant %q: %w", actor, model.ErrAlreadyExists)
	}
	e.admit(actor, model.PermissionSign)
	return nil
}

// AddParticipant admits a participant with the given permission. Admin only.
// Admitting with Sign or higher triggers the document status regression.
func (e *Engine) AddParticipant(actor, participant model.Identity, level model.PermissionLevel) error {
	if err := e.requireAdmin(actor); err != nil {
		return err
	}
	if e.store.Context.Participants.Has(participant) {
		return fmt.Errorf("participant %q: %w", participant, model.ErrAlreadyExists)
	}
	e.admit(participant, level)
	return nil
}

// admit inserts the participant and, for Sign-capable admissions, grows
// every document's required signer set and recomputes its status. This is
// the single sanctioned FullySigned -> PartiallySigned transition.
func (e *Engine) admit(participant model.Identity, level model.PermissionLevel) {
	e.store.Context.Participants.Add(participant)
	e.store.Context.Permissions[participant] = level
	if level < model.PermissionSign {
		return
	}
	for _, doc := range e.store.Documents {
		if doc.RequiredSigners.Add(participant) {
			doc.Status = doc.DeriveStatus()
		}
	}
}

// RemoveParticipant removes a participant and their permission record.
// Admin only. Required signer sets are left as-is: removal does not forgive
// signatures that were required when the document was created.
func (e *Engine) RemoveParticipant(actor, participant model.Identity) error {
	if err := e.requireAdmin(actor); err != nil {
		return err
	}
	if !e.store.Context.Participants.Remove(participant) {
		return fmt.Errorf("participant %q: %w", participant, model.ErrNotFound)
	}
	delete(e.store.Context.Permissions, participant)
	return nil
}

// PermissionOf returns the permission level of a participant.
func (e *Engine) PermissionOf(participant model.Identity) (model.PermissionLevel, error) {
	if err := e.store.RequireShared(); err != nil {
		return 0, err
	}
	lvl, ok := e.store.Context.PermissionOf(participant)
	if !ok {
		return 0, fmt.Errorf("participant %q: %w", participant, model.ErrNotFound)
	}
	return lvl, nil
}

// ListDocuments returns copies of the context's documents ordered by id.
func (e *Engine) ListDocuments() ([]*model.Document, error) {
	if err := e.store.RequireShared(); err != nil {
		return nil, err
	}
	out := make([]*model.Document, 0, len(e.store.Documents))
	for _, d := range e.store.Documents {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ContextDetails is a queryable snapshot of the shared context.
type ContextDetails struct {
	ContextID        string              `json:"context_id"`
	ContextName      string              `json:"context_name"`
	Owner            model.Identity      `json:"owner"`
	ParticipantCount int                 `json:"participant_count"`
	Participants     []ParticipantDetail `json:"participants"`
	DocumentCount    int                 `json:"document_count"`
}

// ParticipantDetail pairs a participant with their permission level.
type ParticipantDetail struct {
	Identity   model.Identity        `json:"identity"`
	Permission model.PermissionLevel `json:"permission"`
}

// Details returns a snapshot of context membership and document count.
func (e *Engine) Details() (*ContextDetails, error) {
	if err := e.store.RequireShared(); err != nil {
		return nil, err
	}
	ctx := e.store.Context
	participants := make([]ParticipantDetail, 0, len(ctx.Participants))
	for _, id := range ctx.Participants.Sorted() {
		lvl, _ := ctx.PermissionOf(id)
		participants = append(participants, ParticipantDetail{Identity: id, Permission: lvl})
	}
	return &ContextDetails{
		ContextID:        ctx.ID,
		ContextName:      ctx.Name,
		Owner:            ctx.Owner,
		ParticipantCount: len(participants),
		Participants:     participants,
		DocumentCount:    len(e.store.Documents),
	}, nil
}

func (e *Engine) requireAdmin(actor model.Identity) error {
	if err := e.store.RequireShared(); err != nil {
		return err
	}
	lvl, ok := e.store.Context.PermissionOf(actor)
	if !ok || lvl != model.PermissionAdmin {
		return fmt.Errorf("%w: %q lacks admin permission", model.ErrUnauthorized, actor)
	}
	return nil
}
