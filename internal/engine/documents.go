package engine

import (
	"context"

	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/search"
	"github.com/calimero-network/MeroSign/internal/signing"
)

// UploadDocument registers a document in a shared context. An empty id is
// replaced with a generated one. The bytes themselves are expected to
// already live in the blob store under contentRef; the engine records only
// the reference and hash.
func (e *Engine) UploadDocument(ctx context.Context, contextID string, actor model.Identity, id, name, hash, contentRef string, size uint64) (*model.Document, error) {
	if id == "" {
		id = e.ids.Generate()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	doc, err := signing.NewEngine(st).UploadDocument(id, actor, name, hash, contentRef, size, e.clk.Now())
	if err != nil {
		return nil, err
	}
	e.log.Info("document uploaded", "context_id", contextID, "document_id", id, "actor", actor)
	e.record(ctx, contextID, actor, "document.upload", id, doc.Name)
	return doc.Clone(), nil
}

// DeleteDocument removes a document. Admin only; audit entries referring to
// the document are retained.
func (e *Engine) DeleteDocument(ctx context.Context, contextID string, actor model.Identity, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	if err := signing.NewEngine(st).DeleteDocument(actor, id); err != nil {
		return err
	}
	e.record(ctx, contextID, actor, "document.delete", id, "")
	return nil
}

// RecordConsent records a signer's consent to sign a document. Idempotent.
func (e *Engine) RecordConsent(ctx context.Context, contextID string, signer model.Identity, documentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	if err := signing.NewEngine(st).RecordConsent(signer, documentID); err != nil {
		return err
	}
	e.record(ctx, contextID, signer, "document.consent", documentID, "")
	return nil
}

// HasConsent reports whether the signer has consented to the document.
func (e *Engine) HasConsent(contextID string, signer model.Identity, documentID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return false, err
	}
	return signing.NewEngine(st).HasConsent(signer, documentID), nil
}

// Sign applies a signature to a document: the signed content replaces the
// document's hash and reference, and the signer joins the current-signer
// set. Milestones conditioned on document signatures are re-evaluated
// afterwards for every agreement in the context.
func (e *Engine) Sign(ctx context.Context, contextID string, signer model.Identity, documentID, newHash, newContentRef string, newSize uint64) (*signing.SignOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	now := e.clk.Now()
	outcome, err := signing.NewEngine(st).Sign(signer, documentID, newHash, newContentRef, newSize, now)
	if err != nil {
		return nil, err
	}
	e.log.Info("document signed",
		"context_id", contextID,
		"document_id", documentID,
		"signer", signer,
		"completed", outcome.Completed)
	e.record(ctx, contextID, signer, "document.sign", documentID, string(outcome.Document.Status))
	if outcome.Completed {
		e.record(ctx, contextID, signer, "document.completed", documentID, "")
	}

	e.refreshLocked(ctx, st, contextID, now)

	out := *outcome
	out.Document = outcome.Document.Clone()
	return &out, nil
}

// ListDocuments lists a context's documents sorted by id.
func (e *Engine) ListDocuments(contextID string) ([]*model.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	return signing.NewEngine(st).ListDocuments()
}

// Document returns one document by id.
func (e *Engine) Document(contextID, id string) (*model.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	doc, err := st.Document(id)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// RegisterParticipant self-registers actor as a Sign-capable participant.
// Every document's required-signer set grows to include them.
func (e *Engine) RegisterParticipant(ctx context.Context, contextID string, actor model.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	if err := signing.NewEngine(st).RegisterParticipant(actor); err != nil {
		return err
	}
	e.record(ctx, contextID, actor, "participant.register", string(actor), "")
	return nil
}

// AddParticipant admits a participant with the given permission. Admin only.
func (e *Engine) AddParticipant(ctx context.Context, contextID string, actor, participant model.Identity, level model.PermissionLevel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	if err := signing.NewEngine(st).AddParticipant(actor, participant, level); err != nil {
		return err
	}
	e.record(ctx, contextID, actor, "participant.add", string(participant), level.String())
	return nil
}

// RemoveParticipant removes a participant from the context. Admin only.
func (e *Engine) RemoveParticipant(ctx context.Context, contextID string, actor, participant model.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	if err := signing.NewEngine(st).RemoveParticipant(actor, participant); err != nil {
		return err
	}
	e.record(ctx, contextID, actor, "participant.remove", string(participant), "")
	return nil
}

// PermissionOf returns a participant's permission level in a context.
func (e *Engine) PermissionOf(contextID string, participant model.Identity) (model.PermissionLevel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return 0, err
	}
	return signing.NewEngine(st).PermissionOf(participant)
}

// SearchDocument ranks a document's stored chunks against the query
// embedding and returns the top k matches.
func (e *Engine) SearchDocument(contextID, documentID string, query []float32, k int) ([]search.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	doc, err := st.Document(documentID)
	if err != nil {
		return nil, err
	}
	return search.RankChunks(query, doc.Chunks, k), nil
}
