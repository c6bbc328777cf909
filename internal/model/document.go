package model

// DocumentStatus is derived from the signer-set comparison and never set
// directly by callers.
//
// The machine is Pending -> PartiallySigned -> FullySigned and monotonic,
// with one sanctioned regression: admitting a new Sign-capable participant
// grows the required-signer set and flips FullySigned documents back to
// PartiallySigned until the new signer has signed.
type DocumentStatus string

const (
	DocumentPending         DocumentStatus = "pending"
	DocumentPartiallySigned DocumentStatus = "partially_signed"
	DocumentFullySigned     DocumentStatus = "fully_signed"
)

// Document is a signable artifact owned by a shared context. The core stores
// and compares content references and hashes only; bytes live in the blob
// store collaborator.
type Document struct {
	ID         string `json:"id"`
	ContextID  string `json:"context_id"`
	Name       string `json:"name"`
	Hash       string `json:"hash"`
	ContentRef string `json:"content_ref"`
	Size       uint64 `json:"size"`

	UploadedBy Identity `json:"uploaded_by"`
	UploadedAt int64    `json:"uploaded_at"`

	// UpdatedAt is the record's own LWW timestamp: the whole record (hash,
	// content ref, size, status) is replaced atomically by the version with
	// the higher UpdatedAt during merge. Signer sets are exempt and merge
	// by union regardless of which timestamp wins.
	UpdatedAt int64 `json:"updated_at"`

	Status DocumentStatus `json:"status"`

	RequiredSigners IdentitySet `json:"required_signers"`
	CurrentSigners  IdentitySet `json:"current_signers"`

	// Extracted semantic content, consumed only by the search helper.
	ExtractedText string          `json:"extracted_text,omitempty"`
	Chunks        []DocumentChunk `json:"chunks,omitempty"`
}

// DocumentChunk is a text span with its embedding, used by the search helper.
type DocumentChunk struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
}

// DeriveStatus recomputes the document status from its signer sets.
func (d *Document) DeriveStatus() DocumentStatus {
	if len(d.CurrentSigners) == 0 {
		return DocumentPending
	}
	if d.CurrentSigners.ContainsAll(d.RequiredSigners) {
		return DocumentFullySigned
	}
	return DocumentPartiallySigned
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.RequiredSigners = d.RequiredSigners.Clone()
	out.CurrentSigners = d.CurrentSigners.Clone()
	if d.Chunks != nil {
		out.Chunks = make([]DocumentChunk, len(d.Chunks))
		copy(out.Chunks, d.Chunks)
	}
	return &out
}

// ConsentKey identifies one (signer, document) consent flag.
type ConsentKey struct {
	Signer     Identity
	DocumentID string
}

// SignatureAsset is a reusable signature blob kept in a private context
// (e.g. a drawn signature image). Pure metadata; bytes live in the blob store.
type SignatureAsset struct {
	ID         uint64   `json:"id"`
	Name       string   `json:"name"`
	ContentRef string   `json:"content_ref"`
	Size       uint64   `json:"size"`
	Owner      Identity `json:"owner"`
	CreatedAt  int64    `json:"created_at"`
}

// Context is a shared signing workspace: its participants, their permission
// levels, and the documents it owns (stored separately, keyed by id).
type Context struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	Owner        Identity                     `json:"owner"`
	Participants IdentitySet                  `json:"participants"`
	Permissions  map[Identity]PermissionLevel `json:"permissions"`
	CreatedAt    int64                        `json:"created_at"`
}

// PermissionOf returns the participant's level, defaulting to Read for
// participants without an explicit record.
func (c *Context) PermissionOf(id Identity) (PermissionLevel, bool) {
	if !c.Participants.Has(id) {
		return 0, false
	}
	if lvl, ok := c.Permissions[id]; ok {
		return lvl, true
	}
	return PermissionRead, true
}

// Signers returns the participants holding Sign or Admin permission. This is
// the context-membership-derived required-signer set for new documents.
func (c *Context) Signers() IdentitySet {
	out := NewIdentitySet()
	for id := range c.Participants {
		if lvl, ok := c.Permissions[id]; ok && lvl >= PermissionSign {
			out[id] = struct{}{}
		}
	}
	return out
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	out := *c
	out.Participants = c.Participants.Clone()
	out.Permissions = make(map[Identity]PermissionLevel, len(c.Permissions))
	for id, lvl := range c.Permissions {
		out.Permissions[id] = lvl
	}
	return &out
}
