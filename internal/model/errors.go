package model

import "errors"

// Error taxonomy for every business-rule violation. Operations return these
// sentinels (usually wrapped with context via fmt.Errorf and %w) so callers
// can branch with errors.Is without parsing messages.
//
// None of these are fatal. The only fatal condition in the system is store
// corruption, reported through ErrCorruptStore when a referenced sub-entity
// of an entity known to exist is missing.
var (
	// ErrNotFound indicates the referenced entity id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create collided with an existing id.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyJoined indicates a second join for a context that already
	// has an identity mapping. Joins never overwrite.
	ErrAlreadyJoined = errors.New("already joined")

	// ErrAlreadySigned indicates the signer is already in the document's
	// current signer set. Signing is not idempotent; this is a hard error.
	ErrAlreadySigned = errors.New("already signed")

	// ErrUnauthorized indicates a permission or role check failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput covers malformed ids, out-of-range thresholds and
	// empty required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConsentRequired indicates a signature was attempted without a
	// prior consent record for the (signer, document) pair.
	ErrConsentRequired = errors.New("consent required")

	// ErrNotReady indicates a state-machine precondition violation, e.g.
	// voting on a milestone that is not open for voting.
	ErrNotReady = errors.New("not ready")

	// ErrNotApproved indicates execution of a milestone whose status is
	// not exactly Approved.
	ErrNotApproved = errors.New("not approved")

	// ErrInsufficientBalance indicates the agreement's remaining balance
	// cannot cover the milestone amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverflow indicates monetary arithmetic would wrap around.
	ErrOverflow = errors.New("amount overflow")

	// ErrTemporarilyUnavailable indicates a collaborator call failed in a
	// retryable way. State is restored; the operation is safe to retry.
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")

	// ErrWrongContextKind indicates an operation defined only for private
	// (or only for shared) contexts was invoked on the other kind.
	ErrWrongContextKind = errors.New("wrong context kind")

	// ErrCorruptStore indicates an invariant breach inside the store: a
	// sub-entity referenced by an entity known to exist is missing.
	ErrCorruptStore = errors.New("store corrupted")
)
