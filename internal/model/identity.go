package model

import (
	"encoding/json"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Identity is an opaque participant identity. In the replicated deployment
// this is the base58 form of a context public key; the core never inspects
// its structure, only compares it.
type Identity string

// IdentitySet is a set of identities with value semantics for comparison.
// The zero value is not usable; construct with NewIdentitySet.
type IdentitySet map[Identity]struct{}

// NewIdentitySet builds a set from the given members.
func NewIdentitySet(members ...Identity) IdentitySet {
	s := make(IdentitySet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was newly added.
func (s IdentitySet) Add(id Identity) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s IdentitySet) Remove(id Identity) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Has reports membership.
func (s IdentitySet) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// ContainsAll reports whether every member of other is in s.
func (s IdentitySet) ContainsAll(other IdentitySet) bool {
	for id := range other {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Union returns a new set with the members of both sets.
func (s IdentitySet) Union(other IdentitySet) IdentitySet {
	out := make(IdentitySet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Clone returns an independent copy.
func (s IdentitySet) Clone() IdentitySet {
	out := make(IdentitySet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexicographic order for deterministic
// iteration and serialization.
func (s IdentitySet) Sorted() []Identity {
	out := make([]Identity, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array for deterministic output.
func (s IdentitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of identities into a set.
func (s *IdentitySet) UnmarshalJSON(data []byte) error {
	var members []Identity
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = NewIdentitySet(members...)
	return nil
}

// PermissionLevel is the per-(context, identity) capability level.
// Levels are totally ordered: Read < Sign < Admin.
type PermissionLevel int

const (
	PermissionRead PermissionLevel = iota
	PermissionSign
	PermissionAdmin
)

// String returns the stable wire name of the level.
func (p PermissionLevel) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionSign:
		return "sign"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParsePermissionLevel maps a wire name back to a level.
func ParsePermissionLevel(s string) (PermissionLevel, bool) {
	switch s {
	case "read":
		return PermissionRead, true
	case "sign":
		return PermissionSign, true
	case "admin":
		return PermissionAdmin, true
	default:
		return 0, false
	}
}

// ParticipantRole is the role a user holds in a joined shared context, as
// recorded on the private side. Ordered: Unknown < Viewer < Signer < Owner.
type ParticipantRole int

const (
	RoleUnknown ParticipantRole = iota
	RoleViewer
	RoleSigner
	RoleOwner
)

func (r ParticipantRole) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleSigner:
		return "signer"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// IdentityMapping links a private identity to its pseudonymous shared
// identity for one shared context. Created exactly once per context join.
//
// INVARIANT: within one private store, a context id maps to exactly one
// (private, shared) pair; a second join is rejected, never overwritten.
type IdentityMapping struct {
	ContextID       string   `json:"context_id"`
	PrivateIdentity Identity `json:"private_identity"`
	SharedIdentity  Identity `json:"shared_identity"`
	CreatedAt       int64    `json:"created_at"`
}

// ContextMetadata records a shared context the private store has joined,
// together with the role held there.
type ContextMetadata struct {
	ContextID   string          `json:"context_id"`
	ContextName string          `json:"context_name"`
	Role        ParticipantRole `json:"role"`
	JoinedAt    int64           `json:"joined_at"`
}

// NormalizeName applies NFC normalization to user-supplied names and titles
// so that visually identical strings compare equal across replicas.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
