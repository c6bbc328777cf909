package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentitySet_AddRemoveHas(t *testing.T) {
	s := NewIdentitySet("alice")

	assert.True(t, s.Has("alice"))
	assert.False(t, s.Add("alice"), "second add must report not-new")
	assert.True(t, s.Add("bob"))
	assert.True(t, s.Remove("bob"))
	assert.False(t, s.Remove("bob"), "second remove must report absent")
}

func TestIdentitySet_ContainsAll(t *testing.T) {
	current := NewIdentitySet("a", "b", "c")
	required := NewIdentitySet("a", "b")

	assert.True(t, current.ContainsAll(required))
	assert.False(t, required.ContainsAll(current))
	assert.True(t, current.ContainsAll(NewIdentitySet()), "empty set is a subset of anything")
}

func TestIdentitySet_JSONRoundTrip(t *testing.T) {
	s := NewIdentitySet("b", "a", "c")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(data), "members serialize sorted")

	var back IdentitySet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestDocument_DeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		required []Identity
		current  []Identity
		want     DocumentStatus
	}{
		{"no signatures", []Identity{"a", "b"}, nil, DocumentPending},
		{"some signatures", []Identity{"a", "b"}, []Identity{"a"}, DocumentPartiallySigned},
		{"all signatures", []Identity{"a", "b"}, []Identity{"a", "b"}, DocumentFullySigned},
		{"extra signer", []Identity{"a"}, []Identity{"a", "b"}, DocumentFullySigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Document{
				RequiredSigners: NewIdentitySet(tt.required...),
				CurrentSigners:  NewIdentitySet(tt.current...),
			}
			assert.Equal(t, tt.want, d.DeriveStatus())
		})
	}
}

func TestPermissionLevel_Ordering(t *testing.T) {
	assert.True(t, PermissionRead < PermissionSign)
	assert.True(t, PermissionSign < PermissionAdmin)
}

func TestParsePermissionLevel(t *testing.T) {
	for _, lvl := range []PermissionLevel{PermissionRead, PermissionSign, PermissionAdmin} {
		got, ok := ParsePermissionLevel(lvl.String())
		require.True(t, ok)
		assert.Equal(t, lvl, got)
	}
	_, ok := ParsePermissionLevel("owner")
	assert.False(t, ok)
}

func TestContext_Signers(t *testing.T) {
	ctx := &Context{
		Participants: NewIdentitySet("admin", "signer", "reader"),
		Permissions: map[Identity]PermissionLevel{
			"admin":  PermissionAdmin,
			"signer": PermissionSign,
			"reader": PermissionRead,
		},
	}
	assert.Equal(t, NewIdentitySet("admin", "signer"), ctx.Signers())
}

func TestCondition_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
	}{
		{"document signature", DocumentSignature{DocumentID: "doc-1"}},
		{"time release", TimeRelease{At: 42}},
		{"manual approval", ManualApproval{}},
		{"multi condition", MultiCondition{DocumentIDs: []string{"d1", "d2"}, RequiresVote: true, MinTime: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalCondition(tt.cond)
			require.NoError(t, err)

			back, err := UnmarshalCondition(data)
			require.NoError(t, err)
			assert.Equal(t, tt.cond, back)
		})
	}
}

func TestUnmarshalCondition_UnknownKind(t *testing.T) {
	_, err := UnmarshalCondition([]byte(`{"kind":"bribe"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMilestone_JSONRoundTrip(t *testing.T) {
	m := &Milestone{
		ID:        3,
		Title:     "delivery",
		Condition: MultiCondition{DocumentIDs: []string{"d1"}, RequiresVote: true},
		Recipient: "carol",
		Amount:    100,
		Status:    MilestonePending,
		Votes:     map[Identity]Vote{"alice": {Approve: true, CastAt: 5}},
		CreatedAt: 1,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back Milestone
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Condition, back.Condition)
	assert.Equal(t, m.Votes, back.Votes)
	assert.Equal(t, m.Title, back.Title)
}

func TestAgreement_VoterCount(t *testing.T) {
	a := &Agreement{Creator: "creator", Participants: NewIdentitySet("a", "b", "c", "d")}
	assert.Equal(t, 5, a.VoterCount(), "creator counted separately from participants")
}

func TestAgreement_Clone_Independent(t *testing.T) {
	a := &Agreement{
		ID:           "ag-1",
		Participants: NewIdentitySet("a"),
		Milestones:   []*Milestone{{ID: 1, Condition: ManualApproval{}, Votes: map[Identity]Vote{}}},
	}
	b := a.Clone()
	b.Participants.Add("b")
	b.Milestones[0].Votes["x"] = Vote{Approve: true}

	assert.False(t, a.Participants.Has("b"))
	assert.Empty(t, a.Milestones[0].Votes)
}

func TestNormalizeName(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) normalizes to U+00E9.
	assert.Equal(t, "café", NormalizeName("café"))
}
