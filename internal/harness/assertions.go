package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// Fingerprint renders a store as canonical JSON. Two stores with the same
// fingerprint hold the same shared state.
func Fingerprint(st *state.Store) (string, error) {
	type view struct {
		Context    *model.Context     `json:"context"`
		Documents  []*model.Document  `json:"documents"`
		Consents   []string           `json:"consents"`
		Agreements []*model.Agreement `json:"agreements"`
	}
	v := view{Context: st.Context}
	for _, id := range sortedKeys(st.Documents) {
		v.Documents = append(v.Documents, st.Documents[id])
	}
	for k, ok := range st.Consents {
		if ok {
			v.Consents = append(v.Consents, string(k.Signer)+"/"+k.DocumentID)
		}
	}
	sort.Strings(v.Consents)
	for _, id := range sortedKeys(st.Agreements) {
		v.Agreements = append(v.Agreements, st.Agreements[id])
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return string(b), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequireConverged fails unless every replica that knows the context holds
// an identical store.
func RequireConverged(t *testing.T, c *Cluster, contextID string) {
	t.Helper()
	var base, baseName string
	for _, r := range c.Replicas() {
		st, err := r.Engine.Snapshot(contextID)
		require.NoError(t, err, "replica %s has no snapshot of %s", r.Name, contextID)
		fp, err := Fingerprint(st)
		require.NoError(t, err)
		if baseName == "" {
			base, baseName = fp, r.Name
			continue
		}
		require.Equal(t, base, fp, "replica %s diverges from %s", r.Name, baseName)
	}
}

// RequireDocumentStatus asserts the document's status on one replica.
func RequireDocumentStatus(t *testing.T, r *Replica, contextID, documentID string, want model.DocumentStatus) {
	t.Helper()
	doc, err := r.Engine.Document(contextID, documentID)
	require.NoError(t, err)
	require.Equal(t, want, doc.Status, "document %s on replica %s", documentID, r.Name)
}

// RequireBalance asserts an agreement's remaining balance on one replica.
func RequireBalance(t *testing.T, r *Replica, contextID, agreementID string, want uint64) {
	t.Helper()
	_, remaining, err := r.Engine.Balance(contextID, agreementID)
	require.NoError(t, err)
	require.Equal(t, want, remaining, "agreement %s on replica %s", agreementID, r.Name)
}
