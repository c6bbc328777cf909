package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/model"
)

// seedContext creates a signing context with three members on r1 and gossips
// it to the rest of the cluster.
func seedContext(t *testing.T, c *Cluster) string {
	t.Helper()
	ctx := context.Background()
	r1 := c.Replica("r1").Engine
	_, err := r1.CreateContext(ctx, "ctx-1", "deal room", "admin")
	require.NoError(t, err)
	require.NoError(t, r1.JoinContext(ctx, "alice-node", "ctx-1", "alice"))
	require.NoError(t, r1.JoinContext(ctx, "bob-node", "ctx-1", "bob"))
	require.NoError(t, c.Exchange(ctx, "ctx-1"))
	return "ctx-1"
}

func TestCluster_SigningConvergence(t *testing.T) {
	c := NewCluster(t, "r1", "r2", "r3")
	ctx := context.Background()
	cid := seedContext(t, c)

	r1 := c.Replica("r1")
	r2 := c.Replica("r2")
	r3 := c.Replica("r3")

	_, err := r1.Engine.UploadDocument(ctx, cid, "admin", "doc-1", "nda.pdf", "h0", "blobs/doc-1", 42)
	require.NoError(t, err)
	for _, signer := range []model.Identity{"admin", "alice", "bob"} {
		require.NoError(t, r1.Engine.RecordConsent(ctx, cid, signer, "doc-1"))
	}
	require.NoError(t, c.Exchange(ctx, cid))

	// Each member signs on a different replica while partitioned.
	c.Clock.Tick()
	_, err = r1.Engine.Sign(ctx, cid, "alice", "doc-1", "h-alice", "blobs/doc-1-alice", 43)
	require.NoError(t, err)
	c.Clock.Tick()
	_, err = r2.Engine.Sign(ctx, cid, "bob", "doc-1", "h-bob", "blobs/doc-1-bob", 44)
	require.NoError(t, err)
	c.Clock.Tick()
	_, err = r3.Engine.Sign(ctx, cid, "admin", "doc-1", "h-admin", "blobs/doc-1-admin", 45)
	require.NoError(t, err)

	require.NoError(t, c.Exchange(ctx, cid))
	RequireConverged(t, c, cid)

	// The union of signers completes the document on every replica.
	for _, r := range c.Replicas() {
		RequireDocumentStatus(t, r, cid, "doc-1", model.DocumentFullySigned)
	}
}

func TestCluster_ConcurrentVotesConverge(t *testing.T) {
	c := NewCluster(t, "r1", "r2")
	ctx := context.Background()
	cid := seedContext(t, c)

	r1 := c.Replica("r1")
	r2 := c.Replica("r2")

	_, err := r1.Engine.CreateAgreement(ctx, cid, engine.AgreementSpec{
		ID:              "ag-1",
		Title:           "milestone deal",
		Creator:         "admin",
		Participants:    []model.Identity{"alice", "bob"},
		VotingThreshold: 60,
		TotalFunding:    100,
		Milestones: []engine.MilestoneSpec{
			{ID: 1, Title: "payout", Condition: model.ManualApproval{}, Recipient: "alice", Amount: 100},
		},
	})
	require.NoError(t, err)
	transitioned, err := r1.Engine.RefreshMilestones(ctx, cid, "ag-1")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, transitioned)
	require.NoError(t, c.Exchange(ctx, cid))

	// Three voters, threshold 60: two approvals carry the vote.
	c.Clock.Tick()
	_, err = r1.Engine.Vote(ctx, cid, "ag-1", "admin", 1, true)
	require.NoError(t, err)
	c.Clock.Tick()
	_, err = r2.Engine.Vote(ctx, cid, "ag-1", "alice", 1, true)
	require.NoError(t, err)

	require.NoError(t, c.Exchange(ctx, cid))
	RequireConverged(t, c, cid)

	res, err := r2.Engine.VotingStatus(cid, "ag-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Approvals)
	assert.Equal(t, model.MilestoneApproved, res.Status)
}

func TestCluster_ExecutedPayoutDebitsOnce(t *testing.T) {
	c := NewCluster(t, "r1", "r2")
	ctx := context.Background()
	cid := seedContext(t, c)

	r1 := c.Replica("r1")
	r2 := c.Replica("r2")

	_, err := r1.Engine.CreateAgreement(ctx, cid, engine.AgreementSpec{
		ID:              "ag-1",
		Title:           "milestone deal",
		Creator:         "admin",
		Participants:    []model.Identity{"alice", "bob"},
		VotingThreshold: 60,
		TotalFunding:    100,
		Milestones: []engine.MilestoneSpec{
			{ID: 1, Title: "payout", Condition: model.ManualApproval{}, Recipient: "alice", Amount: 60},
			{ID: 2, Title: "rest", Condition: model.ManualApproval{}, Recipient: "bob", Amount: 40},
		},
	})
	require.NoError(t, err)
	_, err = r1.Engine.RefreshMilestones(ctx, cid, "ag-1")
	require.NoError(t, err)
	for _, voter := range []model.Identity{"admin", "alice"} {
		c.Clock.Tick()
		_, err = r1.Engine.Vote(ctx, cid, "ag-1", voter, 1, true)
		require.NoError(t, err)
	}
	_, err = r1.Engine.ExecuteMilestone(ctx, cid, "ag-1", "admin", 1)
	require.NoError(t, err)
	require.NoError(t, c.Exchange(ctx, cid))

	// Merging the executed milestone back and forth must not debit again.
	require.NoError(t, c.Exchange(ctx, cid))
	RequireConverged(t, c, cid)
	RequireBalance(t, r1, cid, "ag-1", 40)
	RequireBalance(t, r2, cid, "ag-1", 40)

	// The other replica cannot double-spend the executed milestone.
	_, err = r2.Engine.ExecuteMilestone(ctx, cid, "ag-1", "admin", 1)
	assert.ErrorIs(t, err, model.ErrNotApproved)
}

func TestExchange_UnknownContext(t *testing.T) {
	c := NewCluster(t, "r1", "r2")
	err := c.Exchange(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFingerprint_IgnoresMapOrder(t *testing.T) {
	c := NewCluster(t, "r1")
	ctx := context.Background()
	cid := seedContext(t, c)

	r1 := c.Replica("r1")
	_, err := r1.Engine.UploadDocument(ctx, cid, "admin", "doc-1", "a.pdf", "h0", "blobs/a", 1)
	require.NoError(t, err)
	_, err = r1.Engine.UploadDocument(ctx, cid, "admin", "doc-2", "b.pdf", "h1", "blobs/b", 2)
	require.NoError(t, err)

	st, err := r1.Engine.Snapshot(cid)
	require.NoError(t, err)
	fp1, err := Fingerprint(st)
	require.NoError(t, err)
	fp2, err := Fingerprint(st.Clone())
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}
