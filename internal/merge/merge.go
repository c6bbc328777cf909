// Package merge reconciles divergent replica state record by record.
//
// Every function here is a pure join: it takes two versions of a record and
// returns a fresh merged copy without mutating either input. Joins are
// commutative, associative and idempotent, so replicas converge regardless
// of merge order. Ties on equal timestamps break deterministically (greater
// document hash then content ref wins, reject ballots win, Cancelled wins
// among terminal agreement statuses).
//
// The one asymmetry is an Executing milestone on the receiving side: that is
// a live escrow reservation with a transfer in flight, node-local state that
// must survive the join with its debit intact. A remote Executing carries no
// such reservation and counts as Approved.
package merge

import (
	"fmt"
	"sort"

	"github.com/calimero-network/MeroSign/internal/milestone"
	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// Document joins two versions of one document. The version with the higher
// UpdatedAt supplies the scalar fields (hash, content ref, size, extracted
// text); equal timestamps go to the lexicographically greater hash, then the
// greater content ref. Signer sets always merge by union and the status is
// recomputed from the merged sets, so a signature recorded on either replica
// is never lost to LWW.
func Document(a, b *model.Document) *model.Document {
	winner, loser := a, b
	if b.UpdatedAt > a.UpdatedAt ||
		(b.UpdatedAt == a.UpdatedAt && (b.Hash > a.Hash ||
			(b.Hash == a.Hash && b.ContentRef > a.ContentRef))) {
		winner, loser = b, a
	}
	out := winner.Clone()
	out.RequiredSigners = winner.RequiredSigners.Union(loser.RequiredSigners)
	out.CurrentSigners = winner.CurrentSigners.Union(loser.CurrentSigners)
	out.Status = out.DeriveStatus()
	return out
}

// Consents joins two consent maps. Consent is a grow-only flag: once either
// replica records true for a (signer, document) pair it stays true.
func Consents(a, b map[model.ConsentKey]bool) map[model.ConsentKey]bool {
	out := make(map[model.ConsentKey]bool, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = out[k] || v
	}
	return out
}

// Votes joins two ballot maps per voter: the later CastAt wins, and on equal
// timestamps the reject ballot wins.
func Votes(a, b map[model.Identity]model.Vote) map[model.Identity]model.Vote {
	out := make(map[model.Identity]model.Vote, len(a)+len(b))
	for id, v := range a {
		out[id] = v
	}
	for id, v := range b {
		cur, ok := out[id]
		if !ok || v.CastAt > cur.CastAt || (v.CastAt == cur.CastAt && !v.Approve) {
			out[id] = v
		}
	}
	return out
}

// Milestone joins two versions of one milestone within an electorate of n
// voters. The merged status is derived entirely from merged state rather
// than picked from either input, which keeps the join associative:
//
//   - Executed on either side is final and wins outright.
//   - Executing on the receiving side a is a live reservation: a transfer is
//     in flight and its amount is already debited. The reservation survives
//     as-is. A remote Executing counts as Approved since the reservation
//     does not replicate.
//   - With merged ballots present, the status is the re-run tally.
//   - Approved without ballots (a condition auto-approval) survives as long
//     as no ballots exist.
//   - Otherwise the milestone is as far along as either side got.
func Milestone(a, b *model.Milestone, n, threshold int) *model.Milestone {
	out := a.Clone()
	out.Votes = Votes(a.Votes, b.Votes)
	if a.CreatedAt == 0 || (b.CreatedAt != 0 && b.CreatedAt < a.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}

	switch {
	case a.Status == model.MilestoneExecuted || b.Status == model.MilestoneExecuted:
		out.Status = model.MilestoneExecuted
		out.CompletedAt = earliest(a.CompletedAt, b.CompletedAt)
	case a.Status == model.MilestoneExecuting:
		out.Status = model.MilestoneExecuting
		out.CompletedAt = 0
	case len(out.Votes) > 0:
		switch milestone.Tally(out, n, threshold) {
		case milestone.TallyApproved:
			out.Status = model.MilestoneApproved
		case milestone.TallyRejected:
			out.Status = model.MilestoneRejected
		default:
			out.Status = model.MilestoneVotingActive
		}
		out.CompletedAt = 0
	case conditionApproved(a) || conditionApproved(b):
		out.Status = model.MilestoneApproved
		out.CompletedAt = 0
	case a.Status == model.MilestoneReadyForVoting || b.Status == model.MilestoneReadyForVoting:
		out.Status = model.MilestoneReadyForVoting
	default:
		out.Status = model.MilestonePending
	}
	return out
}

// conditionApproved reports an approval that did not come from ballots.
func conditionApproved(m *model.Milestone) bool {
	return (m.Status == model.MilestoneApproved || m.Status == model.MilestoneExecuting) && len(m.Votes) == 0
}

func earliest(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b != 0 && b < a {
		return b
	}
	return a
}

// Agreement joins two versions of one agreement. Identification fields are
// immutable and taken from a. Funding merges to the maximum observed total,
// and the remaining balance is recomputed from executed payouts and live
// reservations so a payout on either replica is debited exactly once.
func Agreement(a, b *model.Agreement) *model.Agreement {
	out := a.Clone()
	out.Participants = a.Participants.Union(b.Participants)
	out.DocumentIDs = unionStrings(a.DocumentIDs, b.DocumentIDs)
	if b.VotingThreshold > out.VotingThreshold {
		out.VotingThreshold = b.VotingThreshold
	}
	if a.CreatedAt == 0 || (b.CreatedAt != 0 && b.CreatedAt < a.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}

	n := len(out.Participants) + 1
	out.Milestones = mergeMilestones(a.Milestones, b.Milestones, n, out.VotingThreshold)

	if b.TotalFunding > a.TotalFunding {
		out.TotalFunding = b.TotalFunding
	}
	out.RemainingBalance = remaining(out.TotalFunding, out.Milestones)
	out.Status = mergeAgreementStatus(a.Status, b.Status, out.Milestones)
	return out
}

func mergeMilestones(a, b []*model.Milestone, n, threshold int) []*model.Milestone {
	byID := map[uint64]*model.Milestone{}
	for _, m := range a {
		byID[m.ID] = m
	}
	var out []*model.Milestone
	seen := map[uint64]bool{}
	for _, m := range b {
		if local, ok := byID[m.ID]; ok {
			out = append(out, Milestone(local, m, n, threshold))
		} else {
			out = append(out, m.Clone())
		}
		seen[m.ID] = true
	}
	for _, m := range a {
		if !seen[m.ID] {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func remaining(total uint64, milestones []*model.Milestone) uint64 {
	var spent uint64
	for _, m := range milestones {
		if m.Status == model.MilestoneExecuted || m.Status == model.MilestoneExecuting {
			spent += m.Amount
		}
	}
	if spent > total {
		return 0
	}
	return total - spent
}

func mergeAgreementStatus(a, b model.AgreementStatus, milestones []*model.Milestone) model.AgreementStatus {
	if a == model.AgreementCancelled || b == model.AgreementCancelled {
		return model.AgreementCancelled
	}
	if len(milestones) > 0 {
		done := true
		for _, m := range milestones {
			if m.Status != model.MilestoneExecuted {
				done = false
				break
			}
		}
		if done {
			return model.AgreementCompleted
		}
	}
	if a == model.AgreementCompleted || b == model.AgreementCompleted {
		return model.AgreementCompleted
	}
	return model.AgreementActive
}

// Mapping joins two identity mappings for one context: later CreatedAt wins,
// ties go to the greater shared identity.
func Mapping(a, b *model.IdentityMapping) *model.IdentityMapping {
	if b.CreatedAt > a.CreatedAt || (b.CreatedAt == a.CreatedAt && b.SharedIdentity > a.SharedIdentity) {
		cp := *b
		return &cp
	}
	cp := *a
	return &cp
}

// Permission joins two permission levels to the higher one.
func Permission(a, b model.PermissionLevel) model.PermissionLevel {
	if b > a {
		return b
	}
	return a
}

// Context joins two versions of one context record: participant union and
// per-participant permission maximum. Name, owner and id are immutable.
func Context(a, b *model.Context) *model.Context {
	out := a.Clone()
	out.Participants = a.Participants.Union(b.Participants)
	for id, lvl := range b.Permissions {
		out.Permissions[id] = Permission(out.Permissions[id], lvl)
	}
	if a.CreatedAt == 0 || (b.CreatedAt != 0 && b.CreatedAt < a.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}
	return out
}

// Stores runs a full reconciliation pass over two replicas of the same
// context and returns the converged store. The inputs must be replicas of
// one context: same kind and same context id.
func Stores(a, b *state.Store) (*state.Store, error) {
	if a.Private != b.Private || a.Context.ID != b.Context.ID {
		return nil, fmt.Errorf("cannot merge %q into %q: %w", b.Context.ID, a.Context.ID, model.ErrInvalidInput)
	}
	out := a.Clone()
	out.Context = Context(a.Context, b.Context)

	for id, d := range b.Documents {
		if local, ok := a.Documents[id]; ok {
			out.Documents[id] = Document(local, d)
		} else {
			out.Documents[id] = d.Clone()
		}
	}
	out.Consents = Consents(a.Consents, b.Consents)
	for id, ag := range b.Agreements {
		if local, ok := a.Agreements[id]; ok {
			out.Agreements[id] = Agreement(local, ag)
		} else {
			out.Agreements[id] = ag.Clone()
		}
	}

	for id, asset := range b.Assets {
		if _, ok := out.Assets[id]; !ok {
			cp := *asset
			out.Assets[id] = &cp
		}
	}
	if b.AssetSeq > out.AssetSeq {
		out.AssetSeq = b.AssetSeq
	}
	for id, meta := range b.Joined {
		local, ok := out.Joined[id]
		if !ok || meta.JoinedAt > local.JoinedAt || (meta.JoinedAt == local.JoinedAt && meta.Role > local.Role) {
			cp := *meta
			out.Joined[id] = &cp
		}
	}
	for id, m := range b.Mappings {
		if local, ok := out.Mappings[id]; ok {
			out.Mappings[id] = Mapping(local, m)
		} else {
			cp := *m
			out.Mappings[id] = &cp
		}
	}
	return out, nil
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
