// Package milestone implements the pure condition evaluator and the quorum
// voting engine for agreement milestones.
package milestone

import (
	"github.com/calimero-network/MeroSign/internal/model"
)

// StatusLookup resolves a document id to its signing status. The evaluator
// takes a lookup instead of a store handle so it stays pure and the voting
// and merge layers can reuse it against arbitrary snapshots.
type StatusLookup func(documentID string) (model.DocumentStatus, bool)

// ConditionMet reports whether a milestone's release condition is currently
// satisfied. Side-effect free: unknown documents simply evaluate to false.
//
// MultiCondition's RequiresVote flag is NOT consulted here; it only affects
// the caller's choice of next status (see NextStatus).
func ConditionMet(c model.Condition, lookup StatusLookup, now int64) bool {
	switch cond := c.(type) {
	case model.DocumentSignature:
		st, ok := lookup(cond.DocumentID)
		return ok && st == model.DocumentFullySigned
	case model.TimeRelease:
		return now >= cond.At
	case model.ManualApproval:
		// The condition is "ready"; approval itself is the vote.
		return true
	case model.MultiCondition:
		for _, id := range cond.DocumentIDs {
			st, ok := lookup(id)
			if !ok || st != model.DocumentFullySigned {
				return false
			}
		}
		return cond.MinTime == 0 || now >= cond.MinTime
	default:
		return false
	}
}

// NextStatus is the caller policy applied after ConditionMet returns true on
// a Pending milestone: pure document-signature milestones need no vote and
// go straight to Approved; every other type opens for voting.
func NextStatus(c model.Condition) model.MilestoneStatus {
	if _, ok := c.(model.DocumentSignature); ok {
		return model.MilestoneApproved
	}
	return model.MilestoneReadyForVoting
}

// Refresh evaluates every Pending milestone of the agreement and applies the
// NextStatus policy to those whose condition is met. Returns the ids that
// transitioned, in milestone order.
func Refresh(a *model.Agreement, lookup StatusLookup, now int64) []uint64 {
	if a.Status != model.AgreementActive {
		return nil
	}
	var ready []uint64
	for _, m := range a.Milestones {
		if m.Status != model.MilestonePending {
			continue
		}
		if ConditionMet(m.Condition, lookup, now) {
			m.Status = NextStatus(m.Condition)
			ready = append(ready, m.ID)
		}
	}
	return ready
}
