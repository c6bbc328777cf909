package milestone

import (
	"fmt"

	"github.com/calimero-network/MeroSign/internal/model"
)

// RequiredVotes computes the quorum for n effective voters and an integer
// percentage threshold: ceil(n*threshold/100) in pure integer arithmetic.
func RequiredVotes(n, threshold int) int {
	return (n*threshold + 99) / 100
}

// TallyOutcome is the decision derived from a vote map.
type TallyOutcome int

const (
	// TallyPending means neither quorum nor mathematical rejection has
	// been reached; voting stays open.
	TallyPending TallyOutcome = iota
	TallyApproved
	TallyRejected
)

// Tally decides the outcome of a milestone's vote map for an electorate of
// n voters. Approval wins as soon as approvals reach quorum. Rejection is
// declared once the remaining possible approvals can no longer reach it,
// i.e. rejections > n - required.
func Tally(m *model.Milestone, n, threshold int) TallyOutcome {
	required := RequiredVotes(n, threshold)
	if m.Approvals() >= required {
		return TallyApproved
	}
	if m.Rejections() > n-required {
		return TallyRejected
	}
	return TallyPending
}

// VoteResult reports the state of a milestone's vote after a ballot.
type VoteResult struct {
	MilestoneID   uint64                `json:"milestone_id"`
	Status        model.MilestoneStatus `json:"status"`
	Approvals     int                   `json:"approvals"`
	Rejections    int                   `json:"rejections"`
	RequiredVotes int                   `json:"required_votes"`
	TotalVoters   int                   `json:"total_voters"`
	Threshold     int                   `json:"threshold"`
}

// CastVote records one voter's ballot on a milestone and re-runs the tally.
//
// Voting is accepted only in ReadyForVoting or VotingActive. A voter's later
// ballot overwrites their earlier one, so re-voting changes the tally. The
// ballot is stamped with now for per-voter LWW ordering on merge.
func CastVote(a *model.Agreement, milestoneID uint64, voter model.Identity, approve bool, now int64) (*VoteResult, error) {
	if !a.IsParty(voter) {
		return nil, fmt.Errorf("%w: %q is not a party to agreement %q", model.ErrUnauthorized, voter, a.ID)
	}
	m := a.Milestone(milestoneID)
	if m == nil {
		return nil, fmt.Errorf("milestone %d in agreement %q: %w", milestoneID, a.ID, model.ErrNotFound)
	}
	if m.Status != model.MilestoneReadyForVoting && m.Status != model.MilestoneVotingActive {
		return nil, fmt.Errorf("milestone %d is %s: %w", milestoneID, m.Status, model.ErrNotReady)
	}

	if m.Votes == nil {
		m.Votes = map[model.Identity]model.Vote{}
	}
	m.Votes[voter] = model.Vote{Approve: approve, CastAt: now}
	m.Status = model.MilestoneVotingActive

	switch Tally(m, a.VoterCount(), a.VotingThreshold) {
	case TallyApproved:
		m.Status = model.MilestoneApproved
	case TallyRejected:
		m.Status = model.MilestoneRejected
	}
	return votingResult(a, m), nil
}

// VotingStatus returns the current tally for a milestone without voting.
func VotingStatus(a *model.Agreement, milestoneID uint64) (*VoteResult, error) {
	m := a.Milestone(milestoneID)
	if m == nil {
		return nil, fmt.Errorf("milestone %d in agreement %q: %w", milestoneID, a.ID, model.ErrNotFound)
	}
	return votingResult(a, m), nil
}

func votingResult(a *model.Agreement, m *model.Milestone) *VoteResult {
	n := a.VoterCount()
	return &VoteResult{
		MilestoneID:   m.ID,
		Status:        m.Status,
		Approvals:     m.Approvals(),
		Rejections:    m.Rejections(),
		RequiredVotes: RequiredVotes(n, a.VotingThreshold),
		TotalVoters:   n,
		Threshold:     a.VotingThreshold,
	}
}
