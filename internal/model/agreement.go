package model

// AgreementStatus is the lifecycle of an agreement. Agreements are never
// physically deleted; they transition to Completed or Cancelled.
type AgreementStatus string

const (
	AgreementActive    AgreementStatus = "active"
	AgreementCompleted AgreementStatus = "completed"
	AgreementCancelled AgreementStatus = "cancelled"
)

// MilestoneStatus is the approval pipeline state of one milestone.
//
//	Pending -> ReadyForVoting -> VotingActive -> Approved -> Executed
//	                                          \-> Rejected
//
// Executing is the reservation sub-state between the synchronous reserve
// step and the asynchronous transfer confirmation. While a milestone is
// Executing no other execution may observe it as Approved.
type MilestoneStatus string

const (
	MilestonePending        MilestoneStatus = "pending"
	MilestoneReadyForVoting MilestoneStatus = "ready_for_voting"
	MilestoneVotingActive   MilestoneStatus = "voting_active"
	MilestoneApproved       MilestoneStatus = "approved"
	MilestoneExecuting      MilestoneStatus = "executing"
	MilestoneExecuted       MilestoneStatus = "executed"
	MilestoneRejected       MilestoneStatus = "rejected"
)

// Vote is one voter's current ballot. Re-voting overwrites; CastAt orders
// concurrent ballots from divergent replicas (per-voter LWW on merge).
type Vote struct {
	Approve bool  `json:"approve"`
	CastAt  int64 `json:"cast_at"`
}

// Milestone is a conditioned, fund-releasing checkpoint within an agreement.
// Owned and embedded by its Agreement; its id is unique within it.
type Milestone struct {
	ID          uint64            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Condition   Condition         `json:"condition"`
	Recipient   Identity          `json:"recipient"`
	Amount      uint64            `json:"amount"`
	Status      MilestoneStatus   `json:"status"`
	Votes       map[Identity]Vote `json:"votes"`
	CreatedAt   int64             `json:"created_at"`
	CompletedAt int64             `json:"completed_at,omitempty"`
}

// Approvals counts the current approve ballots.
func (m *Milestone) Approvals() int {
	n := 0
	for _, v := range m.Votes {
		if v.Approve {
			n++
		}
	}
	return n
}

// Rejections counts the current reject ballots.
func (m *Milestone) Rejections() int {
	n := 0
	for _, v := range m.Votes {
		if !v.Approve {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	out := *m
	out.Votes = make(map[Identity]Vote, len(m.Votes))
	for id, v := range m.Votes {
		out.Votes[id] = v
	}
	return &out
}

// Agreement is a funded, multi-milestone contract among participants.
//
// INVARIANT: RemainingBalance <= TotalFunding after every operation.
type Agreement struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Creator          Identity        `json:"creator"`
	Participants     IdentitySet     `json:"participants"`
	DocumentIDs      []string        `json:"document_ids"`
	Milestones       []*Milestone    `json:"milestones"`
	VotingThreshold  int             `json:"voting_threshold"`
	Status           AgreementStatus `json:"status"`
	CreatedAt        int64           `json:"created_at"`
	TotalFunding     uint64          `json:"total_funding"`
	RemainingBalance uint64          `json:"remaining_balance"`
}

// Milestone returns the milestone with the given id, or nil.
func (a *Agreement) Milestone(id uint64) *Milestone {
	for _, m := range a.Milestones {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// VoterCount is the effective electorate size: the participant set plus the
// creator, who is counted separately from it.
func (a *Agreement) VoterCount() int {
	return len(a.Participants) + 1
}

// IsParty reports whether id is the creator or a participant.
func (a *Agreement) IsParty(id Identity) bool {
	return a.Creator == id || a.Participants.Has(id)
}

// Clone returns a deep copy of the agreement.
func (a *Agreement) Clone() *Agreement {
	out := *a
	out.Participants = a.Participants.Clone()
	out.DocumentIDs = append([]string(nil), a.DocumentIDs...)
	out.Milestones = make([]*Milestone, len(a.Milestones))
	for i, m := range a.Milestones {
		out.Milestones[i] = m.Clone()
	}
	return &out
}
