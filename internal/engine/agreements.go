package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/calimero-network/MeroSign/internal/escrow"
	"github.com/calimero-network/MeroSign/internal/merge"
	"github.com/calimero-network/MeroSign/internal/milestone"
	"github.com/calimero-network/MeroSign/internal/model"
	"github.com/calimero-network/MeroSign/internal/state"
)

// MilestoneSpec describes one milestone at agreement creation.
type MilestoneSpec struct {
	ID          uint64          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Condition   model.Condition `json:"condition"`
	Recipient   model.Identity  `json:"recipient"`
	Amount      uint64          `json:"amount"`
}

// milestoneSpecAlias breaks marshal recursion for the condition envelope.
type milestoneSpecAlias MilestoneSpec

type milestoneSpecWire struct {
	milestoneSpecAlias
	Condition json.RawMessage `json:"condition"`
}

func (m MilestoneSpec) MarshalJSON() ([]byte, error) {
	cond, err := model.MarshalCondition(m.Condition)
	if err != nil {
		return nil, err
	}
	return json.Marshal(milestoneSpecWire{milestoneSpecAlias: milestoneSpecAlias(m), Condition: cond})
}

func (m *MilestoneSpec) UnmarshalJSON(data []byte) error {
	var w milestoneSpecWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = MilestoneSpec(w.milestoneSpecAlias)
	if len(w.Condition) > 0 {
		cond, err := model.UnmarshalCondition(w.Condition)
		if err != nil {
			return err
		}
		m.Condition = cond
	}
	return nil
}

// AgreementSpec describes an agreement at creation. TotalFunding is the
// initial escrow; milestone amounts are validated against it (additional
// funding may arrive later, only the lower bound is enforced here).
type AgreementSpec struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Creator         model.Identity   `json:"creator"`
	Participants    []model.Identity `json:"participants"`
	DocumentIDs     []string         `json:"document_ids"`
	Milestones      []MilestoneSpec  `json:"milestones"`
	VotingThreshold int              `json:"voting_threshold"`
	TotalFunding    uint64           `json:"total_funding"`
}

// CreateAgreement creates a funded agreement in a shared context.
func (e *Engine) CreateAgreement(ctx context.Context, contextID string, spec AgreementSpec) (*model.Agreement, error) {
	if err := validateAgreementSpec(spec); err != nil {
		return nil, err
	}
	id := spec.ID
	if id == "" {
		id = e.ids.Generate()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	if err := st.RequireShared(); err != nil {
		return nil, err
	}
	if _, ok := st.Agreements[id]; ok {
		return nil, fmt.Errorf("agreement %q: %w", id, model.ErrAlreadyExists)
	}
	for _, docID := range spec.DocumentIDs {
		if _, err := st.Document(docID); err != nil {
			return nil, fmt.Errorf("referenced %w", err)
		}
	}

	// The creator is already a party and a voter; listing them again in
	// Participants must not double-count the electorate.
	participants := model.NewIdentitySet(spec.Participants...)
	participants.Remove(spec.Creator)

	now := e.clk.Now()
	a := &model.Agreement{
		ID:               id,
		Title:            model.NormalizeName(spec.Title),
		Description:      spec.Description,
		Creator:          spec.Creator,
		Participants:     participants,
		DocumentIDs:      append([]string(nil), spec.DocumentIDs...),
		VotingThreshold:  spec.VotingThreshold,
		Status:           model.AgreementActive,
		CreatedAt:        now,
		TotalFunding:     spec.TotalFunding,
		RemainingBalance: spec.TotalFunding,
	}
	for _, ms := range spec.Milestones {
		a.Milestones = append(a.Milestones, &model.Milestone{
			ID:          ms.ID,
			Title:       model.NormalizeName(ms.Title),
			Description: ms.Description,
			Condition:   ms.Condition,
			Recipient:   ms.Recipient,
			Amount:      ms.Amount,
			Status:      model.MilestonePending,
			Votes:       map[model.Identity]model.Vote{},
			CreatedAt:   now,
		})
	}
	st.Agreements[id] = a

	e.log.Info("agreement created",
		"context_id", contextID,
		"agreement_id", id,
		"milestones", len(a.Milestones),
		"total_funding", a.TotalFunding)
	e.record(ctx, contextID, spec.Creator, "agreement.create", id, a.Title)
	return a.Clone(), nil
}

func validateAgreementSpec(spec AgreementSpec) error {
	if spec.Title == "" {
		return fmt.Errorf("agreement title must not be empty: %w", model.ErrInvalidInput)
	}
	if spec.Creator == "" {
		return fmt.Errorf("agreement creator must not be empty: %w", model.ErrInvalidInput)
	}
	if spec.VotingThreshold < 50 || spec.VotingThreshold > 100 {
		return fmt.Errorf("voting threshold %d out of range [50,100]: %w", spec.VotingThreshold, model.ErrInvalidInput)
	}
	if len(spec.Milestones) == 0 {
		return fmt.Errorf("agreement needs at least one milestone: %w", model.ErrInvalidInput)
	}
	var sum uint64
	seen := map[uint64]bool{}
	for _, ms := range spec.Milestones {
		if seen[ms.ID] {
			return fmt.Errorf("duplicate milestone id %d: %w", ms.ID, model.ErrInvalidInput)
		}
		seen[ms.ID] = true
		if ms.Condition == nil {
			return fmt.Errorf("milestone %d has no condition: %w", ms.ID, model.ErrInvalidInput)
		}
		next, err := escrow.CheckedAdd(sum, ms.Amount)
		if err != nil {
			return err
		}
		sum = next
	}
	if sum > spec.TotalFunding {
		return fmt.Errorf("milestone amounts sum to %d, exceeding total funding %d: %w", sum, spec.TotalFunding, model.ErrInvalidInput)
	}
	return nil
}

// Agreement returns one agreement by id.
func (e *Engine) Agreement(contextID, id string) (*model.Agreement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	a, err := st.Agreement(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// AgreementsFor lists the agreements the identity is a party to, sorted by
// id.
func (e *Engine) AgreementsFor(contextID string, id model.Identity) ([]*model.Agreement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	var out []*model.Agreement
	for _, a := range st.Agreements {
		if a.IsParty(id) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

// AddAgreementParticipant admits a new party to an active agreement. Only
// the creator may do this. The electorate grows, so open vote tallies are
// re-run against the larger voter count.
func (e *Engine) AddAgreementParticipant(ctx context.Context, contextID, agreementID string, actor, participant model.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return err
	}
	if a.Creator != actor {
		return fmt.Errorf("%w: only the creator may add agreement participants", model.ErrUnauthorized)
	}
	if a.Status != model.AgreementActive {
		return fmt.Errorf("agreement %q is %s: %w", agreementID, a.Status, model.ErrNotReady)
	}
	if a.IsParty(participant) {
		return fmt.Errorf("%q in agreement %q: %w", participant, agreementID, model.ErrAlreadyExists)
	}
	a.Participants.Add(participant)
	retallyOpenVotes(a)

	e.record(ctx, contextID, actor, "agreement.participant_add", agreementID, string(participant))
	return nil
}

// retallyOpenVotes re-runs the tally of every milestone with open voting.
// Growing the electorate can move quorum, so a previously sufficient count
// may no longer decide, and a rejection may stop being mathematical.
func retallyOpenVotes(a *model.Agreement) {
	n := a.VoterCount()
	for _, m := range a.Milestones {
		if m.Status != model.MilestoneVotingActive {
			continue
		}
		switch milestone.Tally(m, n, a.VotingThreshold) {
		case milestone.TallyApproved:
			m.Status = model.MilestoneApproved
		case milestone.TallyRejected:
			m.Status = model.MilestoneRejected
		}
	}
}

// CancelAgreement moves an active agreement to Cancelled. Creator only.
// Approved-but-unexecuted milestones stop being executable.
func (e *Engine) CancelAgreement(ctx context.Context, contextID string, actor model.Identity, agreementID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return err
	}
	if a.Creator != actor {
		return fmt.Errorf("%w: only the creator may cancel agreement %q", model.ErrUnauthorized, agreementID)
	}
	if a.Status != model.AgreementActive {
		return fmt.Errorf("agreement %q is %s: %w", agreementID, a.Status, model.ErrNotReady)
	}
	a.Status = model.AgreementCancelled

	e.log.Info("agreement cancelled", "context_id", contextID, "agreement_id", agreementID)
	e.record(ctx, contextID, actor, "agreement.cancel", agreementID, "")
	return nil
}

// FundAgreement adds funds to an agreement's escrow.
func (e *Engine) FundAgreement(ctx context.Context, contextID string, actor model.Identity, agreementID string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return err
	}
	if err := escrow.Fund(a, actor, amount); err != nil {
		return err
	}
	e.record(ctx, contextID, actor, "escrow.fund", agreementID, fmt.Sprint(amount))
	return nil
}

// Balance returns an agreement's funding totals.
func (e *Engine) Balance(contextID, agreementID string) (total, remaining uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return 0, 0, err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return 0, 0, err
	}
	return a.TotalFunding, a.RemainingBalance, nil
}

// RefreshMilestones re-evaluates the pending milestones of one agreement
// against the current document statuses and clock, returning the ids that
// transitioned.
func (e *Engine) RefreshMilestones(ctx context.Context, contextID, agreementID string) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return nil, err
	}
	transitioned := milestone.Refresh(a, documentLookup(st), e.clk.Now())
	if len(transitioned) > 0 {
		e.record(ctx, contextID, a.Creator, "milestone.refresh", agreementID, fmt.Sprint(transitioned))
	}
	return transitioned, nil
}

// refreshLocked re-evaluates every active agreement in the store. Callers
// must hold e.mu.
func (e *Engine) refreshLocked(ctx context.Context, st *state.Store, contextID string, now int64) {
	lookup := documentLookup(st)
	for _, a := range st.Agreements {
		transitioned := milestone.Refresh(a, lookup, now)
		for _, id := range transitioned {
			e.log.Debug("milestone transitioned",
				"context_id", contextID,
				"agreement_id", a.ID,
				"milestone_id", id)
		}
		if len(transitioned) > 0 {
			e.record(ctx, contextID, a.Creator, "milestone.refresh", a.ID, fmt.Sprint(transitioned))
		}
	}
}

func documentLookup(st *state.Store) milestone.StatusLookup {
	return func(documentID string) (model.DocumentStatus, bool) {
		d, ok := st.Documents[documentID]
		if !ok {
			return "", false
		}
		return d.Status, true
	}
}

// Vote casts a ballot on a milestone and returns the resulting tally.
func (e *Engine) Vote(ctx context.Context, contextID, agreementID string, voter model.Identity, milestoneID uint64, approve bool) (*milestone.VoteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AgreementActive {
		return nil, fmt.Errorf("agreement %q is %s: %w", agreementID, a.Status, model.ErrNotReady)
	}
	res, err := milestone.CastVote(a, milestoneID, voter, approve, e.clk.Now())
	if err != nil {
		return nil, err
	}
	e.record(ctx, contextID, voter, "milestone.vote", fmt.Sprintf("%s/%d", agreementID, milestoneID), fmt.Sprintf("approve=%t status=%s", approve, res.Status))
	return res, nil
}

// VotingStatus returns the current tally of a milestone.
func (e *Engine) VotingStatus(contextID, agreementID string, milestoneID uint64) (*milestone.VoteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	a, err := st.Agreement(agreementID)
	if err != nil {
		return nil, err
	}
	return milestone.VotingStatus(a, milestoneID)
}

// ExecuteMilestone pays out an approved milestone through the transfer
// backend. The engine lock is released while the transfer is in flight; the
// escrow ledger's reservation keeps concurrent executions from double
// spending.
func (e *Engine) ExecuteMilestone(ctx context.Context, contextID, agreementID string, actor model.Identity, milestoneID uint64) (*model.Milestone, error) {
	// The ledger calls this under the engine lock, both at reservation and
	// again at finalize, so an execution suspended in the transfer await
	// lands on whatever store a replica merge installed in the meantime.
	resolve := escrow.ResolveFunc(func() (*model.Agreement, error) {
		st, err := e.sharedStore(contextID)
		if err != nil {
			return nil, err
		}
		return st.Agreement(agreementID)
	})

	e.mu.Lock()
	a, err := resolve()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !a.IsParty(actor) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is not a party to agreement %q", model.ErrUnauthorized, actor, agreementID)
	}
	e.mu.Unlock()

	// The ledger takes the same lock itself.
	m, err := e.ledger.Execute(ctx, resolve, milestoneID, e.clk.Now())
	if err != nil {
		return nil, err
	}
	e.log.Info("milestone executed",
		"context_id", contextID,
		"agreement_id", agreementID,
		"milestone_id", milestoneID,
		"amount", m.Amount,
		"recipient", m.Recipient)
	e.record(ctx, contextID, actor, "escrow.execute", fmt.Sprintf("%s/%d", agreementID, milestoneID), fmt.Sprint(m.Amount))
	return m.Clone(), nil
}

// Snapshot returns a deep copy of a hosted shared store, for handing to
// another replica.
func (e *Engine) Snapshot(contextID string) (*state.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.sharedStore(contextID)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// MergeReplica reconciles a remote replica's store into the hosted one. A
// context not hosted here is adopted wholesale.
func (e *Engine) MergeReplica(ctx context.Context, remote *state.Store) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := remote.Context.ID
	local, ok := e.shared[id]
	if !ok {
		e.shared[id] = remote.Clone()
		e.record(ctx, id, remote.Context.Owner, "replica.merge", "", "adopted")
		return nil
	}
	merged, err := merge.Stores(local, remote)
	if err != nil {
		return err
	}
	e.shared[id] = merged
	e.log.Info("replica merged", "context_id", id)
	e.record(ctx, id, local.Context.Owner, "replica.merge", "", "")
	return nil
}
