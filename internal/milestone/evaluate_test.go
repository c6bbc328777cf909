package milestone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calimero-network/MeroSign/internal/model"
)

// statusMap builds a StatusLookup from a literal map.
func statusMap(m map[string]model.DocumentStatus) StatusLookup {
	return func(id string) (model.DocumentStatus, bool) {
		st, ok := m[id]
		return st, ok
	}
}

func TestConditionMet(t *testing.T) {
	docs := statusMap(map[string]model.DocumentStatus{
		"signed":  model.DocumentFullySigned,
		"partial": model.DocumentPartiallySigned,
	})

	tests := []struct {
		name string
		cond model.Condition
		now  int64
		want bool
	}{
		{"document fully signed", model.DocumentSignature{DocumentID: "signed"}, 0, true},
		{"document partially signed", model.DocumentSignature{DocumentID: "partial"}, 0, false},
		{"document unknown", model.DocumentSignature{DocumentID: "ghost"}, 0, false},
		{"time not reached", model.TimeRelease{At: 100}, 99, false},
		{"time reached exactly", model.TimeRelease{At: 100}, 100, true},
		{"manual approval always ready", model.ManualApproval{}, 0, true},
		{"multi all signed no min time", model.MultiCondition{DocumentIDs: []string{"signed"}}, 0, true},
		{"multi one unsigned", model.MultiCondition{DocumentIDs: []string{"signed", "partial"}}, 0, false},
		{"multi min time pending", model.MultiCondition{DocumentIDs: []string{"signed"}, MinTime: 50}, 49, false},
		{"multi min time reached", model.MultiCondition{DocumentIDs: []string{"signed"}, MinTime: 50}, 50, true},
		{"multi requires_vote ignored by evaluator", model.MultiCondition{DocumentIDs: []string{"signed"}, RequiresVote: true}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConditionMet(tt.cond, docs, tt.now))
		})
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, model.MilestoneApproved, NextStatus(model.DocumentSignature{DocumentID: "d"}))
	assert.Equal(t, model.MilestoneReadyForVoting, NextStatus(model.ManualApproval{}))
	assert.Equal(t, model.MilestoneReadyForVoting, NextStatus(model.TimeRelease{At: 1}))
	assert.Equal(t, model.MilestoneReadyForVoting, NextStatus(model.MultiCondition{}))
}

func TestRefresh(t *testing.T) {
	docs := statusMap(map[string]model.DocumentStatus{"d1": model.DocumentFullySigned})
	a := &model.Agreement{
		ID:     "ag-1",
		Status: model.AgreementActive,
		Milestones: []*model.Milestone{
			{ID: 1, Status: model.MilestonePending, Condition: model.DocumentSignature{DocumentID: "d1"}},
			{ID: 2, Status: model.MilestonePending, Condition: model.ManualApproval{}},
			{ID: 3, Status: model.MilestonePending, Condition: model.TimeRelease{At: 100}},
			{ID: 4, Status: model.MilestoneExecuted, Condition: model.ManualApproval{}},
		},
	}

	ready := Refresh(a, docs, 50)
	assert.Equal(t, []uint64{1, 2}, ready)
	assert.Equal(t, model.MilestoneApproved, a.Milestones[0].Status, "signature milestones skip the vote")
	assert.Equal(t, model.MilestoneReadyForVoting, a.Milestones[1].Status)
	assert.Equal(t, model.MilestonePending, a.Milestones[2].Status)
	assert.Equal(t, model.MilestoneExecuted, a.Milestones[3].Status, "non-pending milestones untouched")
}

func TestRefresh_InactiveAgreement(t *testing.T) {
	a := &model.Agreement{
		Status:     model.AgreementCancelled,
		Milestones: []*model.Milestone{{ID: 1, Status: model.MilestonePending, Condition: model.ManualApproval{}}},
	}
	assert.Nil(t, Refresh(a, statusMap(nil), 0))
	assert.Equal(t, model.MilestonePending, a.Milestones[0].Status)
}
