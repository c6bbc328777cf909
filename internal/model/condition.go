package model

import (
	"encoding/json"
	"fmt"
)

// Condition is a sealed union of milestone release conditions. Only the four
// types below implement it; evaluation lives in the milestone package and is
// pure.
type Condition interface {
	condition()
	// Kind returns the wire discriminator for the condition type.
	Kind() string
}

// DocumentSignature releases when the referenced document is FullySigned.
// Milestones with this condition skip the vote and go straight to Approved.
type DocumentSignature struct {
	DocumentID string `json:"document_id"`
}

func (DocumentSignature) condition()   {}
func (DocumentSignature) Kind() string { return "document_signature" }

// TimeRelease releases once current time reaches At (unix nanoseconds).
type TimeRelease struct {
	At int64 `json:"at"`
}

func (TimeRelease) condition()   {}
func (TimeRelease) Kind() string { return "time_release" }

// ManualApproval is always "ready"; the approval itself is the quorum vote.
type ManualApproval struct{}

func (ManualApproval) condition()   {}
func (ManualApproval) Kind() string { return "manual_approval" }

// MultiCondition releases when every listed document is FullySigned and,
// if MinTime is set, current time has reached it. RequiresVote is consulted
// by the caller when deciding the post-evaluation status, not by the
// evaluator itself.
type MultiCondition struct {
	DocumentIDs  []string `json:"document_ids"`
	RequiresVote bool     `json:"requires_vote"`
	MinTime      int64    `json:"min_time,omitempty"`
}

func (MultiCondition) condition()   {}
func (MultiCondition) Kind() string { return "multi_condition" }

// conditionEnvelope is the kind-discriminated wire form.
type conditionEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// MarshalCondition encodes a condition with its kind discriminator.
func MarshalCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: condition is required", ErrInvalidInput)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal condition: %w", err)
	}
	return json.Marshal(conditionEnvelope{Kind: c.Kind(), Body: body})
}

// UnmarshalCondition decodes a kind-discriminated condition.
func UnmarshalCondition(data []byte) (Condition, error) {
	var env conditionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal condition: %w", err)
	}
	switch env.Kind {
	case "document_signature":
		var c DocumentSignature
		if err := json.Unmarshal(env.Body, &c); err != nil {
			return nil, fmt.Errorf("unmarshal document_signature: %w", err)
		}
		return c, nil
	case "time_release":
		var c TimeRelease
		if err := json.Unmarshal(env.Body, &c); err != nil {
			return nil, fmt.Errorf("unmarshal time_release: %w", err)
		}
		return c, nil
	case "manual_approval":
		return ManualApproval{}, nil
	case "multi_condition":
		var c MultiCondition
		if err := json.Unmarshal(env.Body, &c); err != nil {
			return nil, fmt.Errorf("unmarshal multi_condition: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition kind %q", ErrInvalidInput, env.Kind)
	}
}

// MarshalJSON implements json.Marshaler for milestones so the embedded
// condition round-trips through the envelope form.
func (m *Milestone) MarshalJSON() ([]byte, error) {
	type alias Milestone
	cond, err := MarshalCondition(m.Condition)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		*alias
		Condition json.RawMessage `json:"condition"`
	}{alias: (*alias)(m), Condition: cond})
}

// UnmarshalJSON implements json.Unmarshaler for milestones.
func (m *Milestone) UnmarshalJSON(data []byte) error {
	type alias Milestone
	aux := struct {
		*alias
		Condition json.RawMessage `json:"condition"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Condition) > 0 {
		cond, err := UnmarshalCondition(aux.Condition)
		if err != nil {
			return err
		}
		m.Condition = cond
	}
	return nil
}
