// Package definition loads milestone agreement definitions from YAML files
// and validates them against an embedded CUE schema before they reach the
// engine. The schema catches structural mistakes (missing creator, threshold
// out of range, unknown condition kinds) with positions the engine's own
// validation cannot give.
package definition

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/calimero-network/MeroSign/internal/engine"
	"github.com/calimero-network/MeroSign/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Condition mirrors the schema's condition union in YAML form.
type Condition struct {
	Kind         string   `yaml:"kind"`
	DocumentID   string   `yaml:"document_id,omitempty"`
	At           int64    `yaml:"at,omitempty"`
	DocumentIDs  []string `yaml:"document_ids,omitempty"`
	RequiresVote bool     `yaml:"requires_vote,omitempty"`
	MinTime      int64    `yaml:"min_time,omitempty"`
}

// Milestone is one payout tranche of a definition.
type Milestone struct {
	ID          uint64    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description,omitempty"`
	Recipient   string    `yaml:"recipient"`
	Amount      uint64    `yaml:"amount"`
	Condition   Condition `yaml:"condition"`
}

// Definition is a declarative agreement as authored in a YAML file.
type Definition struct {
	ID              string      `yaml:"id,omitempty"`
	Title           string      `yaml:"title"`
	Description     string      `yaml:"description,omitempty"`
	Creator         string      `yaml:"creator"`
	Participants    []string    `yaml:"participants,omitempty"`
	Documents       []string    `yaml:"documents,omitempty"`
	VotingThreshold int         `yaml:"voting_threshold"`
	TotalFunding    uint64      `yaml:"total_funding"`
	Milestones      []Milestone `yaml:"milestones"`
}

// ValidationError carries the flattened CUE errors for one definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid definition: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid definition: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse validates YAML bytes against the schema and decodes them.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

func validate(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	agreement := schema.LookupPath(cue.ParsePath("#Agreement"))
	if err := agreement.Err(); err != nil {
		return fmt.Errorf("lookup schema root: %w", err)
	}
	unified := agreement.Unify(ctx.Encode(doc))
	err := unified.Validate(cue.Concrete(true), cue.Final())
	if err == nil {
		return nil
	}
	verr := &ValidationError{}
	for _, e := range cueerrors.Errors(err) {
		verr.Problems = append(verr.Problems, e.Error())
	}
	return verr
}

// Spec converts a validated definition into the engine's agreement spec.
func (d *Definition) Spec() (engine.AgreementSpec, error) {
	spec := engine.AgreementSpec{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		Creator:         model.Identity(d.Creator),
		DocumentIDs:     d.Documents,
		VotingThreshold: d.VotingThreshold,
		TotalFunding:    d.TotalFunding,
	}
	for _, p := range d.Participants {
		spec.Participants = append(spec.Participants, model.Identity(p))
	}
	for _, m := range d.Milestones {
		cond, err := m.Condition.toModel()
		if err != nil {
			return engine.AgreementSpec{}, fmt.Errorf("milestone %d: %w", m.ID, err)
		}
		spec.Milestones = append(spec.Milestones, engine.MilestoneSpec{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			Condition:   cond,
			Recipient:   model.Identity(m.Recipient),
			Amount:      m.Amount,
		})
	}
	return spec, nil
}

func (c Condition) toModel() (model.Condition, error) {
	switch c.Kind {
	case "document_signature":
		return model.DocumentSignature{DocumentID: c.DocumentID}, nil
	case "time_release":
		return model.TimeRelease{At: c.At}, nil
	case "manual_approval":
		return model.ManualApproval{}, nil
	case "multi_condition":
		return model.MultiCondition{
			DocumentIDs:  c.DocumentIDs,
			RequiresVote: c.RequiresVote,
			MinTime:      c.MinTime,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition kind %q", model.ErrInvalidInput, c.Kind)
	}
}
