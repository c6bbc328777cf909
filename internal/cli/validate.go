package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/calimero-network/MeroSign/internal/definition"
)

// ValidationResult holds the outcome of validating one definition file.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Path       string   `json:"path"`
	Title      string   `json:"title,omitempty"`
	Milestones int      `json:"milestones,omitempty"`
	Problems   []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition.yaml>",
		Short: "Validate an agreement definition file",
		Long: `Validate a YAML agreement definition against the schema.

Checks structure, condition kinds, voting threshold range and milestone
shape, then runs the same conversion the engine applies on creation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := definition.Load(path)
	if err != nil {
		var verr *definition.ValidationError
		if errors.As(err, &verr) {
			result := ValidationResult{Valid: false, Path: path, Problems: verr.Problems}
			if ferr := formatter.Error(err.Error(), result); ferr != nil {
				return ferr
			}
			return &ExitError{Code: ExitFailure, Message: "definition is invalid"}
		}
		if ferr := formatter.Error(err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitCommandError, Message: "cannot load definition", Err: err}
	}

	// The schema admits some inputs the engine still refuses, e.g. milestone
	// amounts summing past the total funding. Run the conversion too.
	if _, err := def.Spec(); err != nil {
		if ferr := formatter.Error(err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitFailure, Message: "definition is invalid", Err: err}
	}

	formatter.VerboseLog("validated %s: %d milestone(s)", path, len(def.Milestones))
	return formatter.Success(ValidationResult{
		Valid:      true,
		Path:       path,
		Title:      def.Title,
		Milestones: len(def.Milestones),
	})
}
