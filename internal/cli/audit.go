package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calimero-network/MeroSign/internal/audit"
	"github.com/calimero-network/MeroSign/internal/config"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "audit <context-id>",
		Short: "List the audit trail of a context",
		Long: `List recorded operations for one context from the audit database.

Reads the SQLite file given by --db, falling back to MEROSIGN_AUDIT_DB.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, dbPath, args[0], limit, cmd)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database (overrides MEROSIGN_AUDIT_DB)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to list (0 = all)")
	return cmd
}

func runAudit(opts *RootOptions, dbPath, contextID string, limit int, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if dbPath == "" {
		dbPath = config.Load().Audit.Path
	}
	if dbPath == "" {
		if ferr := formatter.Error("no audit database configured", nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitCommandError, Message: "no audit database configured"}
	}

	sink, err := audit.Open(dbPath)
	if err != nil {
		if ferr := formatter.Error(err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitCommandError, Message: "open audit database", Err: err}
	}
	defer sink.Close()

	entries, err := sink.Entries(cmd.Context(), contextID, limit)
	if err != nil {
		if ferr := formatter.Error(err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitCommandError, Message: "read audit trail", Err: err}
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no entries for context %s\n", contextID)
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%d  %-24s %-16s %s", e.At, e.Action, e.Actor, e.Subject)
		if e.Detail != "" {
			line += "  (" + e.Detail + ")"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
