package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelladouceur1/joistor/internal/journal"
)

// HistoryFlags holds flags specific to the history command.
type HistoryFlags struct {
	Journal string
	Session string
}

// SessionList is the history output when no session is selected.
type SessionList struct {
	Sessions []string `json:"sessions"`
}

// SessionChanges is the history output for one session.
type SessionChanges struct {
	Session string                 `json:"session"`
	Changes []journal.ChangeRecord `json:"changes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &HistoryFlags{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect a journal's recorded sessions and changes",
		Long: `List the sessions recorded in a journal database, or, with
--session, the committed changes of one session in sequence order.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, flags, cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Journal, "journal", "", "journal database path")
	cmd.Flags().StringVar(&flags.Session, "session", "", "show changes for this session")
	cmd.MarkFlagRequired("journal")

	return cmd
}

func runHistory(opts *RootOptions, flags *HistoryFlags, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	if _, err := os.Stat(flags.Journal); os.IsNotExist(err) {
		msg := fmt.Sprintf("journal not found: %s", flags.Journal)
		formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeNotFound, msg))
	}

	j, err := journal.Open(flags.Journal)
	if err != nil {
		msg := fmt.Sprintf("cannot open journal: %v", err)
		formatter.Error(ErrCodeJournal, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
	}
	defer j.Close()

	if flags.Session == "" {
		ids, err := j.Sessions(ctx)
		if err != nil {
			msg := fmt.Sprintf("list sessions: %v", err)
			formatter.Error(ErrCodeJournal, msg, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
		}
		if opts.Format == "json" {
			return formatter.Success(SessionList{Sessions: ids})
		}
		if len(ids) == 0 {
			fmt.Fprintln(formatter.Writer, "no sessions")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(formatter.Writer, id)
		}
		return nil
	}

	recs, err := j.Changes(ctx, flags.Session)
	if err != nil {
		msg := fmt.Sprintf("list changes: %v", err)
		formatter.Error(ErrCodeJournal, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
	}
	if opts.Format == "json" {
		return formatter.Success(SessionChanges{Session: flags.Session, Changes: recs})
	}
	if len(recs) == 0 {
		fmt.Fprintln(formatter.Writer, "no changes")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(formatter.Writer, "%4d %-12s %-24s %s\n", rec.Seq, rec.Field, rec.Path, rec.Value)
	}
	return nil
}
