package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelladouceur1/joistor/internal/history"
	"github.com/michaelladouceur1/joistor/internal/journal"
	"github.com/michaelladouceur1/joistor/internal/manifest"
	"github.com/michaelladouceur1/joistor/internal/rules"
	"github.com/michaelladouceur1/joistor/internal/store"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// RunFlags holds flags specific to the run command.
type RunFlags struct {
	Journal string
	Strict  bool
	History int
}

// Script is a sequence of store operations loaded from YAML.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step is one script operation. Exactly one of Set, Delete, Undo, or
// Redo must be present; Value accompanies Set.
type Step struct {
	Set    string `yaml:"set,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Undo   int    `yaml:"undo,omitempty"`
	Redo   int    `yaml:"redo,omitempty"`
	Value  any    `yaml:"value,omitempty"`
}

// TraceEntry records the outcome of one executed step.
type TraceEntry struct {
	Seq    int    `json:"seq"`
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
	Status string `json:"status"` // "ok" or "rejected"
	Error  string `json:"error,omitempty"`
}

// RunResult is the full outcome of a script run.
type RunResult struct {
	Session string          `json:"session,omitempty"`
	Steps   []TraceEntry    `json:"steps"`
	State   json.RawMessage `json:"state"`
	Undo    int             `json:"undo"`
	Redo    int             `json:"redo"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run <manifest> <script>",
		Short: "Register a manifest's fields and execute a script against the store",
		Long: `Build a store from a manifest, then execute a YAML script of
set/delete/undo/redo steps against it. Rejected writes do not stop the
script; every step's outcome appears in the trace. With --journal,
committed mutations are recorded to a SQLite journal and a final
snapshot is checkpointed.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(rootOpts, flags, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Journal, "journal", "", "record committed changes to this SQLite database")
	cmd.Flags().BoolVar(&flags.Strict, "strict", false, "reject type mismatches instead of coercing scalars")
	cmd.Flags().IntVar(&flags.History, "history", history.DefaultCapacity, "undo/redo buffer size")

	return cmd
}

func runScript(opts *RootOptions, flags *RunFlags, manifestPath, scriptPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	m, err := loadManifest(formatter, manifestPath)
	if err != nil {
		return err
	}
	script, err := loadScript(formatter, scriptPath)
	if err != nil {
		return err
	}

	storeOpts := store.DefaultOptions()
	storeOpts.Strict = flags.Strict
	storeOpts.HistoryBuffer = flags.History
	storeOpts.ErrorLog = false
	st := store.New(storeOpts)

	if err := m.Apply(st); err != nil {
		code := ErrCodeBadDefault
		var cerr *rules.CompileError
		if errors.As(err, &cerr) {
			code = ErrCodeSchemaCompile
		}
		msg := fmt.Sprintf("manifest rejected: %v", err)
		formatter.Error(code, msg, nil)
		return NewExitError(ExitFailure, fmt.Sprintf("[%s] %s", code, msg))
	}
	formatter.VerboseLog("registered %d fields", len(m.Fields))

	var rec *journal.Recorder
	if flags.Journal != "" {
		j, err := journal.Open(flags.Journal)
		if err != nil {
			msg := fmt.Sprintf("cannot open journal: %v", err)
			formatter.Error(ErrCodeJournal, msg, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
		}
		defer j.Close()

		rec, err = journal.Attach(ctx, j, st)
		if err != nil {
			msg := fmt.Sprintf("cannot attach journal: %v", err)
			formatter.Error(ErrCodeJournal, msg, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
		}
		formatter.VerboseLog("journaling to %s, session %s", flags.Journal, rec.Session())
	}

	result := RunResult{Steps: []TraceEntry{}}
	rejected := 0
	for i, step := range script.Steps {
		entry := executeStep(st, i+1, step)
		if entry.Status != "ok" {
			rejected++
		}
		result.Steps = append(result.Steps, entry)
	}

	if rec != nil {
		result.Session = rec.Session()
		if err := rec.Checkpoint(ctx, st); err != nil {
			msg := fmt.Sprintf("checkpoint failed: %v", err)
			formatter.Error(ErrCodeJournal, msg, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
		}
		if err := rec.Err(); err != nil {
			msg := fmt.Sprintf("journal write failed: %v", err)
			formatter.Error(ErrCodeJournal, msg, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeJournal, msg))
		}
	}

	state, err := value.MarshalCanonical(value.Object(st.Snapshot()))
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot render state", err)
	}
	result.State = json.RawMessage(state)
	result.Undo = st.UndoLen()
	result.Redo = st.RedoLen()

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printRunText(formatter, result)
	}

	if rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d steps rejected", rejected, len(script.Steps)))
	}
	return nil
}

// executeStep applies one step to the store. Failures are folded into the
// trace entry rather than returned; a script keeps running past rejections.
func executeStep(st *store.Store, seq int, step Step) TraceEntry {
	switch {
	case step.Set != "":
		entry := TraceEntry{Seq: seq, Op: "set", Target: step.Set, Status: "ok"}
		v, err := manifest.FromYAML(step.Value)
		if err == nil {
			err = st.Set(step.Set, v)
		}
		if err != nil {
			entry.Status = "rejected"
			entry.Error = err.Error()
		}
		return entry

	case step.Delete != "":
		entry := TraceEntry{Seq: seq, Op: "delete", Target: step.Delete, Status: "ok"}
		if err := st.Delete(step.Delete); err != nil {
			entry.Status = "rejected"
			entry.Error = err.Error()
		}
		return entry

	case step.Undo > 0:
		entry := TraceEntry{Seq: seq, Op: "undo", Target: fmt.Sprintf("%d", step.Undo), Status: "ok"}
		for i := 0; i < step.Undo; i++ {
			if err := st.Undo(); err != nil {
				entry.Status = "rejected"
				entry.Error = err.Error()
				break
			}
		}
		return entry

	case step.Redo > 0:
		entry := TraceEntry{Seq: seq, Op: "redo", Target: fmt.Sprintf("%d", step.Redo), Status: "ok"}
		for i := 0; i < step.Redo; i++ {
			if err := st.Redo(); err != nil {
				entry.Status = "rejected"
				entry.Error = err.Error()
				break
			}
		}
		return entry

	default:
		return TraceEntry{
			Seq:    seq,
			Op:     "invalid",
			Status: "rejected",
			Error:  "step declares no operation (want set, delete, undo, or redo)",
		}
	}
}

func printRunText(formatter *OutputFormatter, result RunResult) {
	for _, e := range result.Steps {
		line := fmt.Sprintf("%3d %-8s %-6s %s", e.Seq, e.Status, e.Op, e.Target)
		if e.Error != "" {
			line += ": " + e.Error
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	fmt.Fprintf(formatter.Writer, "state: %s\n", result.State)
	fmt.Fprintf(formatter.Writer, "undo: %d redo: %d\n", result.Undo, result.Redo)
	if result.Session != "" {
		fmt.Fprintf(formatter.Writer, "session: %s\n", result.Session)
	}
}

// loadScript reads and parses a script file, checking that every step
// declares exactly one operation.
func loadScript(formatter *OutputFormatter, path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			msg := fmt.Sprintf("script not found: %s", path)
			formatter.Error(ErrCodeNotFound, msg, nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeNotFound, msg))
		}
		msg := fmt.Sprintf("cannot read script: %v", err)
		formatter.Error(ErrCodeRead, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeRead, msg))
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		msg := fmt.Sprintf("parse script: %v", err)
		formatter.Error(ErrCodeScript, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeScript, msg))
	}
	if len(script.Steps) == 0 {
		msg := "parse script: no steps declared"
		formatter.Error(ErrCodeScript, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeScript, msg))
	}

	for i, step := range script.Steps {
		ops := 0
		if step.Set != "" {
			ops++
		}
		if step.Delete != "" {
			ops++
		}
		if step.Undo > 0 {
			ops++
		}
		if step.Redo > 0 {
			ops++
		}
		if ops != 1 {
			msg := fmt.Sprintf("parse script: steps[%d] must declare exactly one of set, delete, undo, redo", i)
			formatter.Error(ErrCodeScript, msg, nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeScript, msg))
		}
	}
	return &script, nil
}
