package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelladouceur1/joistor/internal/manifest"
	"github.com/michaelladouceur1/joistor/internal/rules"
)

// FieldIssue describes one field that failed validation.
type FieldIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds the outcome of a manifest validation pass.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Fields int          `json:"fields"`
	Issues []FieldIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest's schemas and defaults without running anything",
		Long: `Compile every field schema declared in a manifest and check each
default value against its schema. No store is built and no state is
mutated; this is fast feedback for manifest authors.`,
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

	m, err := loadManifest(formatter, path)
	if err != nil {
		return err
	}

	formatter.VerboseLog("validating %d fields from %s", len(m.Fields), path)

	gateway := rules.NewGateway(false)
	result := ValidationResult{Valid: true, Fields: len(m.Fields)}
	for _, f := range m.Fields {
		if issue, ok := checkField(gateway, f); ok {
			result.Valid = false
			result.Issues = append(result.Issues, issue)
		}
	}

	if !result.Valid {
		if opts.Format == "json" {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else {
			for _, issue := range result.Issues {
				fmt.Fprintf(formatter.Writer, "✗ %s [%s]: %s\n", issue.Field, issue.Code, issue.Message)
			}
		}
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d fields invalid", len(result.Issues), result.Fields))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("✓ All %d fields valid", result.Fields))
}

// checkField compiles one field's schema and validates its default.
func checkField(gateway *rules.Gateway, f manifest.Field) (FieldIssue, bool) {
	rule, err := gateway.Compile(f.Name, f.Schema)
	if err != nil {
		return FieldIssue{Field: f.Name, Code: ErrCodeSchemaCompile, Message: err.Error()}, true
	}

	def, err := manifest.FromYAML(f.Default)
	if err != nil {
		return FieldIssue{Field: f.Name, Code: ErrCodeBadDefault, Message: err.Error()}, true
	}
	if _, err := gateway.Validate(rule, def); err != nil {
		return FieldIssue{Field: f.Name, Code: ErrCodeBadDefault, Message: err.Error()}, true
	}
	return FieldIssue{}, false
}

// loadManifest reads and parses a manifest, reporting coded errors through
// the formatter. Shared by validate and run.
func loadManifest(formatter *OutputFormatter, path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			msg := fmt.Sprintf("manifest not found: %s", path)
			formatter.Error(ErrCodeNotFound, msg, nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeNotFound, msg))
		}
		msg := fmt.Sprintf("cannot read manifest: %v", err)
		formatter.Error(ErrCodeRead, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeRead, msg))
	}

	m, err := manifest.Parse(data)
	if err != nil {
		msg := err.Error()
		formatter.Error(ErrCodeManifest, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("[%s] %s", ErrCodeManifest, msg))
	}
	return m, nil
}
