package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/4rchr4y/moss/internal/config"
	"github.com/4rchr4y/moss/internal/harness"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File   string            `json:"file"`
	Kind   string            `json:"kind"` // "config" or "scenario"
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in a file. Line and Column are zero
// when the position is unknown.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a CUE config or a scenario file",
		Long: `Validate a file without running anything.

Files ending in .cue are checked against the runtime config schema.
Files ending in .yaml or .yml are parsed as scenarios and checked for
unknown fields, missing step arguments and unknown trace kinds.

Exit codes:
  0 - File is valid
  1 - File has validation errors
  2 - Command error (missing file, unsupported extension)

Examples:
  moss validate ./moss.cue
  moss validate ./scenarios/counter.yaml --format json`,
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
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(path); err != nil {
		return outputValidateError(formatter, config.ErrCodeRead, fmt.Sprintf("file not found: %s", path))
	}

	result := ValidationResult{File: path, Valid: true}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		result.Kind = "config"
		formatter.VerboseLog("Validating config %s", path)
		if _, err := config.Load(path); err != nil {
			result.Errors = append(result.Errors, configValidationError(err))
		}
	case ".yaml", ".yml":
		result.Kind = "scenario"
		formatter.VerboseLog("Validating scenario %s", path)
		if _, err := harness.LoadScenario(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{Code: CodeScenario, Message: err.Error()})
		}
	default:
		return outputValidateError(formatter, "E_UNSUPPORTED",
			fmt.Sprintf("unsupported file type %q: want .cue, .yaml or .yml", filepath.Ext(path)))
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func configValidationError(err error) ValidationError {
	var cerr *config.Error
	if !errors.As(err, &cerr) {
		return ValidationError{Code: config.ErrCodeInvalid, Message: err.Error()}
	}
	ve := ValidationError{Code: cerr.Code, Message: cerr.Message}
	if cerr.Pos.IsValid() {
		ve.Line = cerr.Pos.Line()
		ve.Column = cerr.Pos.Column()
	}
	return ve
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid\n", result.Kind)
	return nil
}

// outputValidateError reports a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		})
		if err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintf(formatter.Writer, "✗ %s invalid\n", result.Kind)
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d, column %d\n", e.Line, e.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return failed
}
