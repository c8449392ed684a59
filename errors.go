package formula

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common formula processing conditions.
// These can be used with errors.Is() for error handling.
var (
	// ErrEmptyFormula indicates the input contained no expression.
	ErrEmptyFormula = errors.New("formula: empty formula")

	// ErrInvalidFormula indicates the formula failed validation and
	// cannot be compiled.
	ErrInvalidFormula = errors.New("formula: invalid formula")

	// ErrEngineClosed indicates the engine has been closed and no
	// longer accepts background work.
	ErrEngineClosed = errors.New("formula: engine closed")

	// ErrSuperseded indicates a background job was canceled because a
	// newer job for the same slot replaced it.
	ErrSuperseded = errors.New("formula: job superseded")

	// ErrNoResult indicates no finished background job exists for the
	// requested slot.
	ErrNoResult = errors.New("formula: no result for slot")
)

// SyntaxIssue is a single syntax error with its source position.
type SyntaxIssue struct {
	// Position is the byte offset in the source where the error occurred.
	Position int
	// Message describes the error.
	Message string
}

func (i SyntaxIssue) String() string {
	return fmt.Sprintf("%s at position %d", i.Message, i.Position)
}

// SyntaxError reports one or more syntax errors found while parsing a
// formula. All recoverable errors are collected so editors can mark
// every broken location at once.
type SyntaxError struct {
	Issues []SyntaxIssue
}

func (e *SyntaxError) Error() string {
	if len(e.Issues) == 0 {
		return "formula: syntax error"
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "formula: " + strings.Join(parts, "; ")
}

// ValidationError is returned by Compile when the formula did not pass
// validation. It carries the full validation result.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	for _, issue := range e.Result.Issues {
		if issue.Severity == SeverityError {
			return "formula: " + issue.Message
		}
	}
	return ErrInvalidFormula.Error()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidFormula }
