package simulation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation             = "validation_failed"
	CodeBudgetConstraint       = "budget_constraint_violation"
	CodeHighRiskUnacknowledged = "high_risk_unacknowledged"
	CodeMissingField           = "missing_required_field"
	CodeInvalidValue           = "invalid_value"
	CodeInvalidAssumption      = "invalid_assumption"
	CodeDependencyUnavailable  = "dependency_unavailable"
	CodeInternal               = "internal"
)

type ValidationFailure struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every violated rule, in check order.
type ValidationError struct {
	Failures []ValidationFailure
}

func (e *ValidationError) Code() string {
	if len(e.Failures) == 0 {
		return CodeValidation
	}
	return e.Failures[0].Code
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code(), strings.Join(parts, "; "))
}

// DependencyError marks a hard collaborator failure. No partial result
// accompanies it.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// ErrorResponse is the failure envelope; it never carries result sections.
type ErrorResponse struct {
	ErrorCode          string              `json:"error_code"`
	ErrorMessage       string              `json:"error_message"`
	ValidationFailures []ValidationFailure `json:"validation_failures"`
}

func BuildErrorResponse(err error) ErrorResponse {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrorResponse{
			ErrorCode:          ve.Code(),
			ErrorMessage:       fmt.Sprintf("scenario rejected: %d validation failure(s)", len(ve.Failures)),
			ValidationFailures: ve.Failures,
		}
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return ErrorResponse{
			ErrorCode:          CodeDependencyUnavailable,
			ErrorMessage:       fmt.Sprintf("required dependency %s is unavailable; no partial result is produced: %v", de.Dependency, de.Err),
			ValidationFailures: []ValidationFailure{},
		}
	}
	return ErrorResponse{ErrorCode: CodeInternal, ErrorMessage: err.Error(), ValidationFailures: []ValidationFailure{}}
}
