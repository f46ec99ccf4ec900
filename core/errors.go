package core

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Row-level sentinel errors (§7). ErrMalformedURL and
// ErrMissingDependencyEndpoint never abort a run; callers compare with
// errors.Is and fold matches into warnings/skip counters. ErrParse also
// wraps a parser's whole-input failure (a missing file, undecodable
// JSON/YAML), which the Pipeline returns as a stage-level error that fails
// the run.
var (
	ErrMalformedURL              = errors.New("chai: malformed url")
	ErrMissingDependencyEndpoint = errors.New("chai: dependency endpoint not resolvable")
	ErrParse                     = errors.New("chai: upstream record could not be parsed")
)

// Stage-level sentinel errors (§7). These abort the current run.
var (
	ErrTransientFetch         = errors.New("chai: transient fetch failure")
	ErrStoreConstraintViolation = errors.New("chai: store constraint violation")
	ErrCancellationRequested  = errors.New("chai: run cancelled")
)

// Text codes surfaced on the mapped *goerrors.Error, mirroring the teacher's
// SERVICE_* convention scoped to CHAI_*.
const (
	TextCodeFetchFailed        = "CHAI_FETCH_FAILED"
	TextCodeParseFailed        = "CHAI_PARSE_FAILED"
	TextCodeStoreConstraint    = "CHAI_STORE_CONSTRAINT"
	TextCodeCancelled          = "CHAI_CANCELLED"
	TextCodeBadInput           = "CHAI_BAD_INPUT"
	TextCodeInternal           = "CHAI_INTERNAL_ERROR"
)

// MapError promotes a stage-level error into a categorized *goerrors.Error
// suitable for exit-code translation and scheduler logging (§6, §7). Row
// level errors are intentionally NOT routed through this mapper — they are
// handled locally by the Diff/Parser callers; an ErrParse that does reach
// it is a failed parse stage and maps to CHAI_PARSE_FAILED.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrTransientFetch):
		return newError(err.Error(), goerrors.CategoryExternal, TextCodeFetchFailed)
	case errors.Is(err, ErrParse):
		return newError(err.Error(), goerrors.CategoryBadInput, TextCodeParseFailed)
	case errors.Is(err, ErrStoreConstraintViolation):
		return newError(err.Error(), goerrors.CategoryInternal, TextCodeStoreConstraint)
	case errors.Is(err, ErrCancellationRequested):
		return newError(err.Error(), goerrors.CategoryOperation, TextCodeCancelled)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEnvelope(mapped)
}

func newError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.TextCode == "" {
		switch err.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			err.TextCode = TextCodeBadInput
		default:
			err.TextCode = TextCodeInternal
		}
	}
	return err
}

// Warning is a row-level issue surfaced by Diff or a Parser. It never aborts
// a run (§7); a Pipeline logs warnings at the severity implied by Kind.
type Warning struct {
	Kind    string
	Message string
	Detail  string
}

const (
	WarningKindMalformedURL       = "malformed_url"
	WarningKindMissingDependency  = "missing_dependency_endpoint"
	WarningKindParseError         = "parse_error"
)

func (w Warning) String() string {
	if w.Detail == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Message, w.Detail)
}
