// Package errs holds the pipeline error taxonomy. Fatal errors abort a run;
// warnings are recovered locally and only logged.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSource = errors.New("required source missing")
	ErrSchema        = errors.New("schema error")
	ErrDegenerate    = errors.New("degenerate input")
)

// MissingRequiredSourceError is returned when a load-bearing input file is absent.
type MissingRequiredSourceError struct {
	Source string
	Path   string
	Err    error
}

func (e *MissingRequiredSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("required source %q missing at %s: %v", e.Source, e.Path, e.Err)
	}
	return fmt.Sprintf("required source %q missing at %s", e.Source, e.Path)
}

func (e *MissingRequiredSourceError) Unwrap() error { return e.Err }

func (e *MissingRequiredSourceError) Is(target error) bool { return target == ErrMissingSource }

// SchemaError is returned when an expected column is absent.
type SchemaError struct {
	Source string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: column %q not found", e.Source, e.Column)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// DegenerateInputError is returned when the return series cannot identify volatility dynamics.
type DegenerateInputError struct {
	Reason string
	N      int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate return series (n=%d): %s", e.N, e.Reason)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerate }

// ParseWarning records a cell that failed numeric normalization and was marked missing.
type ParseWarning struct {
	Source string
	Column string
	Row    int
	Raw    string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("%s: row %d column %q: cannot parse %q, marked missing", w.Source, w.Row, w.Column, w.Raw)
}

// BackendUnavailableWarning records the substitution of the fallback regression backend.
type BackendUnavailableWarning struct {
	Requested string
	Fallback  string
}

func (w BackendUnavailableWarning) Error() string {
	return fmt.Sprintf("regression backend %q unavailable, using %q", w.Requested, w.Fallback)
}

// Code returns a stable machine-readable code for a fatal pipeline error, "" if err is not one.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingSource):
		return "MISSING_REQUIRED_SOURCE"
	case errors.Is(err, ErrSchema):
		return "SCHEMA"
	case errors.Is(err, ErrDegenerate):
		return "DEGENERATE_INPUT"
	default:
		return ""
	}
}
