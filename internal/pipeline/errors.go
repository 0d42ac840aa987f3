package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoAccount is returned when no account could be resolved for a message,
// including every fallback.
var ErrNoAccount = errors.New("no account could be resolved")

// LimitError reports an exhausted monthly quota.
type LimitError struct {
	Used  int
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("parse limit reached (%d/%d)", e.Used, e.Limit)
}

// Failure is the error returned for every fatal pipeline outcome.
//
// PersistedIDs lists the entries already committed when the failure
// happened. Inconsistent is set when that list is non-empty: the message is
// partially applied and needs operator attention.
type Failure struct {
	Stage        Stage
	Code         string
	Message      string
	PersistedIDs []string
	Inconsistent bool
	Err          error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed (%s)", f.Stage, f.Code)
	if f.Message != "" {
		b.WriteString(": " + f.Message)
	}
	if f.Err != nil {
		b.WriteString(": " + f.Err.Error())
	}
	if f.Inconsistent {
		fmt.Fprintf(&b, " [partially persisted: %s]", strings.Join(f.PersistedIDs, ", "))
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(stage Stage, code string, err error) *Failure {
	return &Failure{Stage: stage, Code: code, Err: err}
}

// partialFailure builds a Failure that records what was already committed.
func partialFailure(stage Stage, code string, err error, persisted []string) *Failure {
	f := fail(stage, code, err)
	if len(persisted) > 0 {
		f.PersistedIDs = append([]string(nil), persisted...)
		f.Inconsistent = true
	}
	return f
}

// AsFailure extracts the Failure behind err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
