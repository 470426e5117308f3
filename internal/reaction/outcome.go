package reaction

import (
	"context"
	"errors"
	"fmt"
)

type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTransport
	FailureUnauthorized
	FailureNotFound
	FailureRateLimited
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureNotFound:
		return "not_found"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Failure is the classified reason one account could not apply a reaction.
type Failure struct {
	Kind FailureKind
	Err  error
}

func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns err as a *Failure. Errors that were not classified by
// the platform client become transport failures when they come from a
// cancelled or expired context, and unknown failures otherwise.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(FailureTransport, err)
	}
	return NewFailure(FailureUnknown, err)
}

// Result is one account's entry in an Outcome. A nil Failure means the
// reaction was applied.
type Result struct {
	Account string
	Failure *Failure
}

func (r Result) Applied() bool {
	return r.Failure == nil
}

// Outcome holds one Result per pool account, in pool order.
type Outcome struct {
	ID      string
	Request Request
	Results []Result
}

func (o *Outcome) SuccessCount() int {
	n := 0
	for _, r := range o.Results {
		if r.Applied() {
			n++
		}
	}
	return n
}

func (o *Outcome) Failures() []Result {
	var failed []Result
	for _, r := range o.Results {
		if !r.Applied() {
			failed = append(failed, r)
		}
	}
	return failed
}
