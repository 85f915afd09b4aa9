// Package engine implements the per-record retry/classification state
// machine and the reader/worker-pool/writer pipeline that drives it.
package engine

import (
	"context"

	"github.com/corvidlabs/checkerbase/internal/rotator"
	"github.com/corvidlabs/checkerbase/internal/writer"
)

// Client is a scoped per-attempt resource. A fresh Client is created for
// every attempt, including retries, and released on every exit path.
type Client interface {
	Close() error
}

// OutcomeKind classifies the result of one Process call.
type OutcomeKind int

const (
	// Success is terminal: the record was processed and accepted.
	Success OutcomeKind = iota
	// Failed is terminal: the record was processed and rejected.
	Failed
	// Ignored is terminal: the record does not apply.
	Ignored
	// Retry is transient: re-enter the loop until MaxRetries is exhausted.
	Retry
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Ignored:
		return "ignored"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Checker.Process.
type Outcome struct {
	Kind     OutcomeKind
	Captures []writer.Capture
	// Cause is an optional diagnostic attached to a Retry outcome. It is
	// never itself consulted by IsTransient — a Retry outcome is always
	// transient by construction.
	Cause error
}

// SuccessOutcome is a convenience constructor.
func SuccessOutcome(captures ...writer.Capture) Outcome {
	return Outcome{Kind: Success, Captures: captures}
}

// FailedOutcome is a convenience constructor.
func FailedOutcome(captures ...writer.Capture) Outcome {
	return Outcome{Kind: Failed, Captures: captures}
}

// IgnoredOutcome is a convenience constructor.
func IgnoredOutcome() Outcome {
	return Outcome{Kind: Ignored}
}

// RetryOutcome is a convenience constructor.
func RetryOutcome(cause error) Outcome {
	return Outcome{Kind: Retry, Cause: cause}
}

// Checker is the capability set the engine depends on. R is the
// checker-defined parsed record type; the engine never inspects it. This
// monomorphizes the three-type-parameter checker contract (record,
// outcome, client) down to one: Outcome is a fixed, concrete type shared
// by every checker, and Client is a small interface every checker's
// client satisfies.
type Checker[R any] interface {
	// QuickValidate is an allocation-free prefilter run before Parse.
	QuickValidate(line string) bool

	// Parse returns the parsed record and true, or the zero value and
	// false if the line does not parse.
	Parse(line string) (R, bool)

	// CreateClient constructs a client scoped to a single attempt. proxy
	// is nil when no proxy rotator is configured.
	CreateClient(ctx context.Context, proxy *rotator.ProxyEntry) (Client, error)

	// Process attempts the record against client. A non-nil error is
	// consulted via IsTransient; a nil error means outcome is the
	// authoritative result, including Retry.
	Process(ctx context.Context, record R, client Client) (outcome Outcome, err error)

	// IsTransient decides retry vs. terminal failure for an error
	// returned from Process.
	IsTransient(err error) bool
}
