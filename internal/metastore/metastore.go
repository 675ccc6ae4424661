// Package metastore implements the authoritative metadata document of
// spec.md §4.1: CAS-protected load/save, the upstream merge protocol, and
// single-item read-modify-write updates, retried under optimistic
// concurrency control.
package metastore

import (
	"context"

	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
)

// ErrIdentityMismatch is returned when a merge finds two records that share
// a key but disagree on an immutable identity field in a way the duplicate
// rule can't resolve. It is never retried; it indicates upstream schema
// drift and needs human attention (spec.md §4.1, §7).
var ErrIdentityMismatch = errors.New("identity mismatch on merge")

// MaxCASRetries bounds the load-merge-save retry loop of spec.md §4.1.
const MaxCASRetries = 5

// retryCAS runs attempt up to MaxCASRetries+1 times, treating
// objstore.ErrPreconditionFailed as retriable and any other error
// (including ErrIdentityMismatch) as fatal and non-retried.
func retryCAS(ctx context.Context, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= MaxCASRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrIdentityMismatch) {
			return err
		}
		if !errors.Is(err, objstore.ErrPreconditionFailed) {
			return err
		}
		lastErr = err
	}
	return errors.Wrap(lastErr, "exhausted CAS retries")
}
