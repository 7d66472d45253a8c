package escrow

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	// ErrNotFound covers both an unknown secret id and a refused disclosure.
	// The two cases deliberately share one error kind so a requester cannot
	// probe which of them caused the refusal.
	ErrNotFound = errors.New("secret not found")

	// ErrNoOraclesAvailable is the terminal failure of a contract-conditioned
	// disclosure when the registry is empty. No pending state is created.
	ErrNoOraclesAvailable = errors.New("no oracles available")
)

// goSafe runs a function in a goroutine-like wrapper that recovers panics and reports to Sentry if available.
// Use this for background tasks so panics are not silently lost.
func goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				// Best-effort report to Sentry when it's initialized.
				sentryRecover(r)
				// Re-panic so default crash behavior (and supervisors) still see it in dev/testing.
				panic(r)
			}
		}()
		fn()
	}()
}

// sentryRecover attempts to report a recovered panic to Sentry if the SDK is linked.
// If Sentry isn't initialized, this is a no-op.
func sentryRecover(rec interface{}) {
	sentry.CurrentHub().Recover(rec)
}

// sentryFlushSafely flushes Sentry with a timeout if Sentry is present; otherwise no-op.
func sentryFlushSafely(timeout time.Duration) {
	_ = sentry.Flush(timeout)
}
