// Package clock abstracts the time source used by every timer in the
// agent runtime. Production code uses Real; tests drive a Fake by hand.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// After delivers the current time once d has elapsed. A non-positive
	// d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels the
	// pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	Sleep(d time.Duration)
}

// Timer is a cancellable pending call created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the call from firing. It reports whether the call was
// still pending. Calling Stop on a nil Timer is allowed.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
