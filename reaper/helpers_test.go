package reaper_test

import "context"

// contextThatCancelsImmediately lets a test run exactly one sweep of
// Reaper.Run (which always sweeps once before entering its ticker select)
// without waiting for a real interval to elapse.
func contextThatCancelsImmediately() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
