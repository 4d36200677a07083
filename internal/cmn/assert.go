// Package cmn provides small low-level helpers shared by every rssbox package:
// invariant assertions, a shared HTTP client factory, and a couple of
// concurrency primitives the standard library doesn't hand you directly.
package cmn

import "fmt"

// Assert panics if cond is false. Reserved for invariants that must hold
// regardless of caller input - a violation means a bug in this codebase,
// not a bad request or a flaky dependency.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg is like Assert but with a custom message.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// AssertNoErr panics if err is non-nil. Use only where the error is known
// to be unreachable (e.g. marshaling a struct we just constructed).
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}
