//go:build mvbtdebug

package merrors

import "fmt"

// invariantHook panics in debug builds: an invariant violation
// indicates a bug in the engine, and the debug build should fail
// loudly rather than let a caller paper over it.
func invariantHook(op, detail string) error {
	panic(fmt.Sprintf("%s: %v: %s", op, ErrInvariant, detail))
}
