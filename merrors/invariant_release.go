//go:build !mvbtdebug

package merrors

import "fmt"

// invariantHook reports the violation as a plain error in release
// builds; see invariant_debug.go for the debug-build behavior.
func invariantHook(op, detail string) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvariant, detail)
}
