// Package merrors implements the engine's error taxonomy (§7 of the
// specification). ErrInvariant signals an engine bug and ErrIoError a
// backing-store failure; the other sentinels below are expected,
// non-fatal conditions. Callers should use errors.Is to classify a
// returned error.
package merrors

import (
	"errors"
	"fmt"
)

var (
	// ErrIoError signals a fault in the underlying storage medium.
	ErrIoError = errors.New("mvbt: io error")
	// ErrNotFound signals a missing block, key, or a version that
	// precedes the tree's birth.
	ErrNotFound = errors.New("mvbt: not found")
	// ErrDuplicate signals a key already live at the given version.
	ErrDuplicate = errors.New("mvbt: duplicate key")
	// ErrVersionOrder signals a mutating version that is not > v_current.
	ErrVersionOrder = errors.New("mvbt: version out of order")
	// ErrCorruptMetadata signals a missing or malformed metadata property.
	ErrCorruptMetadata = errors.New("mvbt: corrupt metadata")
	// ErrFull signals a fixed-capacity backing has no more room.
	ErrFull = errors.New("mvbt: container full")
	// ErrInvariant signals an internal consistency check failed; this
	// indicates a bug in the engine, not caller misuse.
	ErrInvariant = errors.New("mvbt: invariant violation")
)

// IO wraps err as an ErrIoError with call-site context.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIoError, err)
}

// NotFound builds an ErrNotFound with call-site context.
func NotFound(op string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %v", op, ErrNotFound, args)
}

// Duplicate builds an ErrDuplicate with call-site context.
func Duplicate(op string, key interface{}) error {
	return fmt.Errorf("%s: %w: key=%v", op, ErrDuplicate, key)
}

// VersionOrder builds an ErrVersionOrder with call-site context.
func VersionOrder(op string, got, current interface{}) error {
	return fmt.Errorf("%s: %w: v=%v v_current=%v", op, ErrVersionOrder, got, current)
}

// CorruptMetadata builds an ErrCorruptMetadata with call-site context.
func CorruptMetadata(op string, missing string) error {
	return fmt.Errorf("%s: %w: missing property %q", op, ErrCorruptMetadata, missing)
}

// Full builds an ErrFull with call-site context.
func Full(op string) error {
	return fmt.Errorf("%s: %w", op, ErrFull)
}

// Invariant panics in debug builds (see invariant_debug.go /
// invariant_release.go) and otherwise returns an ErrInvariant.
func Invariant(op string, detail string) error {
	return invariantHook(op, detail)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
