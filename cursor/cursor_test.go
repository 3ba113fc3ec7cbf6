package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drain[T any](c Cursor[T]) []T {
	var out []T
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

func TestSliceCursorDrainsInOrder(t *testing.T) {
	c := NewSlice([]int{1, 2, 3})
	require.Equal(t, []int{1, 2, 3}, drain[int](c))
}

func TestSliceCursorReset(t *testing.T) {
	c := NewSlice([]string{"a", "b"})
	_ = drain[string](c)
	require.False(t, c.HasNext())

	c.Reset()
	require.True(t, c.HasNext())
	require.Equal(t, "a", c.Next())
}

func TestPeekDoesNotConsume(t *testing.T) {
	p := NewPeek[int](NewSlice([]int{10, 20, 30}))
	require.Equal(t, 10, p.PeekValue())
	require.Equal(t, 10, p.PeekValue(), "peeking twice must not advance")
	require.Equal(t, 10, p.Next())
	require.Equal(t, 20, p.Next())
}

func TestPeekHasNextFalseOnEmpty(t *testing.T) {
	p := NewPeek[int](NewSlice([]int{}))
	require.False(t, p.HasNext())
}

func TestPeekResetRewindsInner(t *testing.T) {
	p := NewPeek[int](NewSlice([]int{1, 2}))
	_ = p.Next()
	p.Reset()
	require.Equal(t, []int{1, 2}, drain[int](p))
}

func TestPeekCloseDelegatesToInner(t *testing.T) {
	p := NewPeek[int](NewSlice([]int{1}))
	require.NoError(t, p.Close())
}
