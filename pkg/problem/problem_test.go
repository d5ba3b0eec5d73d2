package problem

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemError(t *testing.T) {
	p := New(TypeNotFound, "column not found", "no column named age")
	assert.Equal(t, "column not found: no column named age", p.Error())

	p = New(TypeInternal, "internal error", "")
	assert.Equal(t, "internal error", p.Error())

	p = Newf(TypeInvalid, "bad row", "row %d out of range", 99)
	assert.Equal(t, "row 99 out of range", p.Detail)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	orig := New(TypeFetch, "fetch failed", "boom")
	assert.Same(t, orig, From(orig))

	// Wrapped problems are unwrapped, not double-wrapped.
	wrapped := fmt.Errorf("while loading: %w", orig)
	assert.Same(t, orig, From(wrapped))

	p := From(context.Canceled)
	require.NotNil(t, p)
	assert.Equal(t, TypeCancelled, p.Type)

	p = From(context.DeadlineExceeded)
	assert.Equal(t, TypeTimeout, p.Type)

	p = From(errors.New("disk on fire"))
	assert.Equal(t, TypeInternal, p.Type)
	assert.Equal(t, "disk on fire", p.Detail)
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(TypeUnavailable, "backend down", ""))
	assert.True(t, IsType(err, TypeUnavailable))
	assert.False(t, IsType(err, TypeNotFound))
	assert.False(t, IsType(errors.New("plain"), TypeInternal))
	assert.False(t, IsType(nil, TypeInternal))
}
