package xenops

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSuppressorNesting(t *testing.T) {
	s := NewEventSuppressor()
	assert.False(t, s.Suppressed("vm1"))

	s.Suspend("vm1")
	s.Suspend("vm1")
	assert.True(t, s.Suppressed("vm1"))

	s.Resume("vm1")
	assert.True(t, s.Suppressed("vm1"))
	s.Resume("vm1")
	assert.False(t, s.Suppressed("vm1"))

	// 多余的 Resume 不会翻负
	s.Resume("vm1")
	s.Suspend("vm1")
	assert.True(t, s.Suppressed("vm1"))
}

func TestWithSuppressedRestoresOnError(t *testing.T) {
	s := NewEventSuppressor()
	boom := errors.New("boom")
	err := s.WithSuppressed("vm1", func() error {
		require.True(t, s.Suppressed("vm1"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, s.Suppressed("vm1"))
}
