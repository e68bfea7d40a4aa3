package service

import (
	"errors"
	"testing"

	v1 "xensphere/api/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateThrottleCap(t *testing.T) {
	throttle := NewMigrateThrottle()
	for i := 0; i < MaxStorageMigrations; i++ {
		require.NoError(t, throttle.Enter())
	}

	err := throttle.Enter()
	require.Error(t, err)
	var me *v1.MigrateError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, v1.CodeTooManyStorageMigrates, me.Code)
	assert.Equal(t, []string{"3"}, me.Params)
	// 拒绝时计数不动
	assert.Equal(t, MaxStorageMigrations, throttle.Active())

	throttle.Leave()
	assert.Equal(t, MaxStorageMigrations-1, throttle.Active())
	require.NoError(t, throttle.Enter())
}

func TestMigrateThrottleWithSlotReleasesOnError(t *testing.T) {
	throttle := NewMigrateThrottle()
	boom := errors.New("boom")

	err := throttle.WithSlot(func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, throttle.Active())

	// panic 也要归还名额
	func() {
		defer func() { _ = recover() }()
		_ = throttle.WithSlot(func() error { panic("fire") })
	}()
	assert.Equal(t, 0, throttle.Active())
}

func TestMigrateThrottleWithSlotRejectsWhenFull(t *testing.T) {
	throttle := NewMigrateThrottle()
	for i := 0; i < MaxStorageMigrations; i++ {
		require.NoError(t, throttle.Enter())
	}
	ran := false
	err := throttle.WithSlot(func() error { ran = true; return nil })
	require.Error(t, err)
	assert.False(t, ran)
}
