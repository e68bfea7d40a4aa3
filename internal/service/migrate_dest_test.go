package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMigrateReceiveIntraPool(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)
	assert.True(t, dest.IntraPool)
	assert.Equal(t, "OpaqueRef:host1", dest.DestHostRef)
	assert.Equal(t, "192.168.1.10", dest.RemoteIP)
	assert.Equal(t, "session-token", dest.SessionID)
	assert.Nil(t, dest.remote)
}

func TestResolveMigrateReceiveCrossPool(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)

	dest := intraDest()
	dest["host"] = "OpaqueRef:elsewhere" // 本地库解析不到，就是跨池
	resolved, err := env.svc.resolveMigrateReceive(context.Background(), dest)
	require.NoError(t, err)
	assert.False(t, resolved.IntraPool)
	assert.NotNil(t, resolved.remote)
}

func TestResolveMigrateReceiveMissingKey(t *testing.T) {
	env := newMigrateTestEnv(t)
	dest := intraDest()
	delete(dest, "session_id")
	_, err := env.svc.resolveMigrateReceive(context.Background(), dest)
	require.Error(t, err)
}

func TestResolveMigrateReceiveMalformedURL(t *testing.T) {
	env := newMigrateTestEnv(t)
	dest := intraDest()
	dest["master"] = "::not-a-url::"
	_, err := env.svc.resolveMigrateReceive(context.Background(), dest)
	require.Error(t, err)
}

func TestResolveMigrateReceiveForcesPlaintextSMToSourceHost(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)

	dest := intraDest()
	dest["SM"] = "https://192.168.1.10:4094" // 指回本池宿主机自身
	resolved, err := env.svc.resolveMigrateReceive(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.10:4094", resolved.SMURL)
}

func TestParseBoolTokens(t *testing.T) {
	for _, token := range []string{"true", "TRUE", "on", "On", "1"} {
		val, ok := parseBoolToken(token)
		assert.True(t, ok, token)
		assert.True(t, val, token)
	}
	for _, token := range []string{"false", "OFF", "0"} {
		val, ok := parseBoolToken(token)
		assert.True(t, ok, token)
		assert.False(t, val, token)
	}
	_, ok := parseBoolToken("yes")
	assert.False(t, ok)
}
