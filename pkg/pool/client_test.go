package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "xensphere/api/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 对端用迁移错误包络回话时，客户端要原样还原 code+params
func TestClientRestoresMigrateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    v1.CodeMigrateError,
			"message": v1.CodeVdiLocationMissing,
			"data":    []string{"OpaqueRef:sr", "loc"},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "session-token", false)
	require.NoError(t, err)

	_, err = client.VDIByLocation(context.Background(), "OpaqueRef:sr", "loc")
	require.Error(t, err)
	var me *v1.MigrateError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, v1.CodeVdiLocationMissing, me.Code)
	assert.Equal(t, []string{"OpaqueRef:sr", "loc"}, me.Params)
}

func TestClientDecodesSuccessEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/pools/current", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    0,
			"message": "ok",
			"data": v1.PoolDetail{
				Ref:       "OpaqueRef:pool",
				DefaultSR: "OpaqueRef:sr-def",
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "session-token", false)
	require.NoError(t, err)

	detail, err := client.GetPool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:sr-def", detail.DefaultSR)
}

func TestClientPlainErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    500,
			"message": "internal server error",
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "session-token", false)
	require.NoError(t, err)

	err = client.ScanSR(context.Background(), "OpaqueRef:sr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal server error")
}
