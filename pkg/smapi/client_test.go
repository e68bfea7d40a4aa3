package smapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDecodesBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": "SR_BACKEND_FAILURE_46", "params": []string{"", "detail"}},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL)
	require.NoError(t, err)

	_, err = client.DataCopy(context.Background(), "dbg", "sr", "vdi", "CPabc", "http://dest", "dest-sr", false)
	require.Error(t, err)
	be, ok := AsBackendError(err)
	require.True(t, ok)
	assert.Equal(t, "SR_BACKEND_FAILURE_46", be.Code)
	assert.Equal(t, []string{"", "detail"}, be.Params)
}

func TestClientDecodesUnimplemented(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": CodeUnimplemented, "params": []string{}},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL)
	require.NoError(t, err)

	err = client.UpdateSnapshotInfoSrc(context.Background(), "dbg", "sr", "vdi", "http://dest", "dest-sr", "dest-vdi", nil, true)
	require.Error(t, err)
	assert.True(t, IsUnimplemented(err))
	assert.True(t, IsUnknownOperation(err))
}

func TestClientWaitForTask(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/task/stat", r.URL.Path)
		polls++
		state := TaskStatePending
		if polls >= 2 {
			state = TaskStateCompleted
		}
		_ = json.NewEncoder(w).Encode(Task{ID: "t1", State: state, Progress: 1, Result: "remote-loc"})
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL)
	require.NoError(t, err)

	task, err := client.WaitForTask(context.Background(), "dbg", "t1")
	require.NoError(t, err)
	assert.Equal(t, TaskStateCompleted, task.State)
	assert.Equal(t, "remote-loc", task.Result)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestIsUnknownOperationOnBackendError(t *testing.T) {
	err := &BackendError{Code: CodeUnknownError}
	assert.True(t, IsUnknownOperation(err))
	assert.False(t, IsUnknownOperation(&BackendError{Code: "Other"}))
}
