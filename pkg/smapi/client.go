package smapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// 存储面任务状态
const (
	TaskStatePending   = "pending"
	TaskStateCompleted = "completed"
	TaskStateFailed    = "failed"
	TaskStateCancelled = "cancelled"
)

// Task 存储代理异步任务
type Task struct {
	ID       string        `json:"id"`
	State    string        `json:"state"`
	Progress float64       `json:"progress"`
	Result   string        `json:"result,omitempty"` // 完成后为结果 VDI 的定位符
	Error    *BackendError `json:"error,omitempty"`
}

// Mirror 镜像会话状态
type Mirror struct {
	ID        string `json:"id"`
	SourceVDI string `json:"source_vdi"`
	DestVDI   string `json:"dest_vdi"`
	State     string `json:"state"`
	FailedVDI string `json:"failed_vdi,omitempty"` // 失败时记录出错 VDI 的 UUID
}

// Client 存储代理（SMAPI）客户端。迁移编排只使用这里列出的操作。
type Client interface {
	VDIAttach3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string, readWrite bool) error
	VDIActivate3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string) error
	DPDestroy(ctx context.Context, dbg, dp string, allowLeak bool) error
	DataCopy(ctx context.Context, dbg, sr, vdi, vmSlice, destURL, destSR string, verifyDest bool) (string, error)
	MirrorStart(ctx context.Context, dbg, sr, vdi, dp, mirrorVM, copyVM, destURL, destSR string, verifyDest bool) (string, error)
	MirrorStop(ctx context.Context, dbg, mirrorID string) error
	MirrorStat(ctx context.Context, dbg, mirrorID string) (*Mirror, error)
	UpdateSnapshotInfoSrc(ctx context.Context, dbg, sr, vdi, destURL, destSR, destVDI string, snapshotPairs [][2]string, verifyDest bool) error
	TaskStat(ctx context.Context, dbg, taskID string) (*Task, error)
	TaskDestroy(ctx context.Context, dbg, taskID string) error
	WaitForTask(ctx context.Context, dbg, taskID string) (*Task, error)
}

// Factory 每个目的地一个客户端，按 URL 构造
type Factory func(rawURL string) (Client, error)

type HTTPClient struct {
	baseUrl    *url.URL
	httpClient *http.Client
}

func NewHTTPClient(rawURL string) (Client, error) {
	baseUrl, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 0, // 镜像建立可能非常久，由 ctx 控制
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, dbg, path string, params map[string]interface{}, result interface{}) error {
	endpoint := c.baseUrl.JoinPath(path).String()
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dbg", dbg)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		// 存储代理的错误体固定为 {"error": {"code": ..., "params": [...]}}
		var errResp struct {
			Error *BackendError `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != nil {
			if errResp.Error.Code == CodeUnimplemented {
				return &UnimplementedError{Op: path}
			}
			return errResp.Error
		}
		return fmt.Errorf("smapi error (status %d): %s", resp.StatusCode, string(raw))
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *HTTPClient) VDIAttach3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string, readWrite bool) error {
	return c.post(ctx, dbg, "/vdi/attach3", map[string]interface{}{
		"dp": dp, "sr": sr, "vdi": vdi, "vm": vmSlice, "read_write": readWrite,
	}, nil)
}

func (c *HTTPClient) VDIActivate3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string) error {
	return c.post(ctx, dbg, "/vdi/activate3", map[string]interface{}{
		"dp": dp, "sr": sr, "vdi": vdi, "vm": vmSlice,
	}, nil)
}

func (c *HTTPClient) DPDestroy(ctx context.Context, dbg, dp string, allowLeak bool) error {
	return c.post(ctx, dbg, "/dp/destroy", map[string]interface{}{
		"dp": dp, "allow_leak": allowLeak,
	}, nil)
}

func (c *HTTPClient) DataCopy(ctx context.Context, dbg, sr, vdi, vmSlice, destURL, destSR string, verifyDest bool) (string, error) {
	var result struct {
		Task string `json:"task"`
	}
	err := c.post(ctx, dbg, "/data/copy", map[string]interface{}{
		"sr": sr, "vdi": vdi, "vm": vmSlice, "url": destURL, "dest": destSR, "verify_dest": verifyDest,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Task, nil
}

func (c *HTTPClient) MirrorStart(ctx context.Context, dbg, sr, vdi, dp, mirrorVM, copyVM, destURL, destSR string, verifyDest bool) (string, error) {
	var result struct {
		Task string `json:"task"`
	}
	err := c.post(ctx, dbg, "/data/mirror/start", map[string]interface{}{
		"sr": sr, "vdi": vdi, "dp": dp, "mirror_vm": mirrorVM, "copy_vm": copyVM,
		"url": destURL, "dest": destSR, "verify_dest": verifyDest,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Task, nil
}

func (c *HTTPClient) MirrorStop(ctx context.Context, dbg, mirrorID string) error {
	return c.post(ctx, dbg, "/data/mirror/stop", map[string]interface{}{"id": mirrorID}, nil)
}

func (c *HTTPClient) MirrorStat(ctx context.Context, dbg, mirrorID string) (*Mirror, error) {
	var result Mirror
	if err := c.post(ctx, dbg, "/data/mirror/stat", map[string]interface{}{"id": mirrorID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) UpdateSnapshotInfoSrc(ctx context.Context, dbg, sr, vdi, destURL, destSR, destVDI string, snapshotPairs [][2]string, verifyDest bool) error {
	return c.post(ctx, dbg, "/sr/update_snapshot_info_src", map[string]interface{}{
		"sr": sr, "vdi": vdi, "url": destURL, "dest": destSR, "dest_vdi": destVDI,
		"snapshot_pairs": snapshotPairs, "verify_dest": verifyDest,
	}, nil)
}

func (c *HTTPClient) TaskStat(ctx context.Context, dbg, taskID string) (*Task, error) {
	var result Task
	if err := c.post(ctx, dbg, "/task/stat", map[string]interface{}{"id": taskID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) TaskDestroy(ctx context.Context, dbg, taskID string) error {
	return c.post(ctx, dbg, "/task/destroy", map[string]interface{}{"id": taskID}, nil)
}

// WaitForTask 轮询直到任务离开 pending 态
func (c *HTTPClient) WaitForTask(ctx context.Context, dbg, taskID string) (*Task, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		task, err := c.TaskStat(ctx, dbg, taskID)
		if err != nil {
			return nil, err
		}
		if task.State != TaskStatePending {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
