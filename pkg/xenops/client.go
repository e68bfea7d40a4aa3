package xenops

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

// VMState 虚拟机在控制代理侧的运行状态
type VMState struct {
	PowerState string `json:"power_state"`
	Domid      int    `json:"domid"`
}

// TaskState 控制代理任务状态
type TaskState struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
	Cancelled bool   `json:"cancelled"` // 用户主动取消
	Error     *Error `json:"error,omitempty"`
}

// VMInfo 列表项：UUID + 运行状态
type VMInfo struct {
	UUID       string `json:"uuid"`
	PowerState string `json:"power_state"`
	Domid      int    `json:"domid"`
}

// Client 虚拟机控制代理（xenops）客户端。内存迁移和域生命周期走这里。
type Client interface {
	VMMigrate(ctx context.Context, dbg, vmUUID string, vdiMap, vifMap, vgpuMap map[string]string, destURL string, compress, verifyDest bool) (string, error)
	VMList(ctx context.Context, dbg string) ([]VMInfo, error)
	VMStat(ctx context.Context, dbg, vmUUID string) (*VMState, error)
	VMShutdown(ctx context.Context, dbg, vmUUID string) error
	VMRemoveCache(ctx context.Context, dbg, vmUUID string) error
	VBDEject(ctx context.Context, dbg, vmUUID, device string) error
	TaskStat(ctx context.Context, dbg, taskID string) (*TaskState, error)
	SyncWithTask(ctx context.Context, dbg, taskID string) error
}

// Factory 按 URL 构造客户端
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
			Timeout: 0, // 内存迁移耗时由 ctx 控制
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
		var errResp struct {
			Error *Error `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != nil {
			return errResp.Error
		}
		return fmt.Errorf("xenops error (status %d): %s", resp.StatusCode, string(raw))
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *HTTPClient) VMMigrate(ctx context.Context, dbg, vmUUID string, vdiMap, vifMap, vgpuMap map[string]string, destURL string, compress, verifyDest bool) (string, error) {
	var result struct {
		Task string `json:"task"`
	}
	err := c.post(ctx, dbg, "/vm/migrate", map[string]interface{}{
		"vm": vmUUID, "vdi_map": vdiMap, "vif_map": vifMap, "vgpu_map": vgpuMap,
		"url": destURL, "compress": compress, "verify_dest": verifyDest,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Task, nil
}

func (c *HTTPClient) VMList(ctx context.Context, dbg string) ([]VMInfo, error) {
	var result []VMInfo
	if err := c.post(ctx, dbg, "/vm/list", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) VMStat(ctx context.Context, dbg, vmUUID string) (*VMState, error) {
	var result VMState
	if err := c.post(ctx, dbg, "/vm/stat", map[string]interface{}{"vm": vmUUID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) VMShutdown(ctx context.Context, dbg, vmUUID string) error {
	return c.post(ctx, dbg, "/vm/shutdown", map[string]interface{}{"vm": vmUUID}, nil)
}

func (c *HTTPClient) VMRemoveCache(ctx context.Context, dbg, vmUUID string) error {
	return c.post(ctx, dbg, "/vm/remove", map[string]interface{}{"vm": vmUUID}, nil)
}

func (c *HTTPClient) VBDEject(ctx context.Context, dbg, vmUUID, device string) error {
	return c.post(ctx, dbg, "/vbd/eject", map[string]interface{}{"vm": vmUUID, "device": device}, nil)
}

func (c *HTTPClient) TaskStat(ctx context.Context, dbg, taskID string) (*TaskState, error) {
	var result TaskState
	if err := c.post(ctx, dbg, "/task/stat", map[string]interface{}{"id": taskID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncWithTask 轮询任务直到完成；失败时返回代理侧的类型化错误
func (c *HTTPClient) SyncWithTask(ctx context.Context, dbg, taskID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		task, err := c.TaskStat(ctx, dbg, taskID)
		if err != nil {
			return err
		}
		if task.Completed {
			if task.Error != nil {
				return task.Error
			}
			return nil
		}
		if task.Cancelled {
			return &Error{Kind: KindCancelled, Msg: taskID, UserCancelled: true}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
