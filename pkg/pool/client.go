package pool

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

	v1 "xensphere/api/v1"
)

// Client 远端资源池管理面客户端。跨池迁移时源侧通过它操作目的池：
// 元数据导入、VDI 查询/清理、迁移完成回调、消息与 blob 复制。
type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	session    string // 握手携带的 session_id，作为 Bearer token
}

// Factory 按 (master URL, session, verifyCert) 构造客户端
type Factory func(masterURL, session string, verifyCert bool) (*Client, error)

func NewClient(masterURL, session string, verifyCert bool) (*Client, error) {
	baseUrl, err := url.Parse(masterURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifyCert},
			},
		},
		session: session,
	}, nil
}

func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api/v1", path).String()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact remote pool: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// 对端包络：迁移错误以 code=CodeMigrateError 携带错误码与参数，原样还原
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("remote pool response (status %d): %s", resp.StatusCode, string(raw))
	}
	if envelope.Code == v1.CodeMigrateError {
		var params []string
		_ = json.Unmarshal(envelope.Data, &params)
		return v1.NewMigrateError(envelope.Message, params...)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("remote pool error (code %d): %s", envelope.Code, envelope.Message)
	}
	if result != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, result)
	}
	return nil
}

// GetPool 目的池单例信息
func (c *Client) GetPool(ctx context.Context) (*v1.PoolDetail, error) {
	var detail v1.PoolDetail
	if err := c.request(ctx, http.MethodGet, "/pools/current", nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) GetHost(ctx context.Context, ref string) (*v1.HostDetail, error) {
	var detail v1.HostDetail
	if err := c.request(ctx, http.MethodGet, "/hosts/"+url.PathEscape(ref), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) GetSR(ctx context.Context, ref string) (*v1.SRDetail, error) {
	var detail v1.SRDetail
	if err := c.request(ctx, http.MethodGet, "/srs/"+url.PathEscape(ref), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) GetNetwork(ctx context.Context, ref string) (*v1.NetworkDetail, error) {
	var detail v1.NetworkDetail
	if err := c.request(ctx, http.MethodGet, "/networks/"+url.PathEscape(ref), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ImportMetadata 目的侧元数据导入；dry_run 时只返回冲突列表
func (c *Client) ImportMetadata(ctx context.Context, req *v1.ImportMetadataRequest) (*v1.ImportMetadataResponseData, error) {
	var data v1.ImportMetadataResponseData
	if err := c.request(ctx, http.MethodPost, "/vms/import-metadata", req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ScanSR 让目的管理面看到存储面新产生的 VDI
func (c *Client) ScanSR(ctx context.Context, srRef string) error {
	return c.request(ctx, http.MethodPost, "/srs/scan", &v1.SRScanRequest{SR: srRef}, nil)
}

// VDIByLocation 按 (location, SR) 查询目的侧 VDI 引用
func (c *Client) VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error) {
	var record v1.VDIRecord
	path := fmt.Sprintf("/vdis/by-location?sr=%s&location=%s", url.QueryEscape(srRef), url.QueryEscape(location))
	if err := c.request(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) DestroyVDI(ctx context.Context, vdiRef string) error {
	return c.request(ctx, http.MethodPost, "/vdis/destroy", &v1.VDIDestroyRequest{VDI: vdiRef}, nil)
}

func (c *Client) DestroyVMByUUID(ctx context.Context, uuid string) error {
	return c.request(ctx, http.MethodPost, "/vms/destroy-by-uuid", &v1.VMDestroyByUUIDRequest{UUID: uuid}, nil)
}

func (c *Client) PoolMigrateComplete(ctx context.Context, vmUUID, hostRef string) error {
	return c.request(ctx, http.MethodPost, "/vms/pool-migrate-complete", &v1.PoolMigrateCompleteRequest{VM: vmUUID, Host: hostRef}, nil)
}

func (c *Client) PushMessage(ctx context.Context, req *v1.MessagePushRequest) error {
	return c.request(ctx, http.MethodPost, "/messages", req, nil)
}

func (c *Client) PushBlob(ctx context.Context, req *v1.BlobPushRequest) error {
	return c.request(ctx, http.MethodPost, "/blobs", req, nil)
}

func (c *Client) SetHaAlwaysRun(ctx context.Context, vmUUID string, value bool) error {
	return c.request(ctx, http.MethodPost, "/vms/set-ha-always-run", &v1.VMSetHaAlwaysRunRequest{UUID: vmUUID, Value: value}, nil)
}

// TransferRRD 将 VM 的指标存档推到目的池
func (c *Client) TransferRRD(ctx context.Context, vmUUID string) error {
	return c.request(ctx, http.MethodPost, "/rrds/transfer", map[string]string{"vm_uuid": vmUUID}, nil)
}
