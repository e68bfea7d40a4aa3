package service

import (
	"context"
	"fmt"
	"net/url"

	v1 "xensphere/api/v1"
	"xensphere/pkg/pool"

	"go.uber.org/zap"
)

// 目的地握手 map 的必备键
const (
	destKeyMaster  = "master"
	destKeyXenops  = "xenops"
	destKeySM      = "SM"
	destKeyHost    = "host"
	destKeySession = "session_id"
)

// destDescriptor 解析后的目的地描述
type destDescriptor struct {
	MasterURL      string
	XenopsURL      string
	SMURL          string
	SessionID      string
	DestHostRef    string
	RemoteIP       string // xenops URL 的主机部分
	RemoteMasterIP string
	IntraPool      bool

	// 目的管理面句柄：同池走本地库，跨池走远端客户端
	plane destPlane
	// 跨池时的远端池客户端（元数据导入、消息/blob 复制、回滚清理）
	remote *pool.Client
}

// resolveMigrateReceive 解析目的地握手信息并分类同池/跨池。
// 纯解析+查询，不写库。
func (s *vmMigrateService) resolveMigrateReceive(ctx context.Context, dest map[string]string) (*destDescriptor, error) {
	for _, key := range []string{destKeyMaster, destKeyXenops, destKeySM, destKeyHost, destKeySession} {
		if dest[key] == "" {
			return nil, v1.NewMigrateError(v1.CodeInternalError, fmt.Sprintf("destination lacks key %s", key))
		}
	}

	masterURL, err := url.Parse(dest[destKeyMaster])
	if err != nil || masterURL.Host == "" {
		return nil, v1.NewMigrateError(v1.CodeInternalError, fmt.Sprintf("malformed master url: %s", dest[destKeyMaster]))
	}
	xenopsURL, err := url.Parse(dest[destKeyXenops])
	if err != nil || xenopsURL.Host == "" {
		return nil, v1.NewMigrateError(v1.CodeInternalError, fmt.Sprintf("malformed xenops url: %s", dest[destKeyXenops]))
	}
	smURL, err := url.Parse(dest[destKeySM])
	if err != nil || smURL.Host == "" {
		return nil, v1.NewMigrateError(v1.CodeInternalError, fmt.Sprintf("malformed sm url: %s", dest[destKeySM]))
	}

	// 全局策略可把管理面与控制面 URL 升级成 TLS
	if s.conf.GetBool("migration.force_tls") {
		masterURL.Scheme = "https"
		xenopsURL.Scheme = "https"
	}

	// SM URL 的主机部分是本池任一宿主机（按 Address/Hostname 匹配）时强制明文，
	// 避免环回 TLS 握手依赖自身证书链；不区分是否为源宿主机本身
	if s.isLocalAddress(ctx, smURL.Hostname()) {
		smURL.Scheme = "http"
	}

	d := &destDescriptor{
		MasterURL:      masterURL.String(),
		XenopsURL:      xenopsURL.String(),
		SMURL:          smURL.String(),
		SessionID:      dest[destKeySession],
		DestHostRef:    dest[destKeyHost],
		RemoteIP:       xenopsURL.Hostname(),
		RemoteMasterIP: masterURL.Hostname(),
	}

	// 目的宿主机引用能在本地库解析出来，就是同池迁移
	host, err := s.hostRepo.GetByRef(ctx, d.DestHostRef)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to resolve destination host", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if host != nil {
		d.IntraPool = true
		d.plane = &localPlane{s: s}
		return d, nil
	}

	// 跨池：引导 RPC 关闭证书校验（跨池互信在握手层完成）
	remote, err := s.poolNew(d.MasterURL, d.SessionID, false)
	if err != nil {
		return nil, v1.NewMigrateError(v1.CodeCannotContactHost, d.RemoteMasterIP)
	}
	d.remote = remote
	d.plane = &remotePlane{client: remote}
	return d, nil
}

// isLocalAddress 判断一个主机名/IP 是否就是本池某台宿主机
func (s *vmMigrateService) isLocalAddress(ctx context.Context, hostname string) bool {
	hosts, err := s.hostRepo.List(ctx)
	if err != nil {
		return false
	}
	for _, h := range hosts {
		if h.Address != "" && h.Address == hostname {
			return true
		}
		if h.Hostname == hostname {
			return true
		}
	}
	return false
}

// destPlane 目的管理面需要的操作集合，同池/跨池各有实现
type destPlane interface {
	PoolInfo(ctx context.Context) (*v1.PoolDetail, error)
	HostInfo(ctx context.Context, ref string) (*v1.HostDetail, error)
	SRInfo(ctx context.Context, ref string) (*v1.SRDetail, error)
	ScanSR(ctx context.Context, ref string) error
	VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error)
	DestroyVDI(ctx context.Context, ref string) error
	NetworkBridge(ctx context.Context, ref string) (string, error)
}

// localPlane 同池：直接查本地库
type localPlane struct {
	s *vmMigrateService
}

func (p *localPlane) PoolInfo(ctx context.Context) (*v1.PoolDetail, error) {
	pl, err := p.s.poolRepo.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, fmt.Errorf("pool record missing")
	}
	return &v1.PoolDetail{
		Ref:             pl.Ref,
		UUID:            pl.UUID,
		Master:          pl.MasterRef,
		DefaultSR:       pl.DefaultSR,
		SuspendImageSR:  pl.SuspendImageSR,
		HaEnabled:       pl.HaEnabled == 1,
		CompressDefault: pl.MigrationCompression == 1,
	}, nil
}

func (p *localPlane) HostInfo(ctx context.Context, ref string) (*v1.HostDetail, error) {
	h, err := p.s.hostRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.HostDetail{
		Ref:              h.Ref,
		UUID:             h.UUID,
		Hostname:         h.Hostname,
		Address:          h.Address,
		Enabled:          h.Enabled == 1,
		PlatformVersion:  h.PlatformVersion,
		HardwarePlatform: h.HardwarePlatform,
		CPUCount:         h.CPUCount,
		CPUFeatures:      h.CPUFeatures,
		SuspendImageSR:   h.SuspendImageSR,
	}, nil
}

func (p *localPlane) SRInfo(ctx context.Context, ref string) (*v1.SRDetail, error) {
	sr, err := p.s.srRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.SRDetail{
		Ref:          sr.Ref,
		UUID:         sr.UUID,
		Type:         sr.Type,
		Shared:       sr.Shared == 1,
		Capabilities: decodeStringSlice(sr.Capabilities),
	}, nil
}

func (p *localPlane) ScanSR(ctx context.Context, ref string) error {
	// 本地库与存储面由同步器保持一致，这里无需额外动作
	return nil
}

func (p *localPlane) VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error) {
	vdis, err := p.s.vdiRepo.ListByLocation(ctx, location, srRef)
	if err != nil {
		return nil, err
	}
	switch len(vdis) {
	case 0:
		return nil, v1.NewMigrateError(v1.CodeVdiLocationMissing, srRef, location)
	case 1:
		vdi := vdis[0]
		return &v1.VDIRecord{
			Ref:         vdi.Ref,
			UUID:        vdi.UUID,
			SR:          vdi.SRRef,
			Location:    vdi.Location,
			VirtualSize: vdi.VirtualSize,
			OnBoot:      vdi.OnBoot,
			CbtEnabled:  vdi.CbtEnabled == 1,
		}, nil
	default:
		return nil, v1.NewMigrateError(v1.CodeLocationNotUnique, srRef, location)
	}
}

func (p *localPlane) DestroyVDI(ctx context.Context, ref string) error {
	return p.s.vdiRepo.Delete(ctx, ref)
}

func (p *localPlane) NetworkBridge(ctx context.Context, ref string) (string, error) {
	network, err := p.s.networkRepo.GetByRef(ctx, ref)
	if err != nil {
		return "", err
	}
	if network == nil {
		return "", v1.ErrNotFound
	}
	return network.Bridge, nil
}

// remotePlane 跨池：走远端管理面 API
type remotePlane struct {
	client *pool.Client
}

func (p *remotePlane) PoolInfo(ctx context.Context) (*v1.PoolDetail, error) {
	return p.client.GetPool(ctx)
}

func (p *remotePlane) HostInfo(ctx context.Context, ref string) (*v1.HostDetail, error) {
	return p.client.GetHost(ctx, ref)
}

func (p *remotePlane) SRInfo(ctx context.Context, ref string) (*v1.SRDetail, error) {
	return p.client.GetSR(ctx, ref)
}

func (p *remotePlane) ScanSR(ctx context.Context, ref string) error {
	return p.client.ScanSR(ctx, ref)
}

func (p *remotePlane) VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error) {
	return p.client.VDIByLocation(ctx, srRef, location)
}

func (p *remotePlane) DestroyVDI(ctx context.Context, ref string) error {
	return p.client.DestroyVDI(ctx, ref)
}

func (p *remotePlane) NetworkBridge(ctx context.Context, ref string) (string, error) {
	network, err := p.client.GetNetwork(ctx, ref)
	if err != nil {
		return "", err
	}
	return network.Bridge, nil
}
