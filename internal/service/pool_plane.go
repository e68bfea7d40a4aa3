package service

import (
	"context"
	"fmt"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/log"
	"xensphere/pkg/sid"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PoolPlaneService 本池作为迁移目的地时对外暴露的管理面操作：
// 元数据导入、SR 扫描、VDI 查询/销毁、消息与 blob 接收、HA 标记恢复。
type PoolPlaneService interface {
	GetPool(ctx context.Context) (*v1.PoolDetail, error)
	GetHost(ctx context.Context, ref string) (*v1.HostDetail, error)
	GetSR(ctx context.Context, ref string) (*v1.SRDetail, error)
	GetNetwork(ctx context.Context, ref string) (*v1.NetworkDetail, error)
	ImportMetadata(ctx context.Context, req *v1.ImportMetadataRequest) (*v1.ImportMetadataResponseData, error)
	ScanSR(ctx context.Context, srRef string) error
	VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error)
	DestroyVDI(ctx context.Context, ref string) error
	DestroyVMByUUID(ctx context.Context, uuid string) error
	SetHaAlwaysRun(ctx context.Context, uuid string, value bool) error
	ReceiveMessage(ctx context.Context, req *v1.MessagePushRequest) error
	ReceiveBlob(ctx context.Context, req *v1.BlobPushRequest) error
	ReceiveRRD(ctx context.Context, vmUUID string) error
}

func NewPoolPlaneService(
	service *Service,
	conf *viper.Viper,
	vmRepo repository.VMRepository,
	vbdRepo repository.VBDRepository,
	vdiRepo repository.VDIRepository,
	srRepo repository.SRRepository,
	vifRepo repository.VIFRepository,
	networkRepo repository.NetworkRepository,
	gpuRepo repository.GPURepository,
	hostRepo repository.HostRepository,
	poolRepo repository.PoolRepository,
	messageRepo repository.MessageRepository,
	sid *sid.Sid,
	logger *log.Logger,
) PoolPlaneService {
	return &poolPlaneService{
		Service:     service,
		conf:        conf,
		vmRepo:      vmRepo,
		vbdRepo:     vbdRepo,
		vdiRepo:     vdiRepo,
		srRepo:      srRepo,
		vifRepo:     vifRepo,
		networkRepo: networkRepo,
		gpuRepo:     gpuRepo,
		hostRepo:    hostRepo,
		poolRepo:    poolRepo,
		messageRepo: messageRepo,
		idgen:       sid,
		logger:      logger,
	}
}

type poolPlaneService struct {
	*Service
	conf        *viper.Viper
	vmRepo      repository.VMRepository
	vbdRepo     repository.VBDRepository
	vdiRepo     repository.VDIRepository
	srRepo      repository.SRRepository
	vifRepo     repository.VIFRepository
	networkRepo repository.NetworkRepository
	gpuRepo     repository.GPURepository
	hostRepo    repository.HostRepository
	poolRepo    repository.PoolRepository
	messageRepo repository.MessageRepository
	idgen       *sid.Sid
	logger      *log.Logger
}

func (s *poolPlaneService) GetPool(ctx context.Context) (*v1.PoolDetail, error) {
	pl, err := s.poolRepo.GetCurrent(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if pl == nil {
		return nil, v1.ErrNotFound
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

func (s *poolPlaneService) GetHost(ctx context.Context, ref string) (*v1.HostDetail, error) {
	host, err := s.hostRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if host == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.HostDetail{
		Ref:              host.Ref,
		UUID:             host.UUID,
		Hostname:         host.Hostname,
		Address:          host.Address,
		Enabled:          host.Enabled == 1,
		PlatformVersion:  host.PlatformVersion,
		HardwarePlatform: host.HardwarePlatform,
		CPUCount:         host.CPUCount,
		CPUFeatures:      host.CPUFeatures,
		SuspendImageSR:   host.SuspendImageSR,
	}, nil
}

func (s *poolPlaneService) GetSR(ctx context.Context, ref string) (*v1.SRDetail, error) {
	sr, err := s.srRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
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

func (s *poolPlaneService) GetNetwork(ctx context.Context, ref string) (*v1.NetworkDetail, error) {
	network, err := s.networkRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if network == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.NetworkDetail{Ref: network.Ref, UUID: network.UUID, Bridge: network.Bridge}, nil
}

// ImportMetadata 跨池迁移的目的侧入口。dry_run 只做冲突探测。
func (s *poolPlaneService) ImportMetadata(ctx context.Context, req *v1.ImportMetadataRequest) (*v1.ImportMetadataResponseData, error) {
	// 冲突：同 UUID 的 VM（含快照）已存在
	var conflicts []string
	uuids := []string{req.Metadata.VM.UUID}
	for _, snapshot := range req.Metadata.Snapshots {
		uuids = append(uuids, snapshot.VM.UUID)
	}
	for _, uuid := range uuids {
		existing, err := s.vmRepo.GetByUUID(ctx, uuid)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		if existing != nil {
			conflicts = append(conflicts, uuid)
		}
	}
	if req.DryRun || len(conflicts) > 0 {
		return &v1.ImportMetadataResponseData{Conflicts: conflicts}, nil
	}

	if req.CheckCPU {
		host, err := s.hostRepo.GetByRef(ctx, req.Host)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		if host != nil && !cpuFeaturesSubset(req.Metadata.VM.CPUFeatures, host.CPUFeatures) {
			return nil, v1.NewMigrateError(v1.CodeVMMigrateFailed, req.Metadata.VM.UUID, req.Host,
				"VM CPU featureset is not compatible with the destination host")
		}
	}

	var vmRef string
	err := s.tm.Transaction(ctx, func(ctx context.Context) error {
		ref, err := s.importOneVM(ctx, &req.Metadata, "", req.Host)
		if err != nil {
			return err
		}
		vmRef = ref
		for i := range req.Metadata.Snapshots {
			if _, err := s.importOneVM(ctx, &req.Metadata.Snapshots[i], ref, req.Host); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v1.ImportMetadataResponseData{VM: vmRef, Conflicts: []string{}}, nil
}

func (s *poolPlaneService) importOneVM(ctx context.Context, metadata *v1.VMMetadata, snapshotOf, hostRef string) (string, error) {
	ref, err := s.idgen.GenRef()
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	isSnapshot := int8(0)
	if metadata.VM.IsSnapshot {
		isSnapshot = 1
	}
	ha := int8(0)
	if metadata.VM.HaAlwaysRun {
		ha = 1
	}
	vm := &model.VM{
		Ref:          ref,
		UUID:         metadata.VM.UUID,
		NameLabel:    metadata.VM.NameLabel,
		PowerState:   metadata.VM.PowerState,
		IsSnapshot:   isSnapshot,
		SnapshotOf:   snapshotOf,
		SnapshotTime: time.Unix(metadata.VM.SnapshotTime, 0),
		SuspendVDI:   metadata.VM.SuspendVDI,
		HaAlwaysRun:  ha,
		VCPUs:        metadata.VM.VCPUs,
		CPUFeatures:  metadata.VM.CPUFeatures,
		Platform:     encodeStringMap(metadata.VM.Platform),
		OtherConfig:  encodeStringMap(metadata.VM.OtherConfig),
		CreateTime:   time.Now(),
		UpdateTime:   time.Now(),
	}
	if err := s.vmRepo.Create(ctx, vm); err != nil {
		return "", v1.ErrInternalServerError
	}

	for _, record := range metadata.VBDs {
		vbdRef, err := s.idgen.GenRef()
		if err != nil {
			return "", v1.ErrInternalServerError
		}
		empty := int8(0)
		if record.Empty {
			empty = 1
		}
		bootable := int8(0)
		if record.Bootable {
			bootable = 1
		}
		vbd := &model.VBD{
			Ref:      vbdRef,
			UUID:     record.UUID,
			VMRef:    ref,
			VDIRef:   record.VDI,
			Mode:     record.Mode,
			Type:     record.Type,
			Empty:    empty,
			Device:   record.Device,
			Bootable: bootable,
		}
		if err := s.vbdRepo.Create(ctx, vbd); err != nil {
			return "", v1.ErrInternalServerError
		}
	}

	for _, record := range metadata.VIFs {
		vifRef, err := s.idgen.GenRef()
		if err != nil {
			return "", v1.ErrInternalServerError
		}
		vif := &model.VIF{
			Ref:        vifRef,
			UUID:       record.UUID,
			VMRef:      ref,
			NetworkRef: record.Network,
			MAC:        record.MAC,
			Device:     record.Device,
		}
		if err := s.vifRepo.Create(ctx, vif); err != nil {
			return "", v1.ErrInternalServerError
		}
	}

	for _, record := range metadata.VGPUs {
		vgpuRef, err := s.idgen.GenRef()
		if err != nil {
			return "", v1.ErrInternalServerError
		}
		vgpu := &model.VGPU{
			Ref:         vgpuRef,
			UUID:        record.UUID,
			VMRef:       ref,
			GPUGroupRef: record.GPUGroup,
			Device:      record.Device,
		}
		if err := s.gpuRepo.CreateVGPU(ctx, vgpu); err != nil {
			return "", v1.ErrInternalServerError
		}
	}

	for _, record := range metadata.VTPMs {
		vtpmRef, err := s.idgen.GenRef()
		if err != nil {
			return "", v1.ErrInternalServerError
		}
		if err := s.vmRepo.CreateVTPM(ctx, &model.VTPM{Ref: vtpmRef, UUID: record.UUID, VMRef: ref}); err != nil {
			return "", v1.ErrInternalServerError
		}
	}
	return ref, nil
}

// ScanSR 把存储面上新出现的盘登记进库。
// 存储面自身由同步器拉平，这里只校验 SR 存在并留痕。
func (s *poolPlaneService) ScanSR(ctx context.Context, srRef string) error {
	sr, err := s.srRepo.GetByRef(ctx, srRef)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if sr == nil {
		return v1.ErrNotFound
	}
	s.logger.WithContext(ctx).Info("sr scanned", zap.String("sr", srRef))
	return nil
}

func (s *poolPlaneService) VDIByLocation(ctx context.Context, srRef, location string) (*v1.VDIRecord, error) {
	vdis, err := s.vdiRepo.ListByLocation(ctx, location, srRef)
	if err != nil {
		return nil, v1.ErrInternalServerError
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

func (s *poolPlaneService) DestroyVDI(ctx context.Context, ref string) error {
	return s.vdiRepo.Delete(ctx, ref)
}

// DestroyVMByUUID 跨池回滚：源侧要求销毁半成品 VM
func (s *poolPlaneService) DestroyVMByUUID(ctx context.Context, uuid string) error {
	vm, err := s.vmRepo.GetByUUID(ctx, uuid)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if vm == nil {
		return nil
	}
	return s.tm.Transaction(ctx, func(ctx context.Context) error {
		if err := s.vbdRepo.DeleteByVM(ctx, vm.Ref); err != nil {
			return err
		}
		if err := s.vifRepo.DeleteByVM(ctx, vm.Ref); err != nil {
			return err
		}
		if err := s.gpuRepo.DeleteVGPUsByVM(ctx, vm.Ref); err != nil {
			return err
		}
		if err := s.vmRepo.DeleteVTPMsByVM(ctx, vm.Ref); err != nil {
			return err
		}
		return s.vmRepo.Delete(ctx, vm.Ref)
	})
}

func (s *poolPlaneService) SetHaAlwaysRun(ctx context.Context, uuid string, value bool) error {
	vm, err := s.vmRepo.GetByUUID(ctx, uuid)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if vm == nil {
		return v1.ErrNotFound
	}
	if value {
		vm.HaAlwaysRun = 1
	} else {
		vm.HaAlwaysRun = 0
	}
	vm.UpdateTime = time.Now()
	return s.vmRepo.Update(ctx, vm)
}

func (s *poolPlaneService) ReceiveMessage(ctx context.Context, req *v1.MessagePushRequest) error {
	ref, err := s.idgen.GenRef()
	if err != nil {
		return v1.ErrInternalServerError
	}
	uuid, err := s.idgen.GenString()
	if err != nil {
		return v1.ErrInternalServerError
	}
	return s.messageRepo.Create(ctx, &model.Message{
		Ref:        ref,
		UUID:       uuid,
		ObjUUID:    req.ObjUUID,
		Name:       req.Name,
		Priority:   req.Priority,
		Cls:        req.Cls,
		Body:       req.Body,
		CreateTime: time.Now(),
	})
}

func (s *poolPlaneService) ReceiveBlob(ctx context.Context, req *v1.BlobPushRequest) error {
	ref, err := s.idgen.GenRef()
	if err != nil {
		return v1.ErrInternalServerError
	}
	uuid, err := s.idgen.GenString()
	if err != nil {
		return v1.ErrInternalServerError
	}
	return s.messageRepo.CreateBlob(ctx, &model.Blob{
		Ref:      ref,
		UUID:     uuid,
		VMUUID:   req.VMUUID,
		Name:     req.Name,
		MimeType: req.MimeType,
		Content:  req.Content,
	})
}

// ReceiveRRD 指标存档的落地由 RRD 子系统完成，管理面只确认接收
func (s *poolPlaneService) ReceiveRRD(ctx context.Context, vmUUID string) error {
	if vmUUID == "" {
		return fmt.Errorf("vm_uuid is required")
	}
	s.logger.WithContext(ctx).Info("rrd archives received", zap.String("vm", vmUUID))
	return nil
}
