package service

import (
	"context"
	"errors"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"go.uber.org/zap"
)

// vGPU 设备标签；SR-IOV VF 的第二条映射带 "vf:" 前缀
const vgpuVFPrefix = "vf:"

// errVGPUMapping vGPU 在迁移途中丢了 pGPU（典型原因是客户机关机），
// 对外统一翻译成 vm_migrate_failed
var errVGPUMapping = errors.New("VGPU_mapping")

// inferVIFMap 补全 VIF->网络映射：显式条目优先，未映射的 VIF
// 找一块 MAC 相同且已映射的 VIF 继承其网络，找不到报 vif_not_in_map
func (s *vmMigrateService) inferVIFMap(ctx context.Context, vm *model.VM, vifMap map[string]string) (map[string]string, error) {
	vifs, err := s.vifRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to list vifs", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	effective := make(map[string]string, len(vifs))
	for ref, network := range vifMap {
		effective[ref] = network
	}

	byRef := make(map[string]*model.VIF, len(vifs))
	for _, vif := range vifs {
		byRef[vif.Ref] = vif
	}

	for _, vif := range vifs {
		if effective[vif.Ref] != "" {
			continue
		}
		inherited := ""
		for mappedRef, network := range effective {
			mapped := byRef[mappedRef]
			if mapped != nil && mapped.MAC == vif.MAC {
				inherited = network
				break
			}
		}
		if inherited == "" {
			return nil, v1.NewMigrateError(v1.CodeVifNotInMap, vif.Ref)
		}
		effective[vif.Ref] = inherited
	}
	return effective, nil
}

// completeVDIMap 给快照盘和挂起镜像盘补全落点：
//  1. 盘是某块已映射盘的快照 -> 继承映射
//  2. 挂起镜像盘 -> 目的池挂起镜像 SR -> 目的宿主机挂起镜像 SR -> 目的池默认 SR
//  3. 其余 -> 目的池默认 SR
//  4. 都没有 -> vdi_not_in_map
func (s *vmMigrateService) completeVDIMap(ctx context.Context, vm *model.VM, dest *destDescriptor, vdiMap map[string]string) (map[string]string, error) {
	effective := map[string]string{}
	for ref, sr := range vdiMap {
		effective[ref] = sr
	}

	destPool, err := dest.plane.PoolInfo(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to get destination pool", zap.Error(err))
		return nil, v1.NewMigrateError(v1.CodeCannotContactHost, dest.RemoteMasterIP)
	}
	destHost, err := dest.plane.HostInfo(ctx, dest.DestHostRef)
	if err != nil {
		return nil, v1.NewMigrateError(v1.CodeCannotContactHost, dest.DestHostRef)
	}

	fill := func(vdiRef string, isSuspend bool) error {
		if effective[vdiRef] != "" {
			return nil
		}
		vdi, err := s.vdiRepo.GetByRef(ctx, vdiRef)
		if err != nil {
			return v1.ErrInternalServerError
		}
		if vdi != nil && vdi.SnapshotOf != "" && effective[vdi.SnapshotOf] != "" {
			effective[vdiRef] = effective[vdi.SnapshotOf]
			return nil
		}
		if isSuspend {
			switch {
			case destPool.SuspendImageSR != "":
				effective[vdiRef] = destPool.SuspendImageSR
				return nil
			case destHost.SuspendImageSR != "":
				effective[vdiRef] = destHost.SuspendImageSR
				return nil
			}
		}
		if destPool.DefaultSR != "" {
			effective[vdiRef] = destPool.DefaultSR
			return nil
		}
		return v1.NewMigrateError(v1.CodeVdiNotInMap, vdiRef)
	}

	// 快照 VM 的盘与挂起镜像
	snapshots, err := s.vmRepo.ListSnapshots(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	family := append([]*model.VM{vm}, snapshots...)
	for _, member := range family {
		vbds, err := s.vbdRepo.ListByVM(ctx, member.Ref)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		for _, vbd := range vbds {
			if vbd.Type == model.VBDTypeCD || vbd.Empty == 1 {
				continue
			}
			if member.IsSnapshot == 1 {
				if err := fill(vbd.VDIRef, false); err != nil {
					return nil, err
				}
			}
		}
		if member.PowerState == model.PowerStateSuspended && member.SuspendVDI != "" {
			if err := fill(member.SuspendVDI, true); err != nil {
				return nil, err
			}
		}
	}
	return effective, nil
}

// vgpuPCIMap 按 vGPU 生成 (设备标签, PCI 地址) 映射。
// 读 scheduled_to_be_resident_on：调度发生在迁移之前，resident_on 此刻还没更新。
// 解析失败统一上抛 VGPU_mapping，调用方翻译成 vm_migrate_failed。
func (s *vmMigrateService) vgpuPCIMap(ctx context.Context, vmRef string) (map[string]string, error) {
	vgpus, err := s.gpuRepo.ListVGPUsByVM(ctx, vmRef)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to list vgpus", zap.Error(err))
		return nil, errVGPUMapping
	}
	result := map[string]string{}
	for _, vgpu := range vgpus {
		if vgpu.ScheduledPGPU == "" {
			return nil, errVGPUMapping
		}
		pgpu, err := s.gpuRepo.GetPGPUByRef(ctx, vgpu.ScheduledPGPU)
		if err != nil || pgpu == nil {
			// 客户机中途关机会让 vGPU 丢掉 pGPU，整个映射作废
			return nil, errVGPUMapping
		}
		result[vgpu.Device] = pgpu.PCIAddress
		if vgpu.ExtraPCIAddress != "" {
			result[vgpuVFPrefix+vgpu.Device] = vgpu.ExtraPCIAddress
		}
	}
	return result, nil
}

// translateVGPUMappingError VGPU_mapping 对外的唯一形态
func translateVGPUMappingError(vmRef string) error {
	return v1.NewMigrateError(v1.CodeVMMigrateFailed, vmRef, "changed power state during migration")
}
