package service

import (
	"context"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/pkg/xenops"

	"go.uber.org/zap"
)

// memoryMigrateAttempts 瞬时故障下的总尝试次数
const memoryMigrateAttempts = 3

// memoryMigrate 通过控制代理做内存态迁移。
// 整个调用处于源队列事件屏蔽之下；客户机迁移途中重启表现为
// 非用户取消的 Cancelled 或 Internal_error("End_of_file")，这两种情况重试。
func (s *vmMigrateService) memoryMigrate(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, vdiMap, vifMap, vgpuMap map[string]string, compress bool) error {
	xc, err := s.xenopsNew(s.conf.GetString("agents.xenops_url"))
	if err != nil {
		return v1.ErrInternalServerError
	}
	dbg := s.dbg(vm)

	return s.suppressor.WithSuppressed(vm.UUID, func() error {
		var lastErr error
		for attempt := 1; attempt <= memoryMigrateAttempts; attempt++ {
			agentTask, err := xc.VMMigrate(ctx, dbg, vm.UUID, vdiMap, vifMap, vgpuMap, dest.XenopsURL, compress, dest.IntraPool)
			if err == nil {
				err = xc.SyncWithTask(ctx, dbg, agentTask)
			}
			if err == nil {
				// 成功后丢掉源侧缓存的域元数据
				if rmErr := xc.VMRemoveCache(ctx, dbg, vm.UUID); rmErr != nil {
					s.logger.WithContext(ctx).Warn("failed to remove cached metadata", zap.Error(rmErr), zap.String("vm", vm.UUID))
				}
				return nil
			}
			if xenops.IsUserCancelled(err) {
				return err
			}
			if !xenops.IsTransientReboot(err) {
				return err
			}
			lastErr = err
			s.logger.WithContext(ctx).Warn("guest rebooted during memory migration, retrying",
				zap.Error(err), zap.String("vm", vm.UUID), zap.Int("attempt", attempt))
		}
		return lastErr
	})
}

// buildXenopsMaps 组装控制代理需要的三张映射：
// 盘定位符 -> 目的定位符；VIF 设备 -> 目的网桥；vGPU 设备 -> PCI 地址
func (s *vmMigrateService) buildXenopsMaps(ctx context.Context, vm *model.VM, dest *destDescriptor, records []*MirrorRecord, vifMap map[string]string) (map[string]string, map[string]string, error) {
	vdiLocators := map[string]string{}
	for _, record := range records {
		vdiLocators[record.LocalXenopsLocator] = record.RemoteXenopsLocator
	}

	vifBridges := map[string]string{}
	vifs, err := s.vifRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return nil, nil, v1.ErrInternalServerError
	}
	for _, vif := range vifs {
		networkRef := vifMap[vif.Ref]
		if networkRef == "" {
			networkRef = vif.NetworkRef
		}
		bridge, err := dest.plane.NetworkBridge(ctx, networkRef)
		if err != nil {
			return nil, nil, v1.NewMigrateError(v1.CodeVifNotInMap, vif.Ref)
		}
		vifBridges[vif.Device] = bridge
	}
	return vdiLocators, vifBridges, nil
}
