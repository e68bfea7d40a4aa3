package service

import (
	"context"
	"errors"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/pkg/smapi"
	"xensphere/pkg/xenops"

	"go.uber.org/zap"
)

// other_config 里允许跟随迁移的键
var vdiOtherConfigWhitelist = []string{"content_id", "base_mirror"}

// finalizeMigration 成功路径收尾。内存迁移已经完成，客户机在目的侧运行，
// 此后任何失败都就地恢复、只记日志，绝不向调用方抛错。
func (s *vmMigrateService) finalizeMigration(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, records []*MirrorRecord, vifMap map[string]string, opts *migrateOptions) {
	// 1. 指标存档转移
	if !dest.IntraPool {
		if err := dest.remote.TransferRRD(ctx, vm.UUID); err != nil {
			s.logger.WithContext(ctx).Warn("failed to transfer rrd archives", zap.Error(err), zap.String("vm", vm.UUID))
		}
	}

	// 2. 源侧网络拆除
	if err := s.detachSourceNetworks(ctx, vm); err != nil {
		s.logger.WithContext(ctx).Warn("failed to detach source networks", zap.Error(err), zap.String("vm", vm.Ref))
	}

	if !dest.IntraPool {
		// 3. 消息/blob 复制与 HA 标记恢复
		s.replicateMessagesAndBlobs(ctx, dest, vm)
		if vm.HaAlwaysRun == 1 {
			if err := dest.remote.SetHaAlwaysRun(ctx, vm.UUID, true); err != nil {
				s.logger.WithContext(ctx).Warn("failed to restore ha_always_run", zap.Error(err), zap.String("vm", vm.UUID))
			}
		}
		// 4. 通知目的侧完成 resident-on 更新与善后
		if err := dest.remote.PoolMigrateComplete(ctx, vm.UUID, dest.DestHostRef); err != nil {
			s.logger.WithContext(ctx).Warn("failed to notify destination of completion", zap.Error(err), zap.String("vm", vm.UUID))
		}
	} else {
		if err := s.PoolMigrateComplete(ctx, vm.Ref, dest.DestHostRef); err != nil {
			s.logger.WithContext(ctx).Warn("failed to run local migrate-complete", zap.Error(err), zap.String("vm", vm.Ref))
		}
	}

	if dest.IntraPool {
		// 5. 同池：把 VBD 和挂起镜像重定位到目的侧 VDI
		s.remapLocalDisks(ctx, vm, dest, records)
	} else if !opts.Copy {
		// 6. 跨池且非 copy：源对象整体销毁
		s.destroySourceVM(ctx, vm)
	}
}

// detachSourceNetworks 源侧 VIF 不再承载流量；这里只逐个记日志，不改动 VIF 记录
func (s *vmMigrateService) detachSourceNetworks(ctx context.Context, vm *model.VM) error {
	vifs, err := s.vifRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return err
	}
	for _, vif := range vifs {
		s.logger.WithContext(ctx).Info("detached source vif", zap.String("vif", vif.Ref), zap.String("vm", vm.Ref))
	}
	return nil
}

// remapLocalDisks 同池收尾：VBD->VDI、suspend_VDI 改指目的侧，
// 白名单 other_config 键带过去，目的宿主机没有 PBD 的 suspend_SR 清空
func (s *vmMigrateService) remapLocalDisks(ctx context.Context, vm *model.VM, dest *destDescriptor, records []*MirrorRecord) {
	byLocal := map[string]*MirrorRecord{}
	for _, record := range records {
		byLocal[record.LocalVDI] = record
	}

	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to list vbds for remap", zap.Error(err))
		return
	}
	for _, vbd := range vbds {
		record, ok := byLocal[vbd.VDIRef]
		if !ok || record.RemoteVDI == vbd.VDIRef {
			continue
		}
		// 白名单键拷到目的 VDI
		if src, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef); err == nil && src != nil {
			if dst, err := s.vdiRepo.GetByRef(ctx, record.RemoteVDI); err == nil && dst != nil {
				srcOC := decodeStringMap(src.OtherConfig)
				dstOC := decodeStringMap(dst.OtherConfig)
				for _, key := range vdiOtherConfigWhitelist {
					if val, ok := srcOC[key]; ok {
						dstOC[key] = val
					}
				}
				dst.OtherConfig = encodeStringMap(dstOC)
				if err := s.vdiRepo.Update(ctx, dst); err != nil {
					s.logger.WithContext(ctx).Warn("failed to copy vdi other_config", zap.Error(err))
				}
			}
		}
		vbd.VDIRef = record.RemoteVDI
		if err := s.vbdRepo.Update(ctx, vbd); err != nil {
			s.logger.WithContext(ctx).Warn("failed to remap vbd", zap.Error(err), zap.String("vbd", vbd.Ref))
		}
	}

	// resident-on 此前已经更新过，必须在新鲜记录上改
	fresh, err := s.vmRepo.GetByRef(ctx, vm.Ref)
	if err != nil || fresh == nil {
		s.logger.WithContext(ctx).Warn("failed to reload vm for remap", zap.Error(err), zap.String("vm", vm.Ref))
		return
	}
	if fresh.SuspendVDI != "" {
		if record, ok := byLocal[fresh.SuspendVDI]; ok {
			fresh.SuspendVDI = record.RemoteVDI
		}
	}
	// 目的宿主机没有通往 suspend_SR 的 PBD 时清掉该字段
	if fresh.SuspendSR != "" {
		pbd, err := s.pbdRepo.GetBySRAndHost(ctx, fresh.SuspendSR, dest.DestHostRef)
		if err == nil && pbd == nil {
			fresh.SuspendSR = ""
		}
	}
	if err := s.vmRepo.Update(ctx, fresh); err != nil {
		s.logger.WithContext(ctx).Warn("failed to update vm after remap", zap.Error(err), zap.String("vm", fresh.Ref))
	}
}

// destroySourceVM 跨池非 copy 收尾：VBD -> VM(含快照) -> VTPM 依次销毁
func (s *vmMigrateService) destroySourceVM(ctx context.Context, vm *model.VM) {
	snapshots, err := s.vmRepo.ListSnapshots(ctx, vm.Ref)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to list snapshots for destroy", zap.Error(err))
		snapshots = nil
	}
	family := append([]*model.VM{vm}, snapshots...)
	for _, member := range family {
		if err := s.vbdRepo.DeleteByVM(ctx, member.Ref); err != nil {
			s.logger.WithContext(ctx).Warn("failed to destroy source vbds", zap.Error(err), zap.String("vm", member.Ref))
		}
		if err := s.vifRepo.DeleteByVM(ctx, member.Ref); err != nil {
			s.logger.WithContext(ctx).Warn("failed to destroy source vifs", zap.Error(err), zap.String("vm", member.Ref))
		}
		if err := s.gpuRepo.DeleteVGPUsByVM(ctx, member.Ref); err != nil {
			s.logger.WithContext(ctx).Warn("failed to destroy source vgpus", zap.Error(err), zap.String("vm", member.Ref))
		}
	}
	for _, member := range family {
		if err := s.vmRepo.Delete(ctx, member.Ref); err != nil {
			s.logger.WithContext(ctx).Warn("failed to destroy source vm", zap.Error(err), zap.String("vm", member.Ref))
		}
	}
	for _, member := range family {
		if err := s.vmRepo.DeleteVTPMsByVM(ctx, member.Ref); err != nil {
			s.logger.WithContext(ctx).Warn("failed to destroy source vtpms", zap.Error(err), zap.String("vm", member.Ref))
		}
	}
}

// rollbackMigrate 失败路径。并发闸门之后的任何异常都走这里：
// 逐项尽力清理（失败只记日志），最后返回翻译后的错误。
func (s *vmMigrateService) rollbackMigrate(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, records []*MirrorRecord, cause error) error {
	s.logger.WithContext(ctx).Error("migration failed, rolling back", zap.Error(cause), zap.String("vm", vm.Ref))

	// 事件仍处于屏蔽状态：源 VM 若被迁移置成 Suspended，就地关掉
	_ = s.suppressor.WithSuppressed(vm.UUID, func() error {
		xc, err := s.xenopsNew(s.conf.GetString("agents.xenops_url"))
		if err != nil {
			return nil
		}
		state, err := xc.VMStat(ctx, s.dbg(vm), vm.UUID)
		if err == nil && state != nil && state.PowerState == model.PowerStateSuspended {
			if err := xc.VMShutdown(ctx, s.dbg(vm), vm.UUID); err != nil {
				s.logger.WithContext(ctx).Warn("failed to shut down suspended source vm", zap.Error(err), zap.String("vm", vm.UUID))
			}
		}
		return nil
	})

	// 已建立的镜像与目的侧盘拆掉
	smc, smErr := s.smapiNew(s.conf.GetString("agents.smapi_url"))
	for _, record := range records {
		if smErr == nil && record.MirrorID != "" {
			if err := smc.MirrorStop(ctx, s.dbg(vm), record.MirrorID); err != nil {
				s.logger.WithContext(ctx).Warn("failed to stop mirror during rollback", zap.Error(err), zap.String("mirror", record.MirrorID))
			}
		}
		if smErr == nil && record.Datapath != "" {
			if err := smc.DPDestroy(ctx, s.dbg(vm), record.Datapath, false); err != nil {
				s.logger.WithContext(ctx).Warn("failed to destroy datapath during rollback", zap.Error(err), zap.String("dp", record.Datapath))
			}
		}
		if record.RemoteVDI != "" {
			if err := dest.plane.DestroyVDI(ctx, record.RemoteVDI); err != nil {
				s.logger.WithContext(ctx).Warn("failed to destroy remote vdi during rollback", zap.Error(err), zap.String("vdi", record.RemoteVDI))
			}
		}
	}

	// 跨池：目的侧可能已经有同 UUID 的半成品 VM（含快照），销毁
	if !dest.IntraPool && dest.remote != nil {
		uuids := []string{vm.UUID}
		if snapshots, err := s.vmRepo.ListSnapshots(ctx, vm.Ref); err == nil {
			for _, snapshot := range snapshots {
				uuids = append(uuids, snapshot.UUID)
			}
		}
		for _, uuid := range uuids {
			if err := dest.remote.DestroyVMByUUID(ctx, uuid); err != nil {
				s.logger.WithContext(ctx).Warn("failed to destroy stale destination vm", zap.Error(err), zap.String("uuid", uuid))
			}
		}
	}

	// mirror_failed 的记录压过现场异常
	if fresh, err := s.taskRepo.GetByRef(ctx, task.Ref); err == nil && fresh != nil {
		if failedUUID := decodeStringMap(fresh.OtherConfig)[model.OtherConfigMirrorFailed]; failedUUID != "" {
			if vdi, err := s.vdiRepo.GetByUUID(ctx, failedUUID); err == nil && vdi != nil {
				return v1.NewMigrateError(v1.CodeMirrorFailed, vdi.Ref)
			}
			return v1.NewMigrateError(v1.CodeMirrorFailed, failedUUID)
		}
	}

	return s.translateMigrateError(task, cause)
}

// translateMigrateError 对外错误分层：存储后端错误以原 code 透出，
// 代理侧用户取消折算成任务取消，其余保持迁移错误或归入 internal_error
func (s *vmMigrateService) translateMigrateError(task *model.Task, cause error) error {
	var me *v1.MigrateError
	if errors.As(cause, &me) {
		return me
	}
	var ue *smapi.UnimplementedError
	if errors.As(cause, &ue) {
		return v1.NewMigrateError(v1.CodeUnimplementedInSMBackend, ue.Op)
	}
	var be *smapi.BackendError
	if errors.As(cause, &be) {
		return v1.NewMigrateError(be.Code, be.Params...)
	}
	if xenops.IsUserCancelled(cause) || smapi.IsCancelled(cause) {
		return v1.NewMigrateError(v1.CodeTaskCancelled, task.Ref)
	}
	var apiErr *v1.Error
	if errors.As(cause, &apiErr) {
		return apiErr
	}
	return v1.NewMigrateError(v1.CodeInternalError, cause.Error())
}
