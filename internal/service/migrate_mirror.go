package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/pkg/smapi"

	"go.uber.org/zap"
)

type vdiKind int

const (
	kindLeaf vdiKind = iota
	kindSnapshot
	kindSuspend
)

// vdiTransfer 单块盘的搬运计划
type vdiTransfer struct {
	vdi    *model.VDI
	srcSR  *model.SR
	kind   vdiKind
	mirror bool   // true: 在线镜像直到切换；false: 一次性复制
	destSR string // 目的 SR 引用
	skip   bool   // 共享 SR 下目的侧已有同一份数据
	leafOf string // 快照盘对应的叶子盘引用
}

// MirrorRecord 单块盘搬运完成后的产物，供内存迁移与收尾/回滚消费
type MirrorRecord struct {
	Mirrored            bool
	Datapath            string
	MirrorID            string
	VDIUUID             string
	LocalSR             string // 引用
	LocalVDI            string
	RemoteSR            string
	RemoteVDI           string
	LocalSRUUID         string
	LocalLocation       string
	RemoteSRUUID        string
	RemoteLocation      string
	LocalXenopsLocator  string
	RemoteXenopsLocator string
	Kind                vdiKind
	LeafOf              string
}

// domainSlice 合成域片段标识：目的域尚不存在时存储代理靠它路由调用
func domainSlice(prefix, vmRef, vdiRef string) string {
	sum := sha256.Sum256([]byte(vmRef + "/" + vdiRef))
	return prefix + hex.EncodeToString(sum[:])[:12]
}

// planVDITransfers 分类并排序所有要搬的盘。
// 排序升序 (虚拟大小, 快照时间)：小盘老盘先完成，可作为后续增量传输的父底座。
func (s *vmMigrateService) planVDITransfers(ctx context.Context, vm *model.VM, dest *destDescriptor, vdiMap map[string]string) ([]*vdiTransfer, error) {
	seen := map[string]bool{}
	var plan []*vdiTransfer

	add := func(vdiRef string, kind vdiKind, mirror bool, leafOf string) error {
		if seen[vdiRef] {
			return nil
		}
		seen[vdiRef] = true
		vdi, err := s.vdiRepo.GetByRef(ctx, vdiRef)
		if err != nil {
			return v1.ErrInternalServerError
		}
		if vdi == nil {
			return v1.NewMigrateError(v1.CodeVdiNotInMap, vdiRef)
		}
		srcSR, err := s.srRepo.GetByRef(ctx, vdi.SRRef)
		if err != nil || srcSR == nil {
			return v1.ErrInternalServerError
		}
		destSR, ok := vdiMap[vdiRef]
		if !ok {
			return v1.NewMigrateError(v1.CodeVdiNotInMap, vdiRef)
		}
		plan = append(plan, &vdiTransfer{
			vdi:    vdi,
			srcSR:  srcSR,
			kind:   kind,
			mirror: mirror,
			destSR: destSR,
			leafOf: leafOf,
		})
		return nil
	}

	// 叶子盘：活动 VM 的非空非 CD VBD；RW 且在线的做镜像，其余复制
	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, vbd := range vbds {
		if vbd.Type == model.VBDTypeCD || vbd.Empty == 1 {
			continue
		}
		mirror := vm.PowerState == model.PowerStateRunning && vbd.Mode == model.VBDModeRW
		if err := add(vbd.VDIRef, kindLeaf, mirror, ""); err != nil {
			return nil, err
		}
	}

	// 快照盘：永远复制
	snapshots, err := s.vmRepo.ListSnapshots(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, snapshot := range snapshots {
		snapVBDs, err := s.vbdRepo.ListByVM(ctx, snapshot.Ref)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		for _, vbd := range snapVBDs {
			if vbd.Type == model.VBDTypeCD || vbd.Empty == 1 {
				continue
			}
			leafOf := ""
			if vdi, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef); err == nil && vdi != nil {
				leafOf = vdi.SnapshotOf
			}
			if err := add(vbd.VDIRef, kindSnapshot, false, leafOf); err != nil {
				return nil, err
			}
		}
	}

	// 挂起镜像盘：VM 或快照处于 Suspended 时复制
	sourceHost, err := s.sourceHostOf(ctx, vm)
	if err != nil {
		return nil, err
	}
	family := append([]*model.VM{vm}, snapshots...)
	for _, member := range family {
		if member.PowerState != model.PowerStateSuspended || member.SuspendVDI == "" {
			continue
		}
		suspendVDI, err := s.vdiRepo.GetByRef(ctx, member.SuspendVDI)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		if suspendVDI == nil {
			continue
		}
		// 前置：挂起镜像必须能从源宿主机够到
		pbd, err := s.pbdRepo.GetBySRAndHost(ctx, suspendVDI.SRRef, sourceHost.Ref)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		if pbd == nil || pbd.CurrentlyAttached != 1 {
			return nil, v1.NewMigrateError(v1.CodeSuspendImageNotAccessible, member.SuspendVDI)
		}
		// 同池且目的宿主机已经有路径到该 SR 时不用搬
		if dest.IntraPool {
			destPBD, err := s.pbdRepo.GetBySRAndHost(ctx, suspendVDI.SRRef, dest.DestHostRef)
			if err != nil {
				return nil, v1.ErrInternalServerError
			}
			if destPBD != nil && destPBD.CurrentlyAttached == 1 {
				continue
			}
		}
		if err := add(member.SuspendVDI, kindSuspend, false, ""); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].vdi.VirtualSize != plan[j].vdi.VirtualSize {
			return plan[i].vdi.VirtualSize < plan[j].vdi.VirtualSize
		}
		return plan[i].vdi.SnapshotTime.Before(plan[j].vdi.SnapshotTime)
	})
	return plan, nil
}

// ejectCDs 镜像开始前弹出需要换 SR 的 CD。
// 只处理非快照、运行中、未挂起 VM 的 CD VBD。
func (s *vmMigrateService) ejectCDs(ctx context.Context, vm *model.VM, vdiMap map[string]string) error {
	if vm.IsSnapshot == 1 || vm.PowerState != model.PowerStateRunning {
		return nil
	}
	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return v1.ErrInternalServerError
	}
	for _, vbd := range vbds {
		if vbd.Type != model.VBDTypeCD || vbd.Empty == 1 {
			continue
		}
		vdi, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef)
		if err != nil || vdi == nil {
			continue
		}
		destSR, mapped := vdiMap[vbd.VDIRef]
		if !mapped || destSR == vdi.SRRef {
			continue
		}
		xc, err := s.xenopsNew(s.conf.GetString("agents.xenops_url"))
		if err != nil {
			return v1.ErrInternalServerError
		}
		if err := xc.VBDEject(ctx, s.dbg(vm), vm.UUID, vbd.Device); err != nil {
			s.logger.WithContext(ctx).Error("failed to eject cd before migration", zap.Error(err),
				zap.String("vm", vm.Ref), zap.String("device", vbd.Device))
			return v1.NewMigrateError(v1.CodeVMMigrateFailed, vm.Ref, "failed to eject CD "+vbd.Device)
		}
		vbd.Empty = 1
		if err := s.vbdRepo.Update(ctx, vbd); err != nil {
			return v1.ErrInternalServerError
		}
	}
	return nil
}

// runDiskTransfers 依次建立所有镜像/复制。任务创建串行，
// 远端的实际拷贝由存储代理排队并发执行。
func (s *vmMigrateService) runDiskTransfers(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, plan []*vdiTransfer) ([]*MirrorRecord, error) {
	var totalSize int64
	for _, xfer := range plan {
		if !xfer.skip {
			totalSize += xfer.vdi.VirtualSize
		}
	}

	destSRInfo := map[string]*v1.SRDetail{}
	srInfo := func(ref string) (*v1.SRDetail, error) {
		if info, ok := destSRInfo[ref]; ok {
			return info, nil
		}
		info, err := dest.plane.SRInfo(ctx, ref)
		if err != nil {
			return nil, err
		}
		destSRInfo[ref] = info
		return info, nil
	}

	var (
		records  []*MirrorRecord
		progress float64
	)
	for _, xfer := range plan {
		if err := s.exnIfCancelling(ctx, task); err != nil {
			return records, err
		}
		destSR, err := srInfo(xfer.destSR)
		if err != nil {
			return records, v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, xfer.destSR)
		}
		share := 0.0
		if totalSize > 0 {
			share = float64(xfer.vdi.VirtualSize) / float64(totalSize)
		}
		record, err := s.transferOne(ctx, task, vm, dest, xfer, destSR, progress, share)
		if err != nil {
			return records, err
		}
		progress += share
		records = append(records, record)
	}

	if err := s.replicateSnapshotChains(ctx, dest, records); err != nil {
		return records, err
	}
	return records, nil
}

// transferOne 单盘协议：分配 datapath、确保目的 PBD 可用、
// 镜像或复制、等待任务、解析目的侧 VDI 引用。
func (s *vmMigrateService) transferOne(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, xfer *vdiTransfer, destSR *v1.SRDetail, progressBase, share float64) (record *MirrorRecord, err error) {
	vdi := xfer.vdi
	dbg := s.dbg(vm)

	// 跨池两端落在同一个共享 SR 上需要协调 tapdisk 锁，目前没有实现，特性开关默认拒绝
	if !dest.IntraPool && xfer.srcSR.UUID == destSR.UUID && !s.conf.GetBool("migration.allow_shared_sr_cross_pool") {
		return nil, v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, xfer.destSR)
	}

	// 共享 SR 模式：源目的是同一个 SR 时目的侧必须已有同一份数据
	if s.conf.GetBool("migration.shared_sr_mode") && xfer.srcSR.UUID == destSR.UUID {
		existing, err := dest.plane.VDIByLocation(ctx, xfer.destSR, vdi.Location)
		if err != nil {
			return nil, err
		}
		if existing.UUID != vdi.UUID {
			return nil, v1.NewMigrateError(v1.CodeVdiLocationMissing, xfer.destSR, vdi.Location)
		}
		return &MirrorRecord{
			Mirrored:            false,
			VDIUUID:             vdi.UUID,
			LocalSR:             vdi.SRRef,
			LocalVDI:            vdi.Ref,
			RemoteSR:            xfer.destSR,
			RemoteVDI:           existing.Ref,
			LocalSRUUID:         xfer.srcSR.UUID,
			LocalLocation:       vdi.Location,
			RemoteSRUUID:        destSR.UUID,
			RemoteLocation:      existing.Location,
			LocalXenopsLocator:  xenopsLocator(xfer.srcSR.UUID, vdi.Location),
			RemoteXenopsLocator: xenopsLocator(destSR.UUID, existing.Location),
			Kind:                xfer.kind,
			LeafOf:              xfer.leafOf,
		}, nil
	}

	// 确保目的 SR 的 PBD 在目的宿主机和协调者上已插好
	if dest.IntraPool {
		if err := s.ensurePBDsPlugged(ctx, xfer.destSR, dest.DestHostRef); err != nil {
			return nil, err
		}
	}

	smc, err := s.smapiNew(s.conf.GetString("agents.smapi_url"))
	if err != nil {
		return nil, v1.ErrInternalServerError
	}

	prefix := "copy_"
	if xfer.mirror {
		prefix = "mirror_"
	}
	dp := prefix + vdi.UUID
	mirrorVM := domainSlice("MIR", vm.Ref, vdi.Ref)
	copyVM := domainSlice("CP", vm.Ref, vdi.Ref)

	var (
		mirrorID   string
		registered bool
		attached   bool
	)
	// 作用域清理：块内任何失败都尽力拆掉已建立的资源，清理自身的失败只记日志
	defer func() {
		if err == nil {
			return
		}
		if registered {
			if stopErr := smc.MirrorStop(ctx, dbg, mirrorID); stopErr != nil {
				s.logger.WithContext(ctx).Warn("failed to stop mirror during cleanup", zap.Error(stopErr), zap.String("mirror", mirrorID))
			}
		}
		if attached {
			if dpErr := smc.DPDestroy(ctx, dbg, dp, false); dpErr != nil {
				s.logger.WithContext(ctx).Warn("failed to destroy datapath during cleanup", zap.Error(dpErr), zap.String("dp", dp))
			}
		}
		if record != nil && record.RemoteVDI != "" {
			if delErr := dest.plane.DestroyVDI(ctx, record.RemoteVDI); delErr != nil {
				s.logger.WithContext(ctx).Warn("failed to destroy remote vdi during cleanup", zap.Error(delErr), zap.String("vdi", record.RemoteVDI))
			}
		}
		record = nil
	}()

	// datapath 登记到任务上，进程崩溃后由清扫任务拆除
	s.recordTaskDatapath(ctx, task, dp)

	var smTask string
	if xfer.mirror {
		// 镜像盘始终以读写方式附加，避免 VM 迁移途中启停造成的死锁
		if err = smc.VDIAttach3(ctx, dbg, dp, xfer.srcSR.UUID, vdi.Location, mirrorVM, true); err != nil {
			return nil, err
		}
		attached = true
		if err = smc.VDIActivate3(ctx, dbg, dp, xfer.srcSR.UUID, vdi.Location, mirrorVM); err != nil {
			return nil, err
		}
		mirrorID = fmt.Sprintf("%s/%s", xfer.srcSR.UUID, vdi.Location)
		registered = true
		smTask, err = smc.MirrorStart(ctx, dbg, xfer.srcSR.UUID, vdi.Location, dp, mirrorVM, copyVM, dest.SMURL, destSR.UUID, dest.IntraPool)
		if err != nil {
			return nil, err
		}
	} else {
		smTask, err = smc.DataCopy(ctx, dbg, xfer.srcSR.UUID, vdi.Location, copyVM, dest.SMURL, destSR.UUID, dest.IntraPool)
		if err != nil {
			return nil, err
		}
	}

	done, err := s.waitWithProgress(ctx, smc, dbg, smTask, task, progressBase, share)
	if err != nil {
		return nil, err
	}

	remoteLocation := done.Result
	if xfer.mirror {
		stat, statErr := smc.MirrorStat(ctx, dbg, mirrorID)
		if statErr != nil {
			err = statErr
			return nil, err
		}
		remoteLocation = stat.DestVDI
	}

	// 扫描目的 SR 让远端管理面看到新盘，再按 (location, SR) 找引用
	if err = dest.plane.ScanSR(ctx, xfer.destSR); err != nil {
		return nil, err
	}
	var remote *v1.VDIRecord
	remote, err = dest.plane.VDIByLocation(ctx, xfer.destSR, remoteLocation)
	if err != nil {
		return nil, err
	}

	record = &MirrorRecord{
		Mirrored:            xfer.mirror,
		Datapath:            dp,
		MirrorID:            mirrorID,
		VDIUUID:             vdi.UUID,
		LocalSR:             vdi.SRRef,
		LocalVDI:            vdi.Ref,
		RemoteSR:            xfer.destSR,
		RemoteVDI:           remote.Ref,
		LocalSRUUID:         xfer.srcSR.UUID,
		LocalLocation:       vdi.Location,
		RemoteSRUUID:        destSR.UUID,
		RemoteLocation:      remoteLocation,
		LocalXenopsLocator:  xenopsLocator(xfer.srcSR.UUID, vdi.Location),
		RemoteXenopsLocator: xenopsLocator(destSR.UUID, remoteLocation),
		Kind:                xfer.kind,
		LeafOf:              xfer.leafOf,
	}
	return record, nil
}

// ensurePBDsPlugged 目的宿主机与协调者上的 PBD 若处于拔出状态则插上
func (s *vmMigrateService) ensurePBDsPlugged(ctx context.Context, srRef, destHostRef string) error {
	hosts := []string{destHostRef}
	if coordinator, err := s.hostRepo.GetCoordinator(ctx); err == nil && coordinator != nil && coordinator.Ref != destHostRef {
		hosts = append(hosts, coordinator.Ref)
	}
	for _, hostRef := range hosts {
		host, err := s.hostRepo.GetByRef(ctx, hostRef)
		if err != nil {
			return v1.ErrInternalServerError
		}
		if host == nil || host.Enabled != 1 {
			continue
		}
		pbd, err := s.pbdRepo.GetBySRAndHost(ctx, srRef, hostRef)
		if err != nil {
			return v1.ErrInternalServerError
		}
		if pbd != nil && pbd.CurrentlyAttached == 0 {
			pbd.CurrentlyAttached = 1
			if err := s.pbdRepo.Update(ctx, pbd); err != nil {
				return v1.ErrInternalServerError
			}
			s.logger.WithContext(ctx).Info("plugged destination pbd", zap.String("sr", srRef), zap.String("host", hostRef))
		}
	}
	return nil
}

// waitWithProgress 轮询存储任务并把按大小折算的进度累计到集群任务上
func (s *vmMigrateService) waitWithProgress(ctx context.Context, smc smapi.Client, dbg, smTask string, task *model.Task, base, share float64) (*smapi.Task, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		stat, err := smc.TaskStat(ctx, dbg, smTask)
		if err != nil {
			return nil, err
		}
		s.updateTaskProgress(ctx, task, base+stat.Progress*share)
		switch stat.State {
		case smapi.TaskStateCompleted:
			return stat, nil
		case smapi.TaskStateFailed:
			if stat.Error != nil {
				return nil, stat.Error
			}
			return nil, fmt.Errorf("storage task %s failed", smTask)
		case smapi.TaskStateCancelled:
			return nil, &smapi.BackendError{Code: smapi.CodeCancelled, Params: []string{smTask}}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replicateSnapshotChains 所有盘搬完后按叶子分组，把快照链关系同步到目的侧。
// 远端没有该操作（老版本）时记日志放过。
func (s *vmMigrateService) replicateSnapshotChains(ctx context.Context, dest *destDescriptor, records []*MirrorRecord) error {
	smc, err := s.smapiNew(s.conf.GetString("agents.smapi_url"))
	if err != nil {
		return v1.ErrInternalServerError
	}
	leaves := map[string]*MirrorRecord{}
	for _, record := range records {
		if record.Kind == kindLeaf {
			leaves[record.LocalVDI] = record
		}
	}
	chains := map[string][][2]string{}
	for _, record := range records {
		if record.Kind != kindSnapshot || record.LeafOf == "" {
			continue
		}
		if _, ok := leaves[record.LeafOf]; !ok {
			continue
		}
		chains[record.LeafOf] = append(chains[record.LeafOf], [2]string{record.LocalLocation, record.RemoteLocation})
	}
	for leafRef, pairs := range chains {
		leaf := leaves[leafRef]
		err := smc.UpdateSnapshotInfoSrc(ctx, "storage-migrate", leaf.LocalSRUUID, leaf.LocalLocation,
			dest.SMURL, leaf.RemoteSRUUID, leaf.RemoteLocation, pairs, dest.IntraPool)
		if err != nil {
			if smapi.IsUnknownOperation(err) {
				s.logger.WithContext(ctx).Info("remote does not support snapshot chain replication, skipping",
					zap.String("leaf", leafRef))
				continue
			}
			return err
		}
	}
	return nil
}

// recordTaskDatapath 把 datapath 追加进任务 other_config 的 migrate_dps 列表
func (s *vmMigrateService) recordTaskDatapath(ctx context.Context, task *model.Task, dp string) {
	oc := decodeStringMap(task.OtherConfig)
	if oc["migrate_dps"] == "" {
		oc["migrate_dps"] = dp
	} else {
		oc["migrate_dps"] += "," + dp
	}
	task.OtherConfig = encodeStringMap(oc)
	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.WithContext(ctx).Warn("failed to record datapath on task", zap.Error(err), zap.String("dp", dp))
	}
}

// xenopsLocator 控制代理使用的盘定位符
func xenopsLocator(srUUID, location string) string {
	return fmt.Sprintf("%s/%s", srUUID, location)
}
