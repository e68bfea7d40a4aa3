package service

import (
	"context"
	"encoding/base64"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"go.uber.org/zap"
)

// OtherConfigMigrateVDIMap 元数据导出前给源 VDI 打的目的引用提示键
const OtherConfigMigrateVDIMap = "storage_migrate_vdi_map"

type metadataTransferArgs struct {
	DryRun   bool
	Live     bool
	Copy     bool
	CheckCPU bool
}

// metadataTransfer 跨池元数据导出/导入。导出前把目的侧 VDI 引用
// 盖章到源 VDI 的 other_config，调用结束（无论成败）后无条件清掉。
func (s *vmMigrateService) metadataTransfer(ctx context.Context, dest *destDescriptor, vm *model.VM, records []*MirrorRecord, vifMap, vgpuMap map[string]string, args *metadataTransferArgs) (*v1.ImportMetadataResponseData, error) {
	if dest.remote == nil {
		return nil, v1.NewMigrateError(v1.CodeInternalError, "metadata transfer is only meaningful cross-pool")
	}

	vdiHints := map[string]string{}
	for _, record := range records {
		vdiHints[record.LocalVDI] = record.RemoteVDI
	}

	stamped, err := s.stampVDIHints(ctx, vdiHints)
	if err != nil {
		return nil, err
	}
	defer s.unstampVDIHints(ctx, stamped)

	metadata, err := s.exportVMMetadata(ctx, vm, vdiHints, vifMap, vgpuMap, !args.Copy)
	if err != nil {
		return nil, err
	}

	data, err := dest.remote.ImportMetadata(ctx, &v1.ImportMetadataRequest{
		Metadata: *metadata,
		DryRun:   args.DryRun,
		Live:     args.Live,
		CheckCPU: args.CheckCPU,
		Host:     dest.DestHostRef,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// stampVDIHints 返回实际改过的 VDI 引用，便于成对清理
func (s *vmMigrateService) stampVDIHints(ctx context.Context, vdiHints map[string]string) ([]string, error) {
	var stamped []string
	for localRef, remoteRef := range vdiHints {
		vdi, err := s.vdiRepo.GetByRef(ctx, localRef)
		if err != nil {
			return stamped, v1.ErrInternalServerError
		}
		if vdi == nil {
			continue
		}
		oc := decodeStringMap(vdi.OtherConfig)
		oc[OtherConfigMigrateVDIMap] = remoteRef
		vdi.OtherConfig = encodeStringMap(oc)
		if err := s.vdiRepo.Update(ctx, vdi); err != nil {
			return stamped, v1.ErrInternalServerError
		}
		stamped = append(stamped, localRef)
	}
	return stamped, nil
}

func (s *vmMigrateService) unstampVDIHints(ctx context.Context, stamped []string) {
	for _, ref := range stamped {
		vdi, err := s.vdiRepo.GetByRef(ctx, ref)
		if err != nil || vdi == nil {
			continue
		}
		oc := decodeStringMap(vdi.OtherConfig)
		delete(oc, OtherConfigMigrateVDIMap)
		vdi.OtherConfig = encodeStringMap(oc)
		if err := s.vdiRepo.Update(ctx, vdi); err != nil {
			s.logger.WithContext(ctx).Warn("failed to clear migrate hint", zap.Error(err), zap.String("vdi", ref))
		}
	}
}

// exportVMMetadata 组装 VM 对象图。附件上的目的引用提示来自
// 盘搬运产物（VDI）、调用方映射（VIF 网络 / vGPU GPU 组）。
func (s *vmMigrateService) exportVMMetadata(ctx context.Context, vm *model.VM, vdiHints, vifMap, vgpuMap map[string]string, sendSnapshots bool) (*v1.VMMetadata, error) {
	metadata, err := s.exportOneVM(ctx, vm, vdiHints, vifMap, vgpuMap)
	if err != nil {
		return nil, err
	}
	if sendSnapshots {
		snapshots, err := s.vmRepo.ListSnapshots(ctx, vm.Ref)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		for _, snapshot := range snapshots {
			snapMeta, err := s.exportOneVM(ctx, snapshot, vdiHints, vifMap, vgpuMap)
			if err != nil {
				return nil, err
			}
			snapMeta.VM.SnapshotOf = vm.UUID
			metadata.Snapshots = append(metadata.Snapshots, *snapMeta)
		}
	}
	return metadata, nil
}

func (s *vmMigrateService) exportOneVM(ctx context.Context, vm *model.VM, vdiHints, vifMap, vgpuMap map[string]string) (*v1.VMMetadata, error) {
	metadata := &v1.VMMetadata{
		VM: v1.VMRecord{
			UUID:         vm.UUID,
			NameLabel:    vm.NameLabel,
			PowerState:   vm.PowerState,
			IsSnapshot:   vm.IsSnapshot == 1,
			SnapshotTime: vm.SnapshotTime.Unix(),
			HaAlwaysRun:  vm.HaAlwaysRun == 1,
			Platform:     decodeStringMap(vm.Platform),
			OtherConfig:  decodeStringMap(vm.OtherConfig),
			CPUFeatures:  vm.CPUFeatures,
			VCPUs:        vm.VCPUs,
		},
	}
	if vm.SuspendVDI != "" {
		metadata.VM.SuspendVDI = vdiHints[vm.SuspendVDI]
	}

	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, vbd := range vbds {
		record := v1.VBDRecord{
			UUID:     vbd.UUID,
			Device:   vbd.Device,
			Mode:     vbd.Mode,
			Type:     vbd.Type,
			Empty:    vbd.Empty == 1,
			Bootable: vbd.Bootable == 1,
		}
		if vbd.Empty == 0 {
			record.VDI = vdiHints[vbd.VDIRef]
			if vdi, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef); err == nil && vdi != nil {
				record.VDIUUID = vdi.UUID
			}
		}
		metadata.VBDs = append(metadata.VBDs, record)
	}

	vifs, err := s.vifRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, vif := range vifs {
		metadata.VIFs = append(metadata.VIFs, v1.VIFRecord{
			UUID:    vif.UUID,
			Device:  vif.Device,
			MAC:     vif.MAC,
			Network: vifMap[vif.Ref],
		})
	}

	vgpus, err := s.gpuRepo.ListVGPUsByVM(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, vgpu := range vgpus {
		metadata.VGPUs = append(metadata.VGPUs, v1.VGPURecord{
			UUID:     vgpu.UUID,
			Device:   vgpu.Device,
			GPUGroup: vgpuMap[vgpu.Ref],
		})
	}

	vtpms, err := s.vmRepo.ListVTPMs(ctx, vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	for _, vtpm := range vtpms {
		metadata.VTPMs = append(metadata.VTPMs, v1.VTPMRecord{UUID: vtpm.UUID})
	}
	return metadata, nil
}

// replicateMessagesAndBlobs 成功收尾时把池消息与 blob 推到远端，然后删本地消息
func (s *vmMigrateService) replicateMessagesAndBlobs(ctx context.Context, dest *destDescriptor, vm *model.VM) {
	messages, err := s.messageRepo.ListByObjUUID(ctx, vm.UUID)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to list messages for replication", zap.Error(err))
		return
	}
	for _, message := range messages {
		err := dest.remote.PushMessage(ctx, &v1.MessagePushRequest{
			ObjUUID:  message.ObjUUID,
			Name:     message.Name,
			Priority: message.Priority,
			Cls:      message.Cls,
			Body:     message.Body,
		})
		if err != nil {
			s.logger.WithContext(ctx).Warn("failed to push message", zap.Error(err), zap.String("message", message.Ref))
		}
	}
	if err := s.messageRepo.DeleteByObjUUID(ctx, vm.UUID); err != nil {
		s.logger.WithContext(ctx).Warn("failed to delete local messages", zap.Error(err))
	}

	blobs, err := s.messageRepo.ListBlobsByVMUUID(ctx, vm.UUID)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to list blobs for replication", zap.Error(err))
		return
	}
	for _, blob := range blobs {
		// 内容在库里就是 base64，校验一下再推
		if _, err := base64.StdEncoding.DecodeString(blob.Content); err != nil {
			s.logger.WithContext(ctx).Warn("skipping blob with invalid content", zap.String("blob", blob.Ref))
			continue
		}
		err := dest.remote.PushBlob(ctx, &v1.BlobPushRequest{
			VMUUID:   blob.VMUUID,
			Name:     blob.Name,
			MimeType: blob.MimeType,
			Content:  blob.Content,
		})
		if err != nil {
			s.logger.WithContext(ctx).Warn("failed to push blob", zap.Error(err), zap.String("blob", blob.Ref))
		}
	}
}
