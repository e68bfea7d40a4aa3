package service

import (
	"context"
	"fmt"
	"strings"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"go.uber.org/zap"
)

// 选项键
const (
	OptionForce      = "force"
	OptionCopy       = "copy"
	OptionCompress   = "compress"
	OptionNetwork    = "network"
	OptionInternalVM = "__internal__vm"
)

type migrateOptions struct {
	Force    bool
	Copy     bool
	Compress bool
}

// parseBoolToken 识别 true|false|on|off|1|0（大小写不敏感）
func parseBoolToken(val string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "on", "1":
		return true, true
	case "false", "off", "0":
		return false, true
	default:
		return false, false
	}
}

// parseMigrateOptions 解析 force/copy/compress。
// compress 未指定时：目的宿主机就是 VM 当前所在宿主机则为 false，否则取池策略。
func (s *vmMigrateService) parseMigrateOptions(ctx context.Context, vm *model.VM, dest *destDescriptor, options map[string]string) (*migrateOptions, error) {
	opts := &migrateOptions{}
	for _, key := range []string{OptionForce, OptionCopy} {
		if raw, ok := options[key]; ok {
			val, valid := parseBoolToken(raw)
			if !valid {
				return nil, v1.NewMigrateError(v1.CodeInvalidValue, key, raw)
			}
			if key == OptionForce {
				opts.Force = val
			} else {
				opts.Copy = val
			}
		}
	}

	if raw, ok := options[OptionCompress]; ok {
		val, valid := parseBoolToken(raw)
		if !valid {
			return nil, v1.NewMigrateError(v1.CodeInvalidValue, OptionCompress, raw)
		}
		opts.Compress = val
		return opts, nil
	}
	if dest.IntraPool && vm.ResidentOn == dest.DestHostRef {
		opts.Compress = false
		return opts, nil
	}
	pl, err := s.poolRepo.GetCurrent(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if pl != nil {
		opts.Compress = pl.MigrationCompression == 1
	}
	return opts, nil
}

// assertCanMigrate 所有前置校验，全部在任何变更之前完成。
// 传入的 vdiMap/vifMap 必须是补全后的有效映射。幂等：不产生副作用。
func (s *vmMigrateService) assertCanMigrate(ctx context.Context, vm *model.VM, dest *destDescriptor, vdiMap, vifMap, vgpuMap map[string]string, opts *migrateOptions, live bool) error {
	// 1. 许可必须放开 Storage_motion
	pl, err := s.poolRepo.GetCurrent(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to get pool", zap.Error(err))
		return v1.ErrInternalServerError
	}
	if pl != nil && pl.RestrictStorageMotion == 1 {
		return v1.NewMigrateError(v1.CodeLicenceRestriction, "Storage_motion")
	}

	// 2. 旧式直通硬件禁止迁移
	if vm.LegacyIO == 1 {
		return v1.NewMigrateError(v1.CodeOperationNotAllowed, "VM has legacy hardware attached and cannot be migrated")
	}

	// 同池 copy 直接拒绝：池内复制应该走 VM.copy/VM.clone
	if dest.IntraPool && opts.Copy {
		return v1.NewMigrateError(v1.CodeOperationNotAllowed, "Copying a VM within a pool is the job of VM.copy/VM.clone")
	}

	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to list vbds", zap.Error(err))
		return v1.ErrInternalServerError
	}

	for _, vbd := range vbds {
		if vbd.Type == model.VBDTypeCD || vbd.Empty == 1 {
			continue
		}
		// 3. 挂载盘必须出现在有效 vdi_map 里
		destSR, ok := vdiMap[vbd.VDIRef]
		if !ok {
			return v1.NewMigrateError(v1.CodeVdiNotInMap, vbd.VDIRef)
		}
		vdi, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef)
		if err != nil {
			return v1.ErrInternalServerError
		}
		if vdi == nil {
			return v1.NewMigrateError(v1.CodeVdiNotInMap, vbd.VDIRef)
		}
		// 4. CBT 开着的盘不能做存储迁移
		if vdi.CbtEnabled == 1 {
			return v1.NewMigrateError(v1.CodeVdiCbtEnabled, vdi.Ref)
		}
		// 5. on_boot=reset 的盘迁移后语义不可保持
		if vdi.OnBoot == model.OnBootReset {
			return v1.NewMigrateError(v1.CodeVdiOnBootModeIncompatible, vdi.Ref)
		}
		// 6. 换 SR 的加密盘会丢密钥绑定
		if destSR != vdi.SRRef {
			if _, encrypted := decodeStringMap(vdi.SmConfig)[model.SmConfigKeyHash]; encrypted {
				return v1.NewMigrateError(v1.CodeVdiIsEncrypted, vdi.Ref)
			}
		}
		// 7. 源/目的 SR 能力校验，源目的相同的盘豁免
		if destSR != vdi.SRRef {
			if err := s.assertSRCapabilities(ctx, dest, vdi.SRRef, destSR); err != nil {
				return err
			}
		}
	}

	destHost, err := dest.plane.HostInfo(ctx, dest.DestHostRef)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to get destination host", zap.Error(err), zap.String("host", dest.DestHostRef))
		return v1.NewMigrateError(v1.CodeCannotContactHost, dest.DestHostRef)
	}

	sourceHost, err := s.sourceHostOf(ctx, vm)
	if err != nil {
		return err
	}

	if dest.IntraPool {
		// 8. 同池：平台版本只升不降；VIF 不换网络；CPU 特性可承载
		if comparePlatformVersions(destHost.PlatformVersion, sourceHost.PlatformVersion) < 0 {
			return v1.NewMigrateError(v1.CodeVMHostIncompatibleVersion, sourceHost.PlatformVersion, destHost.PlatformVersion)
		}
		if len(vifMap) != 0 {
			return v1.NewMigrateError(v1.CodeOperationNotAllowed, "VIF mappings are not allowed for intra-pool migration")
		}
		if !opts.Force && vm.PowerState != model.PowerStateHalted {
			if !cpuFeaturesSubset(vm.CPUFeatures, destHost.CPUFeatures) {
				return v1.NewMigrateError(v1.CodeVMMigrateFailed, vm.Ref, sourceHost.Ref, destHost.Ref,
					"VM CPU featureset is not compatible with the destination host")
			}
		}
		return nil
	}

	// 9. 跨池
	if comparePlatformVersions(destHost.PlatformVersion, sourceHost.PlatformVersion) < 0 {
		return v1.NewMigrateError(v1.CodeVMHostIncompatibleVersion, sourceHost.PlatformVersion, destHost.PlatformVersion)
	}
	if !destHost.Enabled {
		return v1.NewMigrateError(v1.CodeHostDisabled, dest.DestHostRef)
	}
	if vm.VCPUs > destHost.CPUCount {
		return v1.NewMigrateError(v1.CodeHostNotEnoughPCPUs, fmt.Sprintf("%d", vm.VCPUs), fmt.Sprintf("%d", destHost.CPUCount))
	}
	if hwVersion := vmHardwarePlatformVersion(vm); hwVersion > destHost.HardwarePlatform {
		return v1.NewMigrateError(v1.CodeHardwarePlatformUnsupported, fmt.Sprintf("%d", hwVersion), fmt.Sprintf("%d", destHost.HardwarePlatform))
	}
	if opts.Copy && !opts.Force && vm.PowerState != model.PowerStateHalted {
		return v1.NewMigrateError(v1.CodeVMBadPowerState, vm.Ref, model.PowerStateHalted, vm.PowerState)
	}
	// 所有 VIF 必须可解析（显式映射或 MAC 推断已补全）
	vifs, err := s.vifRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return v1.ErrInternalServerError
	}
	for _, vif := range vifs {
		if vifMap[vif.Ref] == "" {
			return v1.NewMigrateError(v1.CodeVifNotInMap, vif.Ref)
		}
	}
	// 干跑导入必须无冲突
	data, err := s.metadataTransfer(ctx, dest, vm, nil, vifMap, vgpuMap, &metadataTransferArgs{
		DryRun:   true,
		Live:     live,
		Copy:     opts.Copy,
		CheckCPU: !opts.Force && vm.PowerState != model.PowerStateHalted,
	})
	if err != nil {
		return err
	}
	if len(data.Conflicts) > 0 {
		return v1.NewMigrateError(v1.CodeMetadataImportConflict, data.Conflicts...)
	}
	return nil
}

// assertCanMigrateSender 发送侧校验：在通用校验之上附加 pGPU 兼容性
func (s *vmMigrateService) assertCanMigrateSender(ctx context.Context, vm *model.VM, dest *destDescriptor, vdiMap, vifMap, vgpuMap map[string]string, opts *migrateOptions, live bool) error {
	if err := s.assertCanMigrate(ctx, vm, dest, vdiMap, vifMap, vgpuMap, opts, live); err != nil {
		return err
	}
	vgpus, err := s.gpuRepo.ListVGPUsByVM(ctx, vm.Ref)
	if err != nil {
		return v1.ErrInternalServerError
	}
	for _, vgpu := range vgpus {
		if dest.IntraPool {
			// 目的宿主机上必须有同组的 pGPU 可承载
			groupRef := vgpu.GPUGroupRef
			if mapped, ok := vgpuMap[vgpu.Ref]; ok {
				groupRef = mapped
			}
			pgpus, err := s.gpuRepo.ListPGPUsByHost(ctx, dest.DestHostRef)
			if err != nil {
				return v1.ErrInternalServerError
			}
			found := false
			for _, pgpu := range pgpus {
				if pgpu.GPUGroupRef == groupRef {
					found = true
					break
				}
			}
			if !found {
				return v1.NewMigrateError(v1.CodeVMMigrateFailed, vm.Ref, dest.DestHostRef,
					fmt.Sprintf("no compatible pGPU on destination for vGPU %s", vgpu.Ref))
			}
		} else if vgpuMap[vgpu.Ref] == "" {
			return v1.NewMigrateError(v1.CodeVMMigrateFailed, vm.Ref, dest.DestHostRef,
				fmt.Sprintf("vGPU %s has no destination GPU group mapping", vgpu.Ref))
		}
	}
	return nil
}

// assertSRCapabilities 源 SR 必须会做快照+外发镜像，目的 SR 必须会接收镜像
func (s *vmMigrateService) assertSRCapabilities(ctx context.Context, dest *destDescriptor, srcSRRef, destSRRef string) error {
	srcSR, err := s.srRepo.GetByRef(ctx, srcSRRef)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if srcSR == nil {
		return v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, srcSRRef)
	}
	srcCaps := decodeStringSlice(srcSR.Capabilities)
	if !containsString(srcCaps, model.SRCapVdiSnapshot) || !containsString(srcCaps, model.SRCapVdiMirror) {
		return v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, srcSRRef)
	}

	destSR, err := dest.plane.SRInfo(ctx, destSRRef)
	if err != nil {
		return v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, destSRRef)
	}
	if !containsString(destSR.Capabilities, model.SRCapVdiSnapshot) || !containsString(destSR.Capabilities, model.SRCapVdiMirrorIn) {
		return v1.NewMigrateError(v1.CodeSrDoesNotSupportMigration, destSRRef)
	}
	return nil
}

// sourceHostOf Halted 的 VM 没有 resident host，退回协调者
func (s *vmMigrateService) sourceHostOf(ctx context.Context, vm *model.VM) (*model.Host, error) {
	if vm.ResidentOn != "" {
		host, err := s.hostRepo.GetByRef(ctx, vm.ResidentOn)
		if err != nil {
			return nil, v1.ErrInternalServerError
		}
		if host != nil {
			return host, nil
		}
	}
	host, err := s.hostRepo.GetCoordinator(ctx)
	if err != nil || host == nil {
		return nil, v1.ErrInternalServerError
	}
	return host, nil
}

// comparePlatformVersions 按点分数字段比较，返回 -1/0/1
func comparePlatformVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			fmt.Sscanf(as[i], "%d", &av)
		}
		if i < len(bs) {
			fmt.Sscanf(bs[i], "%d", &bv)
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// cpuFeaturesSubset VM 的特性集必须被目的宿主机覆盖
func cpuFeaturesSubset(vmFeatures, hostFeatures string) bool {
	if strings.TrimSpace(vmFeatures) == "" {
		return true
	}
	have := map[string]bool{}
	for _, f := range strings.Split(hostFeatures, ",") {
		have[strings.TrimSpace(f)] = true
	}
	for _, f := range strings.Split(vmFeatures, ",") {
		f = strings.TrimSpace(f)
		if f != "" && !have[f] {
			return false
		}
	}
	return true
}

func vmHardwarePlatformVersion(vm *model.VM) int {
	return vm.HardwarePlatformVersion
}
