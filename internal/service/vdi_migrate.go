package service

import (
	"context"
	"fmt"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"go.uber.org/zap"
)

// VDIPoolMigrate 在线搬一块盘：对单 VDI 构造完整迁移映射后走 migrate_send，
// 目的地就是 VM 当前所在宿主机。
func (s *vmMigrateService) VDIPoolMigrate(ctx context.Context, req *v1.VDIPoolMigrateRequest) (string, error) {
	vdi, err := s.vdiRepo.GetByRef(ctx, req.VDI)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	if vdi == nil {
		return "", v1.ErrNotFound
	}
	destSR, err := s.srRepo.GetByRef(ctx, req.SR)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	if destSR == nil {
		return "", v1.ErrNotFound
	}

	// 派发层注入持有该盘的 VM
	vmRef := req.Options[OptionInternalVM]
	if vmRef == "" {
		return "", v1.NewMigrateError(v1.CodeOperationNotAllowed, "VDI.pool_migrate requires the owning VM")
	}
	vm, err := s.vmRepo.GetByRef(ctx, vmRef)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	if vm == nil {
		return "", v1.ErrNotFound
	}

	host, err := s.sourceHostOf(ctx, vm)
	if err != nil {
		return "", err
	}
	if host.Address == "" {
		return "", v1.NewMigrateError(v1.CodeHostHasNoManagementIP, host.Ref)
	}

	// 其余盘留在原地：映射到各自当前 SR
	vbds, err := s.vbdRepo.ListByVM(ctx, vm.Ref)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	vdiMap := map[string]string{req.VDI: req.SR}
	var movedVBDRef string
	for _, vbd := range vbds {
		if vbd.Type == model.VBDTypeCD || vbd.Empty == 1 {
			continue
		}
		if vbd.VDIRef == req.VDI {
			movedVBDRef = vbd.Ref
			continue
		}
		other, err := s.vdiRepo.GetByRef(ctx, vbd.VDIRef)
		if err != nil || other == nil {
			return "", v1.ErrInternalServerError
		}
		vdiMap[vbd.VDIRef] = other.SRRef
	}
	if movedVBDRef == "" {
		return "", v1.NewMigrateError(v1.CodeOperationNotAllowed, "VDI is not attached to the given VM")
	}

	dest := map[string]string{
		destKeyMaster:  fmt.Sprintf("http://%s:%d", host.Address, s.conf.GetInt("http.port")),
		destKeyXenops:  fmt.Sprintf("http://%s:%d", host.Address, s.conf.GetInt("agents.xenops_port")),
		destKeySM:      s.conf.GetString("agents.smapi_url"),
		destKeyHost:    host.Ref,
		destKeySession: "internal",
	}

	if _, err := s.MigrateSend(ctx, &v1.MigrateSendRequest{
		VM:      vm.Ref,
		Dest:    dest,
		Live:    true,
		VdiMap:  vdiMap,
		Options: map[string]string{},
	}); err != nil {
		return "", err
	}

	// 同池收尾已把 VBD 指到新 VDI
	moved, err := s.vbdRepo.GetByRef(ctx, movedVBDRef)
	if err != nil || moved == nil {
		return "", v1.ErrInternalServerError
	}
	s.logger.WithContext(ctx).Info("vdi migrated", zap.String("old", req.VDI), zap.String("new", moved.VDIRef))
	return moved.VDIRef, nil
}
