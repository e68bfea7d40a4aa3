package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type VMRepository interface {
	Create(ctx context.Context, vm *model.VM) error
	Update(ctx context.Context, vm *model.VM) error
	Delete(ctx context.Context, ref string) error
	GetByRef(ctx context.Context, ref string) (*model.VM, error)
	GetByUUID(ctx context.Context, uuid string) (*model.VM, error)
	ListSnapshots(ctx context.Context, ofRef string) ([]*model.VM, error)
	ListVTPMs(ctx context.Context, vmRef string) ([]*model.VTPM, error)
	CreateVTPM(ctx context.Context, vtpm *model.VTPM) error
	DeleteVTPMsByVM(ctx context.Context, vmRef string) error
}

func NewVMRepository(r *Repository) VMRepository {
	return &vmRepository{Repository: r}
}

type vmRepository struct {
	*Repository
}

func (r *vmRepository) Create(ctx context.Context, vm *model.VM) error {
	return r.DB(ctx).Create(vm).Error
}

func (r *vmRepository) Update(ctx context.Context, vm *model.VM) error {
	return r.DB(ctx).Save(vm).Error
}

func (r *vmRepository) Delete(ctx context.Context, ref string) error {
	return r.DB(ctx).Where("ref = ?", ref).Delete(&model.VM{}).Error
}

func (r *vmRepository) GetByRef(ctx context.Context, ref string) (*model.VM, error) {
	var vm model.VM
	if err := r.DB(ctx).Where("ref = ?", ref).First(&vm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vm, nil
}

func (r *vmRepository) GetByUUID(ctx context.Context, uuid string) (*model.VM, error) {
	var vm model.VM
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&vm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vm, nil
}

func (r *vmRepository) ListSnapshots(ctx context.Context, ofRef string) ([]*model.VM, error) {
	var vms []*model.VM
	if err := r.DB(ctx).Where("snapshot_of = ? AND is_snapshot = 1", ofRef).Find(&vms).Error; err != nil {
		return nil, err
	}
	return vms, nil
}

func (r *vmRepository) ListVTPMs(ctx context.Context, vmRef string) ([]*model.VTPM, error) {
	var vtpms []*model.VTPM
	if err := r.DB(ctx).Where("vm_ref = ?", vmRef).Find(&vtpms).Error; err != nil {
		return nil, err
	}
	return vtpms, nil
}

func (r *vmRepository) CreateVTPM(ctx context.Context, vtpm *model.VTPM) error {
	return r.DB(ctx).Create(vtpm).Error
}

func (r *vmRepository) DeleteVTPMsByVM(ctx context.Context, vmRef string) error {
	return r.DB(ctx).Where("vm_ref = ?", vmRef).Delete(&model.VTPM{}).Error
}
