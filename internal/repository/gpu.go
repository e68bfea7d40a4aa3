package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type GPURepository interface {
	CreateVGPU(ctx context.Context, vgpu *model.VGPU) error
	ListVGPUsByVM(ctx context.Context, vmRef string) ([]*model.VGPU, error)
	DeleteVGPUsByVM(ctx context.Context, vmRef string) error
	GetPGPUByRef(ctx context.Context, ref string) (*model.PGPU, error)
	ListPGPUsByHost(ctx context.Context, hostRef string) ([]*model.PGPU, error)
	GetGPUGroupByRef(ctx context.Context, ref string) (*model.GPUGroup, error)
	ListGPUGroups(ctx context.Context) ([]*model.GPUGroup, error)
}

func NewGPURepository(r *Repository) GPURepository {
	return &gpuRepository{Repository: r}
}

type gpuRepository struct {
	*Repository
}

func (r *gpuRepository) CreateVGPU(ctx context.Context, vgpu *model.VGPU) error {
	return r.DB(ctx).Create(vgpu).Error
}

func (r *gpuRepository) ListVGPUsByVM(ctx context.Context, vmRef string) ([]*model.VGPU, error) {
	var vgpus []*model.VGPU
	if err := r.DB(ctx).Where("vm_ref = ?", vmRef).Find(&vgpus).Error; err != nil {
		return nil, err
	}
	return vgpus, nil
}

func (r *gpuRepository) DeleteVGPUsByVM(ctx context.Context, vmRef string) error {
	return r.DB(ctx).Where("vm_ref = ?", vmRef).Delete(&model.VGPU{}).Error
}

func (r *gpuRepository) GetPGPUByRef(ctx context.Context, ref string) (*model.PGPU, error) {
	var pgpu model.PGPU
	if err := r.DB(ctx).Where("ref = ?", ref).First(&pgpu).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pgpu, nil
}

func (r *gpuRepository) ListPGPUsByHost(ctx context.Context, hostRef string) ([]*model.PGPU, error) {
	var pgpus []*model.PGPU
	if err := r.DB(ctx).Where("host_ref = ?", hostRef).Find(&pgpus).Error; err != nil {
		return nil, err
	}
	return pgpus, nil
}

func (r *gpuRepository) GetGPUGroupByRef(ctx context.Context, ref string) (*model.GPUGroup, error) {
	var group model.GPUGroup
	if err := r.DB(ctx).Where("ref = ?", ref).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *gpuRepository) ListGPUGroups(ctx context.Context) ([]*model.GPUGroup, error) {
	var groups []*model.GPUGroup
	if err := r.DB(ctx).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}
