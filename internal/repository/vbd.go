package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type VBDRepository interface {
	Create(ctx context.Context, vbd *model.VBD) error
	Update(ctx context.Context, vbd *model.VBD) error
	GetByRef(ctx context.Context, ref string) (*model.VBD, error)
	ListByVM(ctx context.Context, vmRef string) ([]*model.VBD, error)
	DeleteByVM(ctx context.Context, vmRef string) error
}

func NewVBDRepository(r *Repository) VBDRepository {
	return &vbdRepository{Repository: r}
}

type vbdRepository struct {
	*Repository
}

func (r *vbdRepository) Create(ctx context.Context, vbd *model.VBD) error {
	return r.DB(ctx).Create(vbd).Error
}

func (r *vbdRepository) Update(ctx context.Context, vbd *model.VBD) error {
	return r.DB(ctx).Save(vbd).Error
}

func (r *vbdRepository) GetByRef(ctx context.Context, ref string) (*model.VBD, error) {
	var vbd model.VBD
	if err := r.DB(ctx).Where("ref = ?", ref).First(&vbd).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vbd, nil
}

func (r *vbdRepository) ListByVM(ctx context.Context, vmRef string) ([]*model.VBD, error) {
	var vbds []*model.VBD
	if err := r.DB(ctx).Where("vm_ref = ?", vmRef).Find(&vbds).Error; err != nil {
		return nil, err
	}
	return vbds, nil
}

func (r *vbdRepository) DeleteByVM(ctx context.Context, vmRef string) error {
	return r.DB(ctx).Where("vm_ref = ?", vmRef).Delete(&model.VBD{}).Error
}
