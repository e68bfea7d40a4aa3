package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type VDIRepository interface {
	Create(ctx context.Context, vdi *model.VDI) error
	Update(ctx context.Context, vdi *model.VDI) error
	Delete(ctx context.Context, ref string) error
	GetByRef(ctx context.Context, ref string) (*model.VDI, error)
	GetByUUID(ctx context.Context, uuid string) (*model.VDI, error)
	ListByLocation(ctx context.Context, location, srRef string) ([]*model.VDI, error)
	ListBySR(ctx context.Context, srRef string) ([]*model.VDI, error)
}

func NewVDIRepository(r *Repository) VDIRepository {
	return &vdiRepository{Repository: r}
}

type vdiRepository struct {
	*Repository
}

func (r *vdiRepository) Create(ctx context.Context, vdi *model.VDI) error {
	return r.DB(ctx).Create(vdi).Error
}

func (r *vdiRepository) Update(ctx context.Context, vdi *model.VDI) error {
	return r.DB(ctx).Save(vdi).Error
}

func (r *vdiRepository) Delete(ctx context.Context, ref string) error {
	return r.DB(ctx).Where("ref = ?", ref).Delete(&model.VDI{}).Error
}

func (r *vdiRepository) GetByRef(ctx context.Context, ref string) (*model.VDI, error) {
	var vdi model.VDI
	if err := r.DB(ctx).Where("ref = ?", ref).First(&vdi).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vdi, nil
}

func (r *vdiRepository) GetByUUID(ctx context.Context, uuid string) (*model.VDI, error) {
	var vdi model.VDI
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&vdi).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vdi, nil
}

func (r *vdiRepository) ListByLocation(ctx context.Context, location, srRef string) ([]*model.VDI, error) {
	var vdis []*model.VDI
	if err := r.DB(ctx).Where("location = ? AND sr_ref = ?", location, srRef).Find(&vdis).Error; err != nil {
		return nil, err
	}
	return vdis, nil
}

func (r *vdiRepository) ListBySR(ctx context.Context, srRef string) ([]*model.VDI, error) {
	var vdis []*model.VDI
	if err := r.DB(ctx).Where("sr_ref = ?", srRef).Find(&vdis).Error; err != nil {
		return nil, err
	}
	return vdis, nil
}
