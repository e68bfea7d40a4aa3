package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type SRRepository interface {
	Create(ctx context.Context, sr *model.SR) error
	GetByRef(ctx context.Context, ref string) (*model.SR, error)
	GetByUUID(ctx context.Context, uuid string) (*model.SR, error)
}

func NewSRRepository(r *Repository) SRRepository {
	return &srRepository{Repository: r}
}

type srRepository struct {
	*Repository
}

func (r *srRepository) Create(ctx context.Context, sr *model.SR) error {
	return r.DB(ctx).Create(sr).Error
}

func (r *srRepository) GetByRef(ctx context.Context, ref string) (*model.SR, error) {
	var sr model.SR
	if err := r.DB(ctx).Where("ref = ?", ref).First(&sr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sr, nil
}

func (r *srRepository) GetByUUID(ctx context.Context, uuid string) (*model.SR, error) {
	var sr model.SR
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&sr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sr, nil
}
