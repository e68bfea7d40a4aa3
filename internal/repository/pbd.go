package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type PBDRepository interface {
	Create(ctx context.Context, pbd *model.PBD) error
	Update(ctx context.Context, pbd *model.PBD) error
	ListBySR(ctx context.Context, srRef string) ([]*model.PBD, error)
	GetBySRAndHost(ctx context.Context, srRef, hostRef string) (*model.PBD, error)
}

func NewPBDRepository(r *Repository) PBDRepository {
	return &pbdRepository{Repository: r}
}

type pbdRepository struct {
	*Repository
}

func (r *pbdRepository) Create(ctx context.Context, pbd *model.PBD) error {
	return r.DB(ctx).Create(pbd).Error
}

func (r *pbdRepository) Update(ctx context.Context, pbd *model.PBD) error {
	return r.DB(ctx).Save(pbd).Error
}

func (r *pbdRepository) ListBySR(ctx context.Context, srRef string) ([]*model.PBD, error) {
	var pbds []*model.PBD
	if err := r.DB(ctx).Where("sr_ref = ?", srRef).Find(&pbds).Error; err != nil {
		return nil, err
	}
	return pbds, nil
}

func (r *pbdRepository) GetBySRAndHost(ctx context.Context, srRef, hostRef string) (*model.PBD, error) {
	var pbd model.PBD
	if err := r.DB(ctx).Where("sr_ref = ? AND host_ref = ?", srRef, hostRef).First(&pbd).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pbd, nil
}
