package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type PoolRepository interface {
	Create(ctx context.Context, pool *model.Pool) error
	Update(ctx context.Context, pool *model.Pool) error
	GetCurrent(ctx context.Context) (*model.Pool, error)
}

func NewPoolRepository(r *Repository) PoolRepository {
	return &poolRepository{Repository: r}
}

type poolRepository struct {
	*Repository
}

func (r *poolRepository) Create(ctx context.Context, pool *model.Pool) error {
	return r.DB(ctx).Create(pool).Error
}

func (r *poolRepository) Update(ctx context.Context, pool *model.Pool) error {
	return r.DB(ctx).Save(pool).Error
}

// GetCurrent 本池在库里只有一行
func (r *poolRepository) GetCurrent(ctx context.Context) (*model.Pool, error) {
	var pool model.Pool
	if err := r.DB(ctx).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}
