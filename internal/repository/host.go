package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type HostRepository interface {
	Create(ctx context.Context, host *model.Host) error
	Update(ctx context.Context, host *model.Host) error
	GetByRef(ctx context.Context, ref string) (*model.Host, error)
	GetByUUID(ctx context.Context, uuid string) (*model.Host, error)
	GetCoordinator(ctx context.Context) (*model.Host, error)
	List(ctx context.Context) ([]*model.Host, error)
}

func NewHostRepository(r *Repository) HostRepository {
	return &hostRepository{Repository: r}
}

type hostRepository struct {
	*Repository
}

func (r *hostRepository) Create(ctx context.Context, host *model.Host) error {
	return r.DB(ctx).Create(host).Error
}

func (r *hostRepository) Update(ctx context.Context, host *model.Host) error {
	return r.DB(ctx).Save(host).Error
}

func (r *hostRepository) GetByRef(ctx context.Context, ref string) (*model.Host, error) {
	var host model.Host
	if err := r.DB(ctx).Where("ref = ?", ref).First(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &host, nil
}

func (r *hostRepository) GetByUUID(ctx context.Context, uuid string) (*model.Host, error) {
	var host model.Host
	if err := r.DB(ctx).Where("uuid = ?", uuid).First(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &host, nil
}

func (r *hostRepository) GetCoordinator(ctx context.Context) (*model.Host, error) {
	var host model.Host
	if err := r.DB(ctx).Where("is_coordinator = 1").First(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &host, nil
}

func (r *hostRepository) List(ctx context.Context) ([]*model.Host, error) {
	var hosts []*model.Host
	if err := r.DB(ctx).Find(&hosts).Error; err != nil {
		return nil, err
	}
	return hosts, nil
}
