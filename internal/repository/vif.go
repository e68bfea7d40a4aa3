package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type VIFRepository interface {
	Create(ctx context.Context, vif *model.VIF) error
	GetByRef(ctx context.Context, ref string) (*model.VIF, error)
	ListByVM(ctx context.Context, vmRef string) ([]*model.VIF, error)
	DeleteByVM(ctx context.Context, vmRef string) error
}

func NewVIFRepository(r *Repository) VIFRepository {
	return &vifRepository{Repository: r}
}

type vifRepository struct {
	*Repository
}

func (r *vifRepository) Create(ctx context.Context, vif *model.VIF) error {
	return r.DB(ctx).Create(vif).Error
}

func (r *vifRepository) GetByRef(ctx context.Context, ref string) (*model.VIF, error) {
	var vif model.VIF
	if err := r.DB(ctx).Where("ref = ?", ref).First(&vif).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vif, nil
}

func (r *vifRepository) ListByVM(ctx context.Context, vmRef string) ([]*model.VIF, error) {
	var vifs []*model.VIF
	if err := r.DB(ctx).Where("vm_ref = ?", vmRef).Find(&vifs).Error; err != nil {
		return nil, err
	}
	return vifs, nil
}

func (r *vifRepository) DeleteByVM(ctx context.Context, vmRef string) error {
	return r.DB(ctx).Where("vm_ref = ?", vmRef).Delete(&model.VIF{}).Error
}

type NetworkRepository interface {
	Create(ctx context.Context, network *model.Network) error
	GetByRef(ctx context.Context, ref string) (*model.Network, error)
	List(ctx context.Context) ([]*model.Network, error)
}

func NewNetworkRepository(r *Repository) NetworkRepository {
	return &networkRepository{Repository: r}
}

type networkRepository struct {
	*Repository
}

func (r *networkRepository) Create(ctx context.Context, network *model.Network) error {
	return r.DB(ctx).Create(network).Error
}

func (r *networkRepository) GetByRef(ctx context.Context, ref string) (*model.Network, error) {
	var network model.Network
	if err := r.DB(ctx).Where("ref = ?", ref).First(&network).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &network, nil
}

func (r *networkRepository) List(ctx context.Context) ([]*model.Network, error) {
	var networks []*model.Network
	if err := r.DB(ctx).Find(&networks).Error; err != nil {
		return nil, err
	}
	return networks, nil
}
