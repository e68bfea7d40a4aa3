package repository

import (
	"context"

	"xensphere/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	ListByObjUUID(ctx context.Context, objUUID string) ([]*model.Message, error)
	DeleteByObjUUID(ctx context.Context, objUUID string) error
	CreateBlob(ctx context.Context, blob *model.Blob) error
	ListBlobsByVMUUID(ctx context.Context, vmUUID string) ([]*model.Blob, error)
}

func NewMessageRepository(r *Repository) MessageRepository {
	return &messageRepository{Repository: r}
}

type messageRepository struct {
	*Repository
}

func (r *messageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.DB(ctx).Create(message).Error
}

func (r *messageRepository) ListByObjUUID(ctx context.Context, objUUID string) ([]*model.Message, error) {
	var messages []*model.Message
	if err := r.DB(ctx).Where("obj_uuid = ?", objUUID).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) DeleteByObjUUID(ctx context.Context, objUUID string) error {
	return r.DB(ctx).Where("obj_uuid = ?", objUUID).Delete(&model.Message{}).Error
}

func (r *messageRepository) CreateBlob(ctx context.Context, blob *model.Blob) error {
	return r.DB(ctx).Create(blob).Error
}

func (r *messageRepository) ListBlobsByVMUUID(ctx context.Context, vmUUID string) ([]*model.Blob, error) {
	var blobs []*model.Blob
	if err := r.DB(ctx).Where("vm_uuid = ?", vmUUID).Find(&blobs).Error; err != nil {
		return nil, err
	}
	return blobs, nil
}
