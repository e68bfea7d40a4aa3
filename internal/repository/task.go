package repository

import (
	"context"
	"errors"

	"xensphere/internal/model"

	"gorm.io/gorm"
)

type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	GetByRef(ctx context.Context, ref string) (*model.Task, error)
	ListByStatus(ctx context.Context, status string) ([]*model.Task, error)
}

func NewTaskRepository(r *Repository) TaskRepository {
	return &taskRepository{Repository: r}
}

type taskRepository struct {
	*Repository
}

func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.DB(ctx).Create(task).Error
}

func (r *taskRepository) Update(ctx context.Context, task *model.Task) error {
	return r.DB(ctx).Save(task).Error
}

func (r *taskRepository) GetByRef(ctx context.Context, ref string) (*model.Task, error) {
	var task model.Task
	if err := r.DB(ctx).Where("ref = ?", ref).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListByStatus(ctx context.Context, status string) ([]*model.Task, error) {
	var tasks []*model.Task
	if err := r.DB(ctx).Where("status = ?", status).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
