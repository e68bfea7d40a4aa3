package service

import (
	"context"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/log"
)

type TaskService interface {
	GetTask(ctx context.Context, ref string) (*v1.TaskDetail, error)
	CancelTask(ctx context.Context, ref string) error
}

func NewTaskService(service *Service, taskRepo repository.TaskRepository, logger *log.Logger) TaskService {
	return &taskService{
		Service:  service,
		taskRepo: taskRepo,
		logger:   logger,
	}
}

type taskService struct {
	*Service
	taskRepo repository.TaskRepository
	logger   *log.Logger
}

func (s *taskService) GetTask(ctx context.Context, ref string) (*v1.TaskDetail, error) {
	task, err := s.taskRepo.GetByRef(ctx, ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if task == nil {
		return nil, v1.ErrNotFound
	}
	return &v1.TaskDetail{
		Ref:         task.Ref,
		UUID:        task.UUID,
		NameLabel:   task.NameLabel,
		Status:      task.Status,
		Progress:    task.Progress,
		Cancellable: task.Cancellable == 1,
		Result:      task.Result,
		ErrorInfo:   decodeStringSlice(task.ErrorInfo),
		OtherConfig: decodeStringMap(task.OtherConfig),
	}, nil
}

// CancelTask 协作式取消：只竖标记，迁移线程在检查点自行退出
func (s *taskService) CancelTask(ctx context.Context, ref string) error {
	task, err := s.taskRepo.GetByRef(ctx, ref)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if task == nil {
		return v1.ErrNotFound
	}
	if task.Status != model.TaskStatusPending {
		return v1.NewMigrateError(v1.CodeOperationNotAllowed, "task is not running")
	}
	if task.Cancellable != 1 {
		return v1.NewMigrateError(v1.CodeOperationNotAllowed, "task can no longer be cancelled")
	}
	task.Status = model.TaskStatusCancelling
	task.UpdateTime = time.Now()
	return s.taskRepo.Update(ctx, task)
}
