package job

import (
	"context"
	"time"

	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/log"
	"xensphere/pkg/smapi"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// staleTaskThreshold 超过这个时长没有进度更新的迁移任务视为遗留
const staleTaskThreshold = 2 * time.Hour

// MigrateSweeper 清理崩溃迁移留下的残骸：僵死的迁移任务标失败，
// 任务登记过的 datapath 尽力拆除。
type MigrateSweeper struct {
	*Job
	conf     *viper.Viper
	taskRepo repository.TaskRepository
	smapiNew smapi.Factory
	logger   *log.Logger
}

func NewMigrateSweeper(
	job *Job,
	conf *viper.Viper,
	taskRepo repository.TaskRepository,
	smapiNew smapi.Factory,
	logger *log.Logger,
) *MigrateSweeper {
	return &MigrateSweeper{
		Job:      job,
		conf:     conf,
		taskRepo: taskRepo,
		smapiNew: smapiNew,
		logger:   logger,
	}
}

func (s *MigrateSweeper) Sweep(ctx context.Context) {
	tasks, err := s.taskRepo.ListByStatus(ctx, model.TaskStatusPending)
	if err != nil {
		s.logger.Error("sweeper failed to list tasks", zap.Error(err))
		return
	}
	for _, task := range tasks {
		if time.Since(task.UpdateTime) < staleTaskThreshold {
			continue
		}
		s.logger.Warn("sweeping stale migration task",
			zap.String("task", task.Ref), zap.Time("last_update", task.UpdateTime))

		s.destroyLeakedDatapaths(ctx, task)

		task.Status = model.TaskStatusFailure
		task.ErrorInfo = `["internal_error","migration task abandoned"]`
		task.UpdateTime = time.Now()
		if err := s.taskRepo.Update(ctx, task); err != nil {
			s.logger.Error("sweeper failed to fail task", zap.Error(err), zap.String("task", task.Ref))
		}
	}
}

// destroyLeakedDatapaths 任务 other_config 里登记的 datapath 逐个拆
func (s *MigrateSweeper) destroyLeakedDatapaths(ctx context.Context, task *model.Task) {
	oc := map[string]string{}
	if task.OtherConfig != "" {
		oc = decodeOtherConfig(task.OtherConfig)
	}
	dps, ok := oc["migrate_dps"]
	if !ok || dps == "" {
		return
	}
	smc, err := s.smapiNew(s.conf.GetString("agents.smapi_url"))
	if err != nil {
		return
	}
	for _, dp := range splitList(dps) {
		if err := smc.DPDestroy(ctx, "sweeper", dp, true); err != nil {
			s.logger.Warn("sweeper failed to destroy datapath", zap.Error(err), zap.String("dp", dp))
		}
	}
}
