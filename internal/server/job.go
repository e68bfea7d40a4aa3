package server

import (
	"context"
	"time"

	"xensphere/internal/job"
	"xensphere/pkg/log"

	"github.com/go-co-op/gocron"
)

type JobServer struct {
	log       *log.Logger
	scheduler *gocron.Scheduler
	sweeper   *job.MigrateSweeper
}

func NewJobServer(
	log *log.Logger,
	sweeper *job.MigrateSweeper,
) *JobServer {
	return &JobServer{
		log:     log,
		sweeper: sweeper,
	}
}

func (j *JobServer) Start(ctx context.Context) error {
	j.scheduler = gocron.NewScheduler(time.UTC)

	// 周期扫掉崩溃迁移留下的 datapath 与僵死任务
	if _, err := j.scheduler.Every(5).Minutes().Do(func() {
		j.sweeper.Sweep(ctx)
	}); err != nil {
		return err
	}

	j.scheduler.StartBlocking()
	return nil
}

func (j *JobServer) Stop(ctx context.Context) error {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
	j.log.Info("job server stop")
	return nil
}
