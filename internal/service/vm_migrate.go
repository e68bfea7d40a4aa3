package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/log"
	"xensphere/pkg/pool"
	"xensphere/pkg/smapi"
	"xensphere/pkg/xenops"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type VMMigrateService interface {
	MigrateSend(ctx context.Context, req *v1.MigrateSendRequest) (*v1.MigrateSendResponseData, error)
	AssertCanMigrate(ctx context.Context, req *v1.AssertCanMigrateRequest) error
	PoolMigrate(ctx context.Context, req *v1.PoolMigrateRequest) (string, error)
	PoolMigrateComplete(ctx context.Context, vmRefOrUUID, hostRef string) error
	VDIPoolMigrate(ctx context.Context, req *v1.VDIPoolMigrateRequest) (string, error)
}

// 代理客户端工厂的缺省实现，wire 装配时注入
func NewSMAPIFactory() smapi.Factory {
	return smapi.NewHTTPClient
}

func NewXenopsFactory() xenops.Factory {
	return xenops.NewHTTPClient
}

func NewPoolFactory() pool.Factory {
	return pool.NewClient
}

func NewVMMigrateService(
	service *Service,
	conf *viper.Viper,
	vmRepo repository.VMRepository,
	vbdRepo repository.VBDRepository,
	vdiRepo repository.VDIRepository,
	srRepo repository.SRRepository,
	pbdRepo repository.PBDRepository,
	vifRepo repository.VIFRepository,
	networkRepo repository.NetworkRepository,
	gpuRepo repository.GPURepository,
	hostRepo repository.HostRepository,
	poolRepo repository.PoolRepository,
	taskRepo repository.TaskRepository,
	messageRepo repository.MessageRepository,
	smapiNew smapi.Factory,
	xenopsNew xenops.Factory,
	poolNew pool.Factory,
	suppressor *xenops.EventSuppressor,
	throttle *MigrateThrottle,
	logger *log.Logger,
) VMMigrateService {
	return &vmMigrateService{
		Service:     service,
		conf:        conf,
		vmRepo:      vmRepo,
		vbdRepo:     vbdRepo,
		vdiRepo:     vdiRepo,
		srRepo:      srRepo,
		pbdRepo:     pbdRepo,
		vifRepo:     vifRepo,
		networkRepo: networkRepo,
		gpuRepo:     gpuRepo,
		hostRepo:    hostRepo,
		poolRepo:    poolRepo,
		taskRepo:    taskRepo,
		messageRepo: messageRepo,
		smapiNew:    smapiNew,
		xenopsNew:   xenopsNew,
		poolNew:     poolNew,
		suppressor:  suppressor,
		throttle:    throttle,
		logger:      logger,
	}
}

type vmMigrateService struct {
	*Service
	conf        *viper.Viper
	vmRepo      repository.VMRepository
	vbdRepo     repository.VBDRepository
	vdiRepo     repository.VDIRepository
	srRepo      repository.SRRepository
	pbdRepo     repository.PBDRepository
	vifRepo     repository.VIFRepository
	networkRepo repository.NetworkRepository
	gpuRepo     repository.GPURepository
	hostRepo    repository.HostRepository
	poolRepo    repository.PoolRepository
	taskRepo    repository.TaskRepository
	messageRepo repository.MessageRepository
	smapiNew    smapi.Factory
	xenopsNew   xenops.Factory
	poolNew     pool.Factory
	suppressor  *xenops.EventSuppressor
	throttle    *MigrateThrottle
	logger      *log.Logger
}

func (s *vmMigrateService) dbg(vm *model.VM) string {
	return fmt.Sprintf("migrate/%s", vm.UUID)
}

// MigrateSend 存储+内存迁移主入口
func (s *vmMigrateService) MigrateSend(ctx context.Context, req *v1.MigrateSendRequest) (*v1.MigrateSendResponseData, error) {
	// 1. 源 VM
	vm, err := s.vmRepo.GetByRef(ctx, req.VM)
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to get vm", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	if vm == nil {
		return nil, v1.ErrNotFound
	}

	// 2. 目的地解析与选项
	dest, err := s.resolveMigrateReceive(ctx, req.Dest)
	if err != nil {
		return nil, err
	}
	opts, err := s.parseMigrateOptions(ctx, vm, dest, req.Options)
	if err != nil {
		return nil, err
	}
	// 同池 copy 在做任何目的侧调用之前就拒绝
	if dest.IntraPool && opts.Copy {
		return nil, v1.NewMigrateError(v1.CodeOperationNotAllowed, "Copying a VM within a pool is the job of VM.copy/VM.clone")
	}

	task, err := s.createTask(ctx, "VM.migrate_send", vm.Ref)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}

	// 3. 并发闸门内执行整个协议
	var result *v1.MigrateSendResponseData
	err = s.throttle.WithSlot(func() error {
		res, gatedErr := s.migrateSendGated(ctx, task, vm, dest, req, opts)
		if gatedErr != nil {
			return gatedErr
		}
		result = res
		return nil
	})
	if err != nil {
		s.failTask(ctx, task, err)
		return nil, err
	}
	s.completeTask(ctx, task, result.VM)
	result.Task = task.Ref
	return result, nil
}

func (s *vmMigrateService) migrateSendGated(ctx context.Context, task *model.Task, vm *model.VM, dest *destDescriptor, req *v1.MigrateSendRequest, opts *migrateOptions) (*v1.MigrateSendResponseData, error) {
	// C: 补全映射
	vifMap, err := s.inferVIFMap(ctx, vm, req.VifMap)
	if err != nil {
		return nil, err
	}
	vdiMap, err := s.completeVDIMap(ctx, vm, dest, req.VdiMap)
	if err != nil {
		return nil, err
	}

	// B: 发送侧可行性（含 pGPU 兼容）
	if err := s.assertCanMigrateSender(ctx, vm, dest, vdiMap, vifMap, req.VgpuMap, opts, req.Live); err != nil {
		return nil, err
	}

	// I: vGPU PCI 映射
	vgpuPCI, err := s.vgpuPCIMap(ctx, vm.Ref)
	if err != nil {
		return nil, translateVGPUMappingError(vm.Ref)
	}

	// E 前置：换 SR 的 CD 先弹出
	if err := s.ejectCDs(ctx, vm, vdiMap); err != nil {
		return nil, err
	}

	plan, err := s.planVDITransfers(ctx, vm, dest, vdiMap)
	if err != nil {
		return nil, err
	}

	// 事件屏蔽覆盖：首次目的侧元数据写入 -> 内存迁移结束。
	// 过早恢复事件会让同步器误拆源侧 VBD。
	var (
		records   []*MirrorRecord
		destVMRef = vm.Ref
	)
	err = s.suppressor.WithSuppressed(vm.UUID, func() error {
		var innerErr error
		records, innerErr = s.runDiskTransfers(ctx, task, vm, dest, plan)
		if innerErr != nil {
			return innerErr
		}
		if innerErr = s.exnIfCancelling(ctx, task); innerErr != nil {
			return innerErr
		}

		// F: 跨池元数据转移
		if !dest.IntraPool {
			data, innerErr := s.metadataTransfer(ctx, dest, vm, records, vifMap, req.VgpuMap, &metadataTransferArgs{
				DryRun:   false,
				Live:     req.Live,
				Copy:     opts.Copy,
				CheckCPU: !opts.Force && vm.PowerState != model.PowerStateHalted,
			})
			if innerErr != nil {
				return innerErr
			}
			destVMRef = data.VM
		}

		vdiLocators, vifBridges, innerErr := s.buildXenopsMaps(ctx, vm, dest, records, vifMap)
		if innerErr != nil {
			return innerErr
		}

		// 最后一个取消检查点；内存迁移启动后任务不可取消
		if innerErr = s.exnIfCancelling(ctx, task); innerErr != nil {
			return innerErr
		}
		s.markNotCancellable(ctx, task)

		// G: 内存迁移
		return s.memoryMigrate(ctx, task, vm, dest, vdiLocators, vifBridges, vgpuPCI, opts.Compress)
	})
	if err != nil {
		return nil, s.rollbackMigrate(ctx, task, vm, dest, records, err)
	}

	// H: 成功收尾，此后的失败只记日志
	s.finalizeMigration(ctx, task, vm, dest, records, vifMap, opts)

	return &v1.MigrateSendResponseData{VM: destVMRef, Task: task.Ref}, nil
}

// AssertCanMigrate 干跑校验。幂等，无任何副作用。
func (s *vmMigrateService) AssertCanMigrate(ctx context.Context, req *v1.AssertCanMigrateRequest) error {
	vm, err := s.vmRepo.GetByRef(ctx, req.VM)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if vm == nil {
		return v1.ErrNotFound
	}
	dest, err := s.resolveMigrateReceive(ctx, req.Dest)
	if err != nil {
		return err
	}
	opts, err := s.parseMigrateOptions(ctx, vm, dest, req.Options)
	if err != nil {
		return err
	}
	vifMap, err := s.inferVIFMap(ctx, vm, req.VifMap)
	if err != nil {
		return err
	}
	vdiMap, err := s.completeVDIMap(ctx, vm, dest, req.VdiMap)
	if err != nil {
		return err
	}
	return s.assertCanMigrate(ctx, vm, dest, vdiMap, vifMap, req.VgpuMap, opts, req.Live)
}

// PoolMigrate 同池纯内存迁移（不动存储）
func (s *vmMigrateService) PoolMigrate(ctx context.Context, req *v1.PoolMigrateRequest) (string, error) {
	vm, err := s.vmRepo.GetByRef(ctx, req.VM)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	if vm == nil {
		return "", v1.ErrNotFound
	}
	host, err := s.hostRepo.GetByRef(ctx, req.Host)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	if host == nil {
		return "", v1.ErrNotFound
	}
	if host.Enabled != 1 {
		return "", v1.NewMigrateError(v1.CodeHostDisabled, host.Ref)
	}

	force := false
	if raw, ok := req.Options[OptionForce]; ok {
		val, valid := parseBoolToken(raw)
		if !valid {
			return "", v1.NewMigrateError(v1.CodeInvalidValue, OptionForce, raw)
		}
		force = val
	}
	if !force && vm.PowerState != model.PowerStateRunning {
		return "", v1.NewMigrateError(v1.CodeVMBadPowerState, vm.Ref, model.PowerStateRunning, vm.PowerState)
	}

	// 选择目的控制面地址：总是用宿主机的管理地址；指定 network 时只校验该网络存在，不按网络选地址
	address := host.Address
	if networkRef := req.Options[OptionNetwork]; networkRef != "" {
		network, err := s.networkRepo.GetByRef(ctx, networkRef)
		if err != nil {
			return "", v1.ErrInternalServerError
		}
		if network == nil || address == "" {
			return "", v1.NewMigrateError(v1.CodeHostHasNoManagementIP, host.Ref)
		}
	}
	if address == "" {
		return "", v1.NewMigrateError(v1.CodeHostHasNoManagementIP, host.Ref)
	}

	dest := &destDescriptor{
		XenopsURL:   fmt.Sprintf("http://%s:%d", address, s.conf.GetInt("agents.xenops_port")),
		DestHostRef: host.Ref,
		IntraPool:   true,
		plane:       &localPlane{s: s},
	}

	task, err := s.createTask(ctx, "VM.pool_migrate", vm.Ref)
	if err != nil {
		return "", v1.ErrInternalServerError
	}

	err = s.memoryMigrate(ctx, task, vm, dest, map[string]string{}, map[string]string{}, map[string]string{}, false)
	if err != nil {
		translated := s.translateMigrateError(task, err)
		s.failTask(ctx, task, translated)
		return "", translated
	}
	if err := s.PoolMigrateComplete(ctx, vm.Ref, host.Ref); err != nil {
		s.logger.WithContext(ctx).Warn("pool migrate complete failed", zap.Error(err), zap.String("vm", vm.Ref))
	}
	s.completeTask(ctx, task, vm.Ref)
	return task.Ref, nil
}

// PoolMigrateComplete 目的侧收尾：更新 resident-on 与电源状态；
// 调度到别的宿主机上的 vGPU 只记日志，调度字段不清除；不刷新任何缓存
func (s *vmMigrateService) PoolMigrateComplete(ctx context.Context, vmRefOrUUID, hostRef string) error {
	vm, err := s.vmRepo.GetByRef(ctx, vmRefOrUUID)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if vm == nil {
		vm, err = s.vmRepo.GetByUUID(ctx, vmRefOrUUID)
		if err != nil {
			return v1.ErrInternalServerError
		}
	}
	if vm == nil {
		return v1.ErrNotFound
	}

	vm.ResidentOn = hostRef
	vm.PowerState = model.PowerStateRunning
	vm.UpdateTime = time.Now()
	if err := s.vmRepo.Update(ctx, vm); err != nil {
		return v1.ErrInternalServerError
	}

	// 调度到别的宿主机上的 vGPU 此刻已经失效；这里只记日志，不改 vGPU 记录
	vgpus, err := s.gpuRepo.ListVGPUsByVM(ctx, vm.Ref)
	if err == nil {
		for _, vgpu := range vgpus {
			if vgpu.ScheduledPGPU == "" {
				continue
			}
			pgpu, err := s.gpuRepo.GetPGPUByRef(ctx, vgpu.ScheduledPGPU)
			if err == nil && pgpu != nil && pgpu.HostRef != hostRef {
				s.logger.WithContext(ctx).Info("vgpu scheduled on another host", zap.String("vgpu", vgpu.Ref))
			}
		}
	}

	s.logger.WithContext(ctx).Info("vm migration completed on destination",
		zap.String("vm", vm.Ref), zap.String("host", hostRef))
	return nil
}

// ---- 任务簿记 ----

func (s *vmMigrateService) createTask(ctx context.Context, name, vmRef string) (*model.Task, error) {
	ref, err := s.sid.GenRef()
	if err != nil {
		return nil, err
	}
	uuid, err := s.sid.GenString()
	if err != nil {
		return nil, err
	}
	task := &model.Task{
		Ref:         ref,
		UUID:        uuid,
		NameLabel:   name,
		Status:      model.TaskStatusPending,
		Cancellable: 1,
		OtherConfig: encodeStringMap(map[string]string{"vm": vmRef}),
		CreateTime:  time.Now(),
		UpdateTime:  time.Now(),
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *vmMigrateService) updateTaskProgress(ctx context.Context, task *model.Task, progress float64) {
	if progress > 1 {
		progress = 1
	}
	task.Progress = progress
	task.UpdateTime = time.Now()
	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.WithContext(ctx).Warn("failed to update task progress", zap.Error(err), zap.String("task", task.Ref))
	}
}

func (s *vmMigrateService) markNotCancellable(ctx context.Context, task *model.Task) {
	task.Cancellable = 0
	task.UpdateTime = time.Now()
	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.WithContext(ctx).Warn("failed to mark task not cancellable", zap.Error(err), zap.String("task", task.Ref))
	}
}

// exnIfCancelling 协作式取消检查点
func (s *vmMigrateService) exnIfCancelling(ctx context.Context, task *model.Task) error {
	fresh, err := s.taskRepo.GetByRef(ctx, task.Ref)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if fresh != nil && fresh.Status == model.TaskStatusCancelling {
		return v1.NewMigrateError(v1.CodeTaskCancelled, task.Ref)
	}
	return nil
}

func (s *vmMigrateService) completeTask(ctx context.Context, task *model.Task, result string) {
	task.Status = model.TaskStatusSuccess
	task.Progress = 1
	task.Result = result
	task.UpdateTime = time.Now()
	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.WithContext(ctx).Warn("failed to complete task", zap.Error(err), zap.String("task", task.Ref))
	}
}

func (s *vmMigrateService) failTask(ctx context.Context, task *model.Task, cause error) {
	fresh, err := s.taskRepo.GetByRef(ctx, task.Ref)
	if err == nil && fresh != nil {
		task = fresh
	}
	task.Status = model.TaskStatusFailure
	var me *v1.MigrateError
	if errors.As(cause, &me) {
		if me.Code == v1.CodeTaskCancelled {
			task.Status = model.TaskStatusCancelled
		}
		task.ErrorInfo = encodeErrorInfo(me.Code, me.Params)
	} else {
		task.ErrorInfo = encodeErrorInfo(v1.CodeInternalError, []string{cause.Error()})
	}
	task.UpdateTime = time.Now()
	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.WithContext(ctx).Warn("failed to record task failure", zap.Error(err), zap.String("task", task.Ref))
	}
}
