package controller

import (
	"context"
	"fmt"
	"time"

	"xensphere/internal/controller/informer"
	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/hash"
	"xensphere/pkg/log"
	"xensphere/pkg/xenops"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// XenopsController 监听控制代理上的域状态，把电源状态同步进集群库。
// 处于迁移事件屏蔽中的 VM 一律跳过：迁移窗口内域会短暂消失，
// 这时照常同步会把源侧 VBD 当作失效附件拆掉。
type XenopsController struct {
	conf       *viper.Viper
	vmRepo     repository.VMRepository
	vbdRepo    repository.VBDRepository
	suppressor *xenops.EventSuppressor
	xenopsNew  xenops.Factory
	logger     *log.Logger
	inf        informer.Informer
}

func NewXenopsController(
	conf *viper.Viper,
	vmRepo repository.VMRepository,
	vbdRepo repository.VBDRepository,
	suppressor *xenops.EventSuppressor,
	logger *log.Logger,
) *XenopsController {
	c := &XenopsController{
		conf:       conf,
		vmRepo:     vmRepo,
		vbdRepo:    vbdRepo,
		suppressor: suppressor,
		xenopsNew:  xenops.NewHTTPClient,
		logger:     logger,
	}
	c.inf = informer.NewInformer(
		"xenops-vm",
		&vmListWatcher{controller: c},
		vmKeyFunc,
		logger,
		time.Duration(conf.GetInt("controller.resync_seconds"))*time.Second,
	)
	c.inf.AddEventHandler(&vmSyncHandler{controller: c})
	return c
}

func (c *XenopsController) Start(ctx context.Context) error {
	c.inf.Run(ctx)
	<-ctx.Done()
	return nil
}

func (c *XenopsController) Stop(ctx context.Context) error {
	c.inf.Stop()
	return nil
}

func vmKeyFunc(obj interface{}) (string, error) {
	info, ok := obj.(xenops.VMInfo)
	if !ok {
		return "", fmt.Errorf("unexpected object type %T", obj)
	}
	return info.UUID, nil
}

// vmListWatcher 控制代理没有真正的 watch 流，用轮询模拟
type vmListWatcher struct {
	controller *XenopsController
}

func (w *vmListWatcher) List(ctx context.Context) ([]interface{}, error) {
	client, err := w.controller.xenopsNew(w.controller.conf.GetString("agents.xenops_url"))
	if err != nil {
		return nil, err
	}
	infos, err := client.VMList(ctx, "controller")
	if err != nil {
		return nil, err
	}
	items := make([]interface{}, 0, len(infos))
	for _, info := range infos {
		items = append(items, info)
	}
	return items, nil
}

func (w *vmListWatcher) Watch(ctx context.Context, version string) (string, []interface{}, error) {
	items, err := w.List(ctx)
	if err != nil {
		return version, nil, err
	}
	// 以列表指纹当版本号，变了才回放
	fingerprint := fmt.Sprintf("%d", len(items))
	for _, item := range items {
		info := item.(xenops.VMInfo)
		fingerprint += "/" + info.UUID + ":" + info.PowerState
	}
	if fingerprint == version {
		return version, nil, nil
	}
	return fingerprint, items, nil
}

func (w *vmListWatcher) GetResourceVersion(obj interface{}) string {
	return ""
}

// vmSyncHandler 把域状态写回集群库
type vmSyncHandler struct {
	controller *XenopsController
}

func (h *vmSyncHandler) OnAdd(obj interface{}) error {
	return h.sync(obj)
}

func (h *vmSyncHandler) OnUpdate(_, newObj interface{}) error {
	return h.sync(newObj)
}

// OnDelete 域从代理上消失。迁移屏蔽中的 VM 不动——此刻源域消失是切换的正常环节
func (h *vmSyncHandler) OnDelete(obj interface{}) error {
	info, ok := obj.(xenops.VMInfo)
	if !ok {
		return nil
	}
	c := h.controller
	if c.suppressor.Suppressed(info.UUID) {
		c.logger.Debug("vm events suppressed, skipping delete sync", zap.String("vm", info.UUID))
		return nil
	}
	ctx := context.Background()
	vm, err := c.vmRepo.GetByUUID(ctx, info.UUID)
	if err != nil || vm == nil {
		return err
	}
	vm.PowerState = model.PowerStateHalted
	vm.ResidentOn = ""
	vm.UpdateTime = time.Now()
	if err := c.vmRepo.Update(ctx, vm); err != nil {
		return err
	}
	c.logger.Info("vm domain vanished, marked halted", zap.String("vm", info.UUID))
	return nil
}

func (h *vmSyncHandler) sync(obj interface{}) error {
	info, ok := obj.(xenops.VMInfo)
	if !ok {
		return nil
	}
	c := h.controller
	if c.suppressor.Suppressed(info.UUID) {
		c.logger.Debug("vm events suppressed, skipping sync", zap.String("vm", info.UUID))
		return nil
	}
	ctx := context.Background()
	vm, err := c.vmRepo.GetByUUID(ctx, info.UUID)
	if err != nil || vm == nil {
		return err
	}
	// 指纹没变就不写库
	fingerprint, err := hash.CalculateResourceHash(info)
	if err == nil && fingerprint == vm.ResourceHash {
		return nil
	}
	vm.PowerState = info.PowerState
	vm.ResourceHash = fingerprint
	vm.LastSyncTime = time.Now()
	vm.UpdateTime = time.Now()
	if err := c.vmRepo.Update(ctx, vm); err != nil {
		return err
	}
	c.logger.Info("vm power state synced",
		zap.String("vm", info.UUID), zap.String("power_state", info.PowerState))
	return nil
}
