package handler

import (
	"net/http"

	v1 "xensphere/api/v1"
	"xensphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type VMMigrateHandler struct {
	*Handler
	migrateService service.VMMigrateService
}

func NewVMMigrateHandler(handler *Handler, migrateService service.VMMigrateService) *VMMigrateHandler {
	return &VMMigrateHandler{
		Handler:        handler,
		migrateService: migrateService,
	}
}

// MigrateSend godoc
// @Summary 存储+内存迁移（同池或跨池）
// @Tags 迁移模块
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.MigrateSendRequest true "params"
// @Success 200 {object} v1.MigrateSendResponse
// @Router /api/v1/vms/migrate-send [post]
func (h *VMMigrateHandler) MigrateSend(ctx *gin.Context) {
	req := new(v1.MigrateSendRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.migrateService.MigrateSend(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("migrateService.MigrateSend error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// AssertCanMigrate godoc
// @Summary 迁移可行性干跑校验
// @Tags 迁移模块
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.AssertCanMigrateRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/vms/assert-can-migrate [post]
func (h *VMMigrateHandler) AssertCanMigrate(ctx *gin.Context) {
	req := new(v1.AssertCanMigrateRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.migrateService.AssertCanMigrate(ctx, req); err != nil {
		h.logger.WithContext(ctx).Error("migrateService.AssertCanMigrate error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// PoolMigrate godoc
// @Summary 同池纯内存迁移
// @Tags 迁移模块
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.PoolMigrateRequest true "params"
// @Success 200 {object} v1.PoolMigrateResponse
// @Router /api/v1/vms/pool-migrate [post]
func (h *VMMigrateHandler) PoolMigrate(ctx *gin.Context) {
	req := new(v1.PoolMigrateRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	taskRef, err := h.migrateService.PoolMigrate(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("migrateService.PoolMigrate error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, taskRef)
}

// PoolMigrateComplete godoc
// @Summary 目的侧迁移完成回调
// @Tags 迁移模块
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.PoolMigrateCompleteRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/vms/pool-migrate-complete [post]
func (h *VMMigrateHandler) PoolMigrateComplete(ctx *gin.Context) {
	req := new(v1.PoolMigrateCompleteRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.migrateService.PoolMigrateComplete(ctx, req.VM, req.Host); err != nil {
		h.logger.WithContext(ctx).Error("migrateService.PoolMigrateComplete error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// VDIPoolMigrate godoc
// @Summary 在线单盘迁移
// @Tags 迁移模块
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.VDIPoolMigrateRequest true "params"
// @Success 200 {object} v1.VDIPoolMigrateResponse
// @Router /api/v1/vdis/pool-migrate [post]
func (h *VMMigrateHandler) VDIPoolMigrate(ctx *gin.Context) {
	req := new(v1.VDIPoolMigrateRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	newVDI, err := h.migrateService.VDIPoolMigrate(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("migrateService.VDIPoolMigrate error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, v1.VDIPoolMigrateResponseData{VDI: newVDI})
}
