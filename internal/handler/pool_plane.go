package handler

import (
	"net/http"

	v1 "xensphere/api/v1"
	"xensphere/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PoolPlaneHandler 本池作为迁移目的地时被远端池调用的端点
type PoolPlaneHandler struct {
	*Handler
	planeService service.PoolPlaneService
}

func NewPoolPlaneHandler(handler *Handler, planeService service.PoolPlaneService) *PoolPlaneHandler {
	return &PoolPlaneHandler{
		Handler:      handler,
		planeService: planeService,
	}
}

// GetPool godoc
// @Summary 本池信息（跨池迁移引导用）
// @Tags 池管理面
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.GetPoolResponse
// @Router /api/v1/pools/current [get]
func (h *PoolPlaneHandler) GetPool(ctx *gin.Context) {
	detail, err := h.planeService.GetPool(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, detail)
}

// GetHost godoc
// @Summary 宿主机信息
// @Tags 池管理面
// @Produce json
// @Security Bearer
// @Param ref path string true "宿主机引用"
// @Success 200 {object} v1.GetHostResponse
// @Router /api/v1/hosts/{ref} [get]
func (h *PoolPlaneHandler) GetHost(ctx *gin.Context) {
	detail, err := h.planeService.GetHost(ctx, ctx.Param("ref"))
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, detail)
}

// GetSR godoc
// @Summary SR 信息（能力集校验用）
// @Tags 池管理面
// @Produce json
// @Security Bearer
// @Param ref path string true "SR引用"
// @Success 200 {object} v1.GetSRResponse
// @Router /api/v1/srs/{ref} [get]
func (h *PoolPlaneHandler) GetSR(ctx *gin.Context) {
	detail, err := h.planeService.GetSR(ctx, ctx.Param("ref"))
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, detail)
}

// GetNetwork godoc
// @Summary 网络信息（取网桥名）
// @Tags 池管理面
// @Produce json
// @Security Bearer
// @Param ref path string true "网络引用"
// @Success 200 {object} v1.Response
// @Router /api/v1/networks/{ref} [get]
func (h *PoolPlaneHandler) GetNetwork(ctx *gin.Context) {
	detail, err := h.planeService.GetNetwork(ctx, ctx.Param("ref"))
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, detail)
}

// ImportMetadata godoc
// @Summary 跨池元数据导入（dry_run 只做冲突探测）
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.ImportMetadataRequest true "params"
// @Success 200 {object} v1.ImportMetadataResponse
// @Router /api/v1/vms/import-metadata [post]
func (h *PoolPlaneHandler) ImportMetadata(ctx *gin.Context) {
	req := new(v1.ImportMetadataRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.planeService.ImportMetadata(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("planeService.ImportMetadata error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// ScanSR godoc
// @Summary 扫描 SR
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.SRScanRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/srs/scan [post]
func (h *PoolPlaneHandler) ScanSR(ctx *gin.Context) {
	req := new(v1.SRScanRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.ScanSR(ctx, req.SR); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// VDIByLocation godoc
// @Summary 按 (location, SR) 查 VDI
// @Tags 池管理面
// @Produce json
// @Security Bearer
// @Param sr query string true "SR引用"
// @Param location query string true "存储面定位符"
// @Success 200 {object} v1.VDIQueryResponse
// @Router /api/v1/vdis/by-location [get]
func (h *PoolPlaneHandler) VDIByLocation(ctx *gin.Context) {
	srRef := ctx.Query("sr")
	location := ctx.Query("location")
	if srRef == "" || location == "" {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	record, err := h.planeService.VDIByLocation(ctx, srRef, location)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, record)
}

// DestroyVDI godoc
// @Summary 销毁 VDI（跨池回滚）
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.VDIDestroyRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/vdis/destroy [post]
func (h *PoolPlaneHandler) DestroyVDI(ctx *gin.Context) {
	req := new(v1.VDIDestroyRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.DestroyVDI(ctx, req.VDI); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// DestroyVMByUUID godoc
// @Summary 按 UUID 销毁 VM（跨池回滚）
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.VMDestroyByUUIDRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/vms/destroy-by-uuid [post]
func (h *PoolPlaneHandler) DestroyVMByUUID(ctx *gin.Context) {
	req := new(v1.VMDestroyByUUIDRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.DestroyVMByUUID(ctx, req.UUID); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// SetHaAlwaysRun godoc
// @Summary 恢复 HA 标记
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.VMSetHaAlwaysRunRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/vms/set-ha-always-run [post]
func (h *PoolPlaneHandler) SetHaAlwaysRun(ctx *gin.Context) {
	req := new(v1.VMSetHaAlwaysRunRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.SetHaAlwaysRun(ctx, req.UUID, req.Value); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// ReceiveMessage godoc
// @Summary 接收池消息复制
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.MessagePushRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/messages [post]
func (h *PoolPlaneHandler) ReceiveMessage(ctx *gin.Context) {
	req := new(v1.MessagePushRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.ReceiveMessage(ctx, req); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// ReceiveBlob godoc
// @Summary 接收 blob 复制
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.BlobPushRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/blobs [post]
func (h *PoolPlaneHandler) ReceiveBlob(ctx *gin.Context) {
	req := new(v1.BlobPushRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.ReceiveBlob(ctx, req); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// ReceiveRRD godoc
// @Summary 接收指标存档转移
// @Tags 池管理面
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.Response
// @Router /api/v1/rrds/transfer [post]
func (h *PoolPlaneHandler) ReceiveRRD(ctx *gin.Context) {
	var req struct {
		VMUUID string `json:"vm_uuid" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}
	if err := h.planeService.ReceiveRRD(ctx, req.VMUUID); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}
