package handler

import (
	"net/http"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type TaskHandler struct {
	*Handler
	taskService service.TaskService
	upgrader    websocket.Upgrader
}

func NewTaskHandler(handler *Handler, taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		Handler:     handler,
		taskService: taskService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// GetTask godoc
// @Summary 任务详情
// @Tags 任务模块
// @Produce json
// @Security Bearer
// @Param ref path string true "任务引用"
// @Success 200 {object} v1.GetTaskResponse
// @Router /api/v1/tasks/{ref} [get]
func (h *TaskHandler) GetTask(ctx *gin.Context) {
	detail, err := h.taskService.GetTask(ctx, ctx.Param("ref"))
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, detail)
}

// CancelTask godoc
// @Summary 取消任务（协作式，迁移线程在检查点退出）
// @Tags 任务模块
// @Produce json
// @Security Bearer
// @Param ref path string true "任务引用"
// @Success 200 {object} v1.Response
// @Router /api/v1/tasks/{ref}/cancel [post]
func (h *TaskHandler) CancelTask(ctx *gin.Context) {
	if err := h.taskService.CancelTask(ctx, ctx.Param("ref")); err != nil {
		h.logger.WithContext(ctx).Error("taskService.CancelTask error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// TaskProgressWS 通过 WebSocket 推送任务进度，任务进入终态后关闭。
// 浏览器 WebSocket 不便携带 Authorization header，这里用 query 里的任务引用。
func (h *TaskHandler) TaskProgressWS(ctx *gin.Context) {
	ref := ctx.Query("ref")
	if ref == "" {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.WithContext(ctx).Error("failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		detail, err := h.taskService.GetTask(ctx, ref)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		if err := conn.WriteJSON(detail); err != nil {
			return
		}
		switch detail.Status {
		case model.TaskStatusSuccess, model.TaskStatusFailure, model.TaskStatusCancelled:
			return
		}
	}
}
