package router

import (
	"xensphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitTaskRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// 进度 WebSocket 同域连接，不走 StrictAuth
	r.Group("/tasks").GET("/progress/ws", deps.TaskHandler.TaskProgressWS)

	strictAuthRouter := r.Group("/tasks").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.GET("/:ref", deps.TaskHandler.GetTask)
		strictAuthRouter.POST("/:ref/cancel", deps.TaskHandler.CancelTask)
	}
}
