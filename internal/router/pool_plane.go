package router

import (
	"xensphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

// InitPoolPlaneRouter 跨池迁移时被远端池调用的管理面端点，
// 鉴权使用握手里的 session_id（即本池签出的 token）
func InitPoolPlaneRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.GET("/pools/current", deps.PoolPlaneHandler.GetPool)
		strictAuthRouter.GET("/hosts/:ref", deps.PoolPlaneHandler.GetHost)
		strictAuthRouter.GET("/srs/:ref", deps.PoolPlaneHandler.GetSR)
		strictAuthRouter.POST("/srs/scan", deps.PoolPlaneHandler.ScanSR)
		strictAuthRouter.GET("/networks/:ref", deps.PoolPlaneHandler.GetNetwork)
		strictAuthRouter.POST("/vms/import-metadata", deps.PoolPlaneHandler.ImportMetadata)
		strictAuthRouter.POST("/vms/destroy-by-uuid", deps.PoolPlaneHandler.DestroyVMByUUID)
		strictAuthRouter.POST("/vms/set-ha-always-run", deps.PoolPlaneHandler.SetHaAlwaysRun)
		strictAuthRouter.GET("/vdis/by-location", deps.PoolPlaneHandler.VDIByLocation)
		strictAuthRouter.POST("/vdis/destroy", deps.PoolPlaneHandler.DestroyVDI)
		strictAuthRouter.POST("/messages", deps.PoolPlaneHandler.ReceiveMessage)
		strictAuthRouter.POST("/blobs", deps.PoolPlaneHandler.ReceiveBlob)
		strictAuthRouter.POST("/rrds/transfer", deps.PoolPlaneHandler.ReceiveRRD)
	}
}
