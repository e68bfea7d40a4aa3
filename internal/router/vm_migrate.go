package router

import (
	"xensphere/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitVMMigrateRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/vms").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/migrate-send", deps.VMMigrateHandler.MigrateSend)
		strictAuthRouter.POST("/assert-can-migrate", deps.VMMigrateHandler.AssertCanMigrate)
		strictAuthRouter.POST("/pool-migrate", deps.VMMigrateHandler.PoolMigrate)
		strictAuthRouter.POST("/pool-migrate-complete", deps.VMMigrateHandler.PoolMigrateComplete)
	}

	vdiRouter := r.Group("/vdis").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		vdiRouter.POST("/pool-migrate", deps.VMMigrateHandler.VDIPoolMigrate)
	}
}
