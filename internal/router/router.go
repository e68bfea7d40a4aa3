package router

import (
	"xensphere/internal/handler"
	"xensphere/pkg/jwt"
	"xensphere/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger           *log.Logger
	Config           *viper.Viper
	JWT              *jwt.JWT
	UserHandler      *handler.UserHandler
	VMMigrateHandler *handler.VMMigrateHandler
	PoolPlaneHandler *handler.PoolPlaneHandler
	TaskHandler      *handler.TaskHandler
}
