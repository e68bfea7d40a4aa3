//go:build wireinject
// +build wireinject

package wire

import (
	"xensphere/internal/handler"
	"xensphere/internal/job"
	"xensphere/internal/repository"
	"xensphere/internal/router"
	"xensphere/internal/server"
	"xensphere/internal/service"
	"xensphere/pkg/app"
	"xensphere/pkg/jwt"
	"xensphere/pkg/log"
	"xensphere/pkg/server/http"
	"xensphere/pkg/sid"
	"xensphere/pkg/xenops"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	//repository.NewRedis,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewUserRepository,
	repository.NewVMRepository,
	repository.NewVBDRepository,
	repository.NewVDIRepository,
	repository.NewSRRepository,
	repository.NewPBDRepository,
	repository.NewVIFRepository,
	repository.NewNetworkRepository,
	repository.NewGPURepository,
	repository.NewHostRepository,
	repository.NewPoolRepository,
	repository.NewTaskRepository,
	repository.NewMessageRepository,
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewUserService,
	service.NewVMMigrateService,
	service.NewPoolPlaneService,
	service.NewTaskService,
	service.NewSMAPIFactory,
	service.NewXenopsFactory,
	service.NewPoolFactory,
	service.NewMigrateThrottle,
	xenops.NewEventSuppressor,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewUserHandler,
	handler.NewVMMigrateHandler,
	handler.NewPoolPlaneHandler,
	handler.NewTaskHandler,
)

var jobSet = wire.NewSet(
	job.NewJob,
	job.NewMigrateSweeper,
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewJobServer,
)

// build App
func newApp(
	httpServer *http.Server,
	jobServer *server.JobServer,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, jobServer),
		app.WithName("xensphere-server"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		serviceSet,
		handlerSet,
		jobSet,
		serverSet,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
