//go:build wireinject
// +build wireinject

package wire

import (
	"xensphere/internal/controller"
	"xensphere/internal/repository"
	"xensphere/internal/server"
	"xensphere/pkg/app"
	"xensphere/pkg/log"
	"xensphere/pkg/xenops"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewVMRepository,
	repository.NewVBDRepository,
)

var controllerSet = wire.NewSet(
	controller.NewXenopsController,
	xenops.NewEventSuppressor,
)

var serverSet = wire.NewSet(
	server.NewControllerServer,
)

func newApp(controllerServer *server.ControllerServer) *app.App {
	return app.NewApp(
		app.WithServer(controllerServer),
		app.WithName("xensphere-controller"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		controllerSet,
		serverSet,
		newApp,
	))
}
