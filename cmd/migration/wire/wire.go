//go:build wireinject
// +build wireinject

package wire

import (
	"xensphere/internal/repository"
	"xensphere/internal/server"
	"xensphere/pkg/app"
	"xensphere/pkg/log"
	"xensphere/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewUserRepository,
)

var serverSet = wire.NewSet(
	server.NewMigrateServer,
)

func newApp(migrateServer *server.MigrateServer) *app.App {
	return app.NewApp(
		app.WithServer(migrateServer),
		app.WithName("xensphere-migration"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		serverSet,
		sid.NewSid,
		newApp,
	))
}
