package server

import (
	"context"

	"xensphere/internal/controller"
	"xensphere/pkg/log"
)

type ControllerServer struct {
	controller *controller.XenopsController
	log        *log.Logger
}

func NewControllerServer(
	log *log.Logger,
	xenopsController *controller.XenopsController,
) *ControllerServer {
	return &ControllerServer{
		controller: xenopsController,
		log:        log,
	}
}

func (s *ControllerServer) Start(ctx context.Context) error {
	s.log.Info("starting controller server")
	return s.controller.Start(ctx)
}

func (s *ControllerServer) Stop(ctx context.Context) error {
	s.log.Info("stopping controller server")
	return s.controller.Stop(ctx)
}
