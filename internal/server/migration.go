package server

import (
	"context"
	"os"

	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/log"
	"xensphere/pkg/sid"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type MigrateServer struct {
	db       *gorm.DB
	log      *log.Logger
	userRepo repository.UserRepository
	sid      *sid.Sid
}

func NewMigrateServer(db *gorm.DB, log *log.Logger, userRepo repository.UserRepository, sid *sid.Sid) *MigrateServer {
	return &MigrateServer{
		db:       db,
		log:      log,
		userRepo: userRepo,
		sid:      sid,
	}
}

func (m *MigrateServer) Start(ctx context.Context) error {
	if err := m.db.AutoMigrate(
		&model.User{},
		// 集群对象表
		&model.Pool{},
		&model.Host{},
		&model.VM{},
		&model.VBD{},
		&model.VDI{},
		&model.SR{},
		&model.PBD{},
		&model.VIF{},
		&model.Network{},
		&model.VGPU{},
		&model.PGPU{},
		&model.GPUGroup{},
		&model.VTPM{},
		// 任务与消息
		&model.Task{},
		&model.Message{},
		&model.Blob{},
	); err != nil {
		m.log.Error("migrate error", zap.Error(err))
		return err
	}
	m.log.Info("AutoMigrate success")

	// 创建默认用户
	if err := m.createDefaultUser(ctx); err != nil {
		m.log.Error("create default user error", zap.Error(err))
		return err
	}

	os.Exit(0)
	return nil
}

// createDefaultUser 创建默认管理员用户
func (m *MigrateServer) createDefaultUser(ctx context.Context) error {
	defaultUsername := "admin"
	defaultEmail := "admin@xensphere.io"
	defaultPassword := "Ab123456"
	defaultNickname := "XenSphere Admin"

	existingUser, err := m.userRepo.GetByEmail(ctx, defaultEmail)
	if err != nil {
		m.log.Error("check default user error", zap.Error(err))
		return err
	}
	if existingUser != nil {
		m.log.Info("default user already exists", zap.String("email", defaultEmail))
		return nil
	}

	existingUser, err = m.userRepo.GetByUsername(ctx, defaultUsername)
	if err != nil {
		m.log.Error("check default username error", zap.Error(err))
		return err
	}
	if existingUser != nil {
		m.log.Info("default username already exists", zap.String("username", defaultUsername))
		return nil
	}

	userId, err := m.sid.GenString()
	if err != nil {
		m.log.Error("generate user id error", zap.Error(err))
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		m.log.Error("hash password error", zap.Error(err))
		return err
	}

	user := &model.User{
		UserId:   userId,
		Username: defaultUsername,
		Email:    defaultEmail,
		Password: string(hashedPassword),
		Nickname: defaultNickname,
	}

	if err := m.userRepo.Create(ctx, user); err != nil {
		m.log.Error("create default user error", zap.Error(err))
		return err
	}

	m.log.Info("default user created successfully",
		zap.String("username", defaultUsername),
		zap.String("email", defaultEmail),
		zap.String("userId", userId))
	return nil
}

func (m *MigrateServer) Stop(ctx context.Context) error {
	m.log.Info("AutoMigrate stop")
	return nil
}
