package service

import (
	"context"
	"testing"

	"xensphere/internal/model"
	"xensphere/pkg/xenops"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryFixture(t *testing.T, env *migrateTestEnv) (*model.Task, *model.VM, *destDescriptor) {
	env.seedHost(t, "OpaqueRef:host1", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	task, err := env.svc.createTask(context.Background(), "VM.migrate_send", vm.Ref)
	require.NoError(t, err)
	dest := &destDescriptor{
		XenopsURL:   "http://192.168.1.10:4095",
		DestHostRef: "OpaqueRef:host1",
		IntraPool:   true,
		plane:       &localPlane{s: env.svc},
	}
	return task, vm, dest
}

// 客户机迁移途中重启：Cancelled（非用户）与 Internal_error("End_of_file")
// 各出现一次后第三次成功，共观察到三次代理调用
func TestMemoryMigrateRetriesTransientReboot(t *testing.T) {
	env := newMigrateTestEnv(t)
	task, vm, dest := memoryFixture(t, env)
	env.xenops.migrateErrs = []error{
		&xenops.Error{Kind: xenops.KindCancelled},
		&xenops.Error{Kind: xenops.KindInternalError, Msg: xenops.MsgEndOfFile},
	}

	err := env.svc.memoryMigrate(context.Background(), task, vm, dest, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, env.xenops.migrateCalls)
	// 成功后源侧缓存的域元数据被清掉
	assert.Equal(t, []string{vm.UUID}, env.xenops.cacheDrops)
}

func TestMemoryMigrateGivesUpAfterThreeAttempts(t *testing.T) {
	env := newMigrateTestEnv(t)
	task, vm, dest := memoryFixture(t, env)
	env.xenops.migrateErrs = []error{
		&xenops.Error{Kind: xenops.KindCancelled},
		&xenops.Error{Kind: xenops.KindCancelled},
		&xenops.Error{Kind: xenops.KindCancelled},
	}

	err := env.svc.memoryMigrate(context.Background(), task, vm, dest, nil, nil, nil, false)
	require.Error(t, err)
	assert.Equal(t, 3, env.xenops.migrateCalls)
}

func TestMemoryMigrateUserCancelNoRetry(t *testing.T) {
	env := newMigrateTestEnv(t)
	task, vm, dest := memoryFixture(t, env)
	env.xenops.migrateErrs = []error{
		&xenops.Error{Kind: xenops.KindCancelled, UserCancelled: true},
	}

	err := env.svc.memoryMigrate(context.Background(), task, vm, dest, nil, nil, nil, false)
	require.Error(t, err)
	assert.True(t, xenops.IsUserCancelled(err))
	assert.Equal(t, 1, env.xenops.migrateCalls)
}

func TestMemoryMigrateNonTransientAborts(t *testing.T) {
	env := newMigrateTestEnv(t)
	task, vm, dest := memoryFixture(t, env)
	env.xenops.migrateErrs = []error{
		&xenops.Error{Kind: xenops.KindInternalError, Msg: "qemu exploded"},
	}

	err := env.svc.memoryMigrate(context.Background(), task, vm, dest, nil, nil, nil, false)
	require.Error(t, err)
	assert.Equal(t, 1, env.xenops.migrateCalls)
}

func TestMemoryMigrateSuppressesEvents(t *testing.T) {
	env := newMigrateTestEnv(t)
	task, vm, dest := memoryFixture(t, env)

	env.xenops.migrateErrs = []error{&xenops.Error{Kind: xenops.KindCancelled}}
	require.NoError(t, env.svc.memoryMigrate(context.Background(), task, vm, dest, nil, nil, nil, false))
	// 迁移结束后屏蔽必须解除
	assert.False(t, env.svc.suppressor.Suppressed(vm.UUID))
}

func TestIsTransientRebootClassification(t *testing.T) {
	assert.True(t, xenops.IsTransientReboot(&xenops.Error{Kind: xenops.KindCancelled}))
	assert.True(t, xenops.IsTransientReboot(&xenops.Error{Kind: xenops.KindInternalError, Msg: xenops.MsgEndOfFile}))
	assert.False(t, xenops.IsTransientReboot(&xenops.Error{Kind: xenops.KindCancelled, UserCancelled: true}))
	assert.False(t, xenops.IsTransientReboot(&xenops.Error{Kind: xenops.KindInternalError, Msg: "other"}))
}
