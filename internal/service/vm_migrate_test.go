package service

import (
	"context"
	"testing"
	"time"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 同池在线迁移全流程：镜像建立 -> 内存迁移 -> VBD 重定位
func TestMigrateSendIntraPoolHappyPath(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	// 存储面拷贝完成后，同步器会在目的 SR 上看到新盘
	remote := env.seedVDI(t, "OpaqueRef:vdi-remote", "OpaqueRef:sr-dst", func(v *model.VDI) {
		v.Location = "remote-" + vdi.Location
	})

	data, err := env.svc.MigrateSend(context.Background(), &v1.MigrateSendRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		Live:   true,
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	require.NoError(t, err)
	assert.Equal(t, vm.Ref, data.VM)
	assert.NotEmpty(t, data.Task)

	// 运行中的 RW 盘走镜像，且附加永远是读写方式
	assert.Equal(t, 1, env.smapi.mirrorCalls)
	assert.Zero(t, env.smapi.copyCalls)
	require.NotEmpty(t, env.smapi.attachRW)
	assert.True(t, env.smapi.attachRW[0])

	// 内存迁移一次成功，源侧缓存清理
	assert.Equal(t, 1, env.xenops.migrateCalls)
	assert.Equal(t, []string{vm.UUID}, env.xenops.cacheDrops)

	// VBD 指向目的侧 VDI
	vbd, err := env.repos.vbd.GetByRef(context.Background(), "OpaqueRef:vbdA")
	require.NoError(t, err)
	assert.Equal(t, remote.Ref, vbd.VDIRef)

	// 任务成功、闸门归零、事件屏蔽解除
	task, err := env.repos.task.GetByRef(context.Background(), data.Task)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Zero(t, env.svc.throttle.Active())
	assert.False(t, env.svc.suppressor.Suppressed(vm.UUID))
}

// 闸门占满时立即拒绝，计数不动
func TestMigrateSendThrottleFull(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	for i := 0; i < MaxStorageMigrations; i++ {
		require.NoError(t, env.svc.throttle.Enter())
	}

	_, err := env.svc.MigrateSend(context.Background(), &v1.MigrateSendRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	me := assertMigrateCode(t, err, v1.CodeTooManyStorageMigrates)
	assert.Equal(t, []string{"3"}, me.Params)
	assert.Equal(t, MaxStorageMigrations, env.svc.throttle.Active())
	// 没碰存储面
	assert.Zero(t, env.smapi.mirrorCalls)
	assert.Zero(t, env.smapi.copyCalls)
}

// 任何失败路径闸门都要归还
func TestMigrateSendThrottleRestoredOnFailure(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	env.smapi.failCopyWith = nil
	// 目的侧查不到拷贝出来的盘 -> vdi_location_missing -> 回滚
	_, err := env.svc.MigrateSend(context.Background(), &v1.MigrateSendRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	assertMigrateCode(t, err, v1.CodeVdiLocationMissing)
	assert.Zero(t, env.svc.throttle.Active())
	assert.False(t, env.svc.suppressor.Suppressed(vm.UUID))
}

// 计划顺序：先按虚拟大小升序，再按快照时间升序
func TestPlanVDITransfersOrdering(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, nil)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-src", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)

	now := time.Now()
	big := env.seedVDI(t, "OpaqueRef:vdi-big", "OpaqueRef:sr-src", func(v *model.VDI) {
		v.VirtualSize = 32 << 30
	})
	smallOld := env.seedVDI(t, "OpaqueRef:vdi-small-old", "OpaqueRef:sr-src", func(v *model.VDI) {
		v.VirtualSize = 4 << 30
		v.SnapshotTime = now.Add(-2 * time.Hour)
	})
	smallNew := env.seedVDI(t, "OpaqueRef:vdi-small-new", "OpaqueRef:sr-src", func(v *model.VDI) {
		v.VirtualSize = 4 << 30
		v.SnapshotTime = now.Add(-time.Hour)
	})
	env.seedVBD(t, "OpaqueRef:vbd1", vm.Ref, big.Ref, func(v *model.VBD) { v.Device = "xvda" })
	env.seedVBD(t, "OpaqueRef:vbd2", vm.Ref, smallNew.Ref, func(v *model.VBD) { v.Device = "xvdb" })
	env.seedVBD(t, "OpaqueRef:vbd3", vm.Ref, smallOld.Ref, func(v *model.VBD) { v.Device = "xvdc" })

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)
	plan, err := env.svc.planVDITransfers(context.Background(), vm, dest, map[string]string{
		big.Ref: "OpaqueRef:sr-src", smallOld.Ref: "OpaqueRef:sr-src", smallNew.Ref: "OpaqueRef:sr-src",
	})
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, smallOld.Ref, plan[0].vdi.Ref)
	assert.Equal(t, smallNew.Ref, plan[1].vdi.Ref)
	assert.Equal(t, big.Ref, plan[2].vdi.Ref)
}

// 换 SR 的 CD 在镜像开始前弹出
func TestEjectCDsBeforeMirror(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, nil)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-iso", nil)
	env.seedSR(t, "OpaqueRef:sr-dst", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	cd := env.seedVDI(t, "OpaqueRef:vdi-cd", "OpaqueRef:sr-iso", nil)
	env.seedVBD(t, "OpaqueRef:vbd-cd", vm.Ref, cd.Ref, func(v *model.VBD) {
		v.Type = model.VBDTypeCD
		v.Mode = model.VBDModeRO
		v.Device = "xvdd"
	})

	require.NoError(t, env.svc.ejectCDs(context.Background(), vm, map[string]string{
		cd.Ref: "OpaqueRef:sr-dst",
	}))
	assert.Equal(t, []string{"xvdd"}, env.xenops.ejects)
	vbd, err := env.repos.vbd.GetByRef(context.Background(), "OpaqueRef:vbd-cd")
	require.NoError(t, err)
	assert.Equal(t, int8(1), vbd.Empty)
}

// 挂起镜像必须能从源宿主机够到
func TestPlanSuspendImageNotAccessible(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, nil)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-susp", nil)
	suspendVDI := env.seedVDI(t, "OpaqueRef:vdi-susp", "OpaqueRef:sr-susp", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", func(v *model.VM) {
		v.PowerState = model.PowerStateSuspended
		v.SuspendVDI = suspendVDI.Ref
	})
	// 源宿主机上没有已插好的 PBD
	env.seedPBD(t, "OpaqueRef:sr-susp", "OpaqueRef:host1", 0)

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)
	_, err = env.svc.planVDITransfers(context.Background(), vm, dest, map[string]string{
		suspendVDI.Ref: "OpaqueRef:sr-susp",
	})
	assertMigrateCode(t, err, v1.CodeSuspendImageNotAccessible)
}

func TestPoolMigrateCompleteUpdatesResidency(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedHost(t, "OpaqueRef:host2", func(h *model.Host) { h.IsCoordinator = 0 })
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)

	require.NoError(t, env.svc.PoolMigrateComplete(context.Background(), vm.Ref, "OpaqueRef:host2"))
	fresh, err := env.repos.vm.GetByRef(context.Background(), vm.Ref)
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:host2", fresh.ResidentOn)
}

func TestPoolMigrateRequiresRunningVM(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedHost(t, "OpaqueRef:host2", func(h *model.Host) { h.IsCoordinator = 0 })
	vm := env.seedVM(t, "OpaqueRef:vmA", func(v *model.VM) { v.PowerState = model.PowerStateHalted })

	_, err := env.svc.PoolMigrate(context.Background(), &v1.PoolMigrateRequest{
		VM:   vm.Ref,
		Host: "OpaqueRef:host2",
	})
	assertMigrateCode(t, err, v1.CodeVMBadPowerState)
}

func TestPoolMigrateDisabledHost(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedHost(t, "OpaqueRef:host2", func(h *model.Host) { h.IsCoordinator = 0; h.Enabled = 0 })
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)

	_, err := env.svc.PoolMigrate(context.Background(), &v1.PoolMigrateRequest{
		VM:   vm.Ref,
		Host: "OpaqueRef:host2",
	})
	assertMigrateCode(t, err, v1.CodeHostDisabled)
}
