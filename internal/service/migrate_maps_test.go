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

func TestInferVIFMapByMAC(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	require.NoError(t, env.repos.vif.Create(context.Background(), &model.VIF{
		Ref: "OpaqueRef:vif1", UUID: "vif1", VMRef: vm.Ref, MAC: "aa:bb:cc:00:00:01", Device: "0",
	}))
	require.NoError(t, env.repos.vif.Create(context.Background(), &model.VIF{
		Ref: "OpaqueRef:vif2", UUID: "vif2", VMRef: vm.Ref, MAC: "aa:bb:cc:00:00:01", Device: "1",
	}))

	// 只映射了一块 VIF，另一块 MAC 相同，继承其网络
	effective, err := env.svc.inferVIFMap(context.Background(), vm, map[string]string{
		"OpaqueRef:vif1": "OpaqueRef:netX",
	})
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:netX", effective["OpaqueRef:vif2"])
}

func TestInferVIFMapUnmappedFails(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	require.NoError(t, env.repos.vif.Create(context.Background(), &model.VIF{
		Ref: "OpaqueRef:vif1", UUID: "vif1", VMRef: vm.Ref, MAC: "aa:bb:cc:00:00:01", Device: "0",
	}))

	_, err := env.svc.inferVIFMap(context.Background(), vm, nil)
	me := assertMigrateCode(t, err, v1.CodeVifNotInMap)
	assert.Equal(t, []string{"OpaqueRef:vif1"}, me.Params)
}

// 挂起镜像盘落点回退链：池挂起 SR -> 宿主机挂起 SR -> 池默认 SR
func TestCompleteVDIMapSuspendSRFallback(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, func(p *model.Pool) {
		p.SuspendImageSR = ""
		p.DefaultSR = "OpaqueRef:sr-def"
	})
	env.seedHost(t, "OpaqueRef:host1", func(h *model.Host) { h.SuspendImageSR = "" })
	env.seedSR(t, "OpaqueRef:sr-def", nil)
	env.seedSR(t, "OpaqueRef:sr-susp", nil)

	suspendVDI := env.seedVDI(t, "OpaqueRef:vdi-susp", "OpaqueRef:sr-susp", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", func(vm *model.VM) {
		vm.PowerState = model.PowerStateSuspended
		vm.SuspendVDI = suspendVDI.Ref
	})

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)

	effective, err := env.svc.completeVDIMap(context.Background(), vm, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:sr-def", effective[suspendVDI.Ref])
}

func TestCompleteVDIMapSnapshotInheritsLeafMapping(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, nil)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-src", nil)
	env.seedSR(t, "OpaqueRef:sr-dst", nil)

	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	leaf := env.seedVDI(t, "OpaqueRef:vdi-leaf", "OpaqueRef:sr-src", nil)
	env.seedVBD(t, "OpaqueRef:vbdA", vm.Ref, leaf.Ref, nil)

	snapshot := env.seedVM(t, "OpaqueRef:vmA-snap", func(s *model.VM) {
		s.IsSnapshot = 1
		s.SnapshotOf = vm.Ref
		s.SnapshotTime = time.Now().Add(-time.Hour)
	})
	snapVDI := env.seedVDI(t, "OpaqueRef:vdi-snap", "OpaqueRef:sr-src", func(v *model.VDI) {
		v.SnapshotOf = leaf.Ref
	})
	env.seedVBD(t, "OpaqueRef:vbd-snap", snapshot.Ref, snapVDI.Ref, nil)

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)

	effective, err := env.svc.completeVDIMap(context.Background(), vm, dest, map[string]string{
		leaf.Ref: "OpaqueRef:sr-dst",
	})
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:sr-dst", effective[snapVDI.Ref])
}

func TestCompleteVDIMapNoDefaultSRFails(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedPool(t, func(p *model.Pool) { p.DefaultSR = "" })
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-src", nil)

	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	leaf := env.seedVDI(t, "OpaqueRef:vdi-leaf", "OpaqueRef:sr-src", nil)
	env.seedVBD(t, "OpaqueRef:vbdA", vm.Ref, leaf.Ref, nil)
	snapshot := env.seedVM(t, "OpaqueRef:vmA-snap", func(s *model.VM) {
		s.IsSnapshot = 1
		s.SnapshotOf = vm.Ref
	})
	snapVDI := env.seedVDI(t, "OpaqueRef:vdi-snap", "OpaqueRef:sr-src", nil)
	env.seedVBD(t, "OpaqueRef:vbd-snap", snapshot.Ref, snapVDI.Ref, nil)

	dest, err := env.svc.resolveMigrateReceive(context.Background(), intraDest())
	require.NoError(t, err)

	_, err = env.svc.completeVDIMap(context.Background(), vm, dest, map[string]string{
		leaf.Ref: "OpaqueRef:sr-src",
	})
	assertMigrateCode(t, err, v1.CodeVdiNotInMap)
}

func TestVGPUPCIMap(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	require.NoError(t, env.db.Create(&model.PGPU{
		Ref: "OpaqueRef:pgpu1", UUID: "pgpu1", HostRef: "OpaqueRef:host1", PCIAddress: "0000:3b:00.0",
	}).Error)
	require.NoError(t, env.repos.gpu.CreateVGPU(context.Background(), &model.VGPU{
		Ref: "OpaqueRef:vgpu1", UUID: "vgpu1", VMRef: vm.Ref, Device: "0",
		ScheduledPGPU: "OpaqueRef:pgpu1", ExtraPCIAddress: "0000:3b:00.4",
	}))

	result, err := env.svc.vgpuPCIMap(context.Background(), vm.Ref)
	require.NoError(t, err)
	assert.Equal(t, "0000:3b:00.0", result["0"])
	assert.Equal(t, "0000:3b:00.4", result["vf:0"])
}

func TestVGPUPCIMapLostPGPU(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	require.NoError(t, env.repos.gpu.CreateVGPU(context.Background(), &model.VGPU{
		Ref: "OpaqueRef:vgpu1", UUID: "vgpu1", VMRef: vm.Ref, Device: "0",
		ScheduledPGPU: "OpaqueRef:gone",
	}))

	_, err := env.svc.vgpuPCIMap(context.Background(), vm.Ref)
	require.ErrorIs(t, err, errVGPUMapping)

	// 对外翻译成 vm_migrate_failed，消息固定
	translated := translateVGPUMappingError(vm.Ref)
	me := assertMigrateCode(t, translated, v1.CodeVMMigrateFailed)
	assert.Contains(t, me.Params, "changed power state during migration")
}
