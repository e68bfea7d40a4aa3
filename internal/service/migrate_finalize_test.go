package service

import (
	"context"
	"errors"
	"testing"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/pkg/smapi"
	"xensphere/pkg/xenops"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mirror_failed 的记录压过现场异常
func TestRollbackMirrorFailedWins(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-src", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	vdi := env.seedVDI(t, "OpaqueRef:vdiA", "OpaqueRef:sr-src", func(v *model.VDI) {
		v.UUID = "abcd-uuid"
	})

	task, err := env.svc.createTask(context.Background(), "VM.migrate_send", vm.Ref)
	require.NoError(t, err)
	oc := decodeStringMap(task.OtherConfig)
	oc[model.OtherConfigMirrorFailed] = "abcd-uuid"
	task.OtherConfig = encodeStringMap(oc)
	require.NoError(t, env.repos.task.Update(context.Background(), task))

	dest := &destDescriptor{IntraPool: true, DestHostRef: "OpaqueRef:host1", plane: &localPlane{s: env.svc}}
	err = env.svc.rollbackMigrate(context.Background(), task, vm, dest, nil, errors.New("original failure"))
	me := assertMigrateCode(t, err, v1.CodeMirrorFailed)
	assert.Equal(t, []string{vdi.Ref}, me.Params)
}

func TestRollbackShutsDownSuspendedSource(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	task, err := env.svc.createTask(context.Background(), "VM.migrate_send", vm.Ref)
	require.NoError(t, err)

	env.xenops.vmState = &xenops.VMState{PowerState: model.PowerStateSuspended}
	dest := &destDescriptor{IntraPool: true, DestHostRef: "OpaqueRef:host1", plane: &localPlane{s: env.svc}}
	_ = env.svc.rollbackMigrate(context.Background(), task, vm, dest, nil, errors.New("boom"))
	assert.Equal(t, []string{vm.UUID}, env.xenops.shutdowns)
}

func TestRollbackTearsDownMirrorRecords(t *testing.T) {
	env := newMigrateTestEnv(t)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-dst", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	remote := env.seedVDI(t, "OpaqueRef:vdi-remote", "OpaqueRef:sr-dst", nil)
	task, err := env.svc.createTask(context.Background(), "VM.migrate_send", vm.Ref)
	require.NoError(t, err)

	records := []*MirrorRecord{{
		Mirrored:  true,
		Datapath:  "mirror_vdiA",
		MirrorID:  "sr-src-uuid/vdiA-loc",
		RemoteVDI: remote.Ref,
		RemoteSR:  "OpaqueRef:sr-dst",
	}}
	dest := &destDescriptor{IntraPool: true, DestHostRef: "OpaqueRef:host1", plane: &localPlane{s: env.svc}}
	_ = env.svc.rollbackMigrate(context.Background(), task, vm, dest, records, errors.New("boom"))

	assert.Contains(t, env.smapi.mirrorsDown, "sr-src-uuid/vdiA-loc")
	assert.Contains(t, env.smapi.dpDestroyed, "mirror_vdiA")
	gone, err := env.repos.vdi.GetByRef(context.Background(), remote.Ref)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTranslateMigrateErrorTiers(t *testing.T) {
	env := newMigrateTestEnv(t)
	task := &model.Task{Ref: "OpaqueRef:task"}

	// 存储后端错误以原 code 透出
	err := env.svc.translateMigrateError(task, &smapi.BackendError{Code: "SR_BACKEND_FAILURE_46", Params: []string{"", "detail"}})
	me := assertMigrateCode(t, err, "SR_BACKEND_FAILURE_46")
	assert.Equal(t, []string{"", "detail"}, me.Params)

	// 远端没有该操作
	err = env.svc.translateMigrateError(task, &smapi.UnimplementedError{Op: "/data/mirror/start"})
	assertMigrateCode(t, err, v1.CodeUnimplementedInSMBackend)

	// 用户取消折算成任务取消
	err = env.svc.translateMigrateError(task, &xenops.Error{Kind: xenops.KindCancelled, UserCancelled: true})
	me = assertMigrateCode(t, err, v1.CodeTaskCancelled)
	assert.Equal(t, []string{"OpaqueRef:task"}, me.Params)

	// 迁移错误原样透传
	original := v1.NewMigrateError(v1.CodeVdiCbtEnabled, "x")
	assert.Equal(t, original, env.svc.translateMigrateError(task, original))

	// 其余归入 internal_error
	err = env.svc.translateMigrateError(task, errors.New("weird"))
	assertMigrateCode(t, err, v1.CodeInternalError)
}
