package service

import (
	"context"
	"testing"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMigrateCode(t *testing.T, err error, code string) *v1.MigrateError {
	t.Helper()
	require.Error(t, err)
	var me *v1.MigrateError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, code, me.Code)
	return me
}

// 标准同池夹具：host1 + 池 + 源/目的 SR + 运行中的单盘 VM
func seedIntraFixture(t *testing.T, env *migrateTestEnv) (*model.VM, *model.VDI) {
	env.seedPool(t, nil)
	env.seedHost(t, "OpaqueRef:host1", nil)
	env.seedSR(t, "OpaqueRef:sr-src", nil)
	env.seedSR(t, "OpaqueRef:sr-dst", nil)
	vm := env.seedVM(t, "OpaqueRef:vmA", nil)
	vdi := env.seedVDI(t, "OpaqueRef:vdiA", "OpaqueRef:sr-src", nil)
	env.seedVBD(t, "OpaqueRef:vbdA", vm.Ref, vdi.Ref, nil)
	return vm, vdi
}

func TestAssertCanMigrateCBTBlocked(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	vdi.CbtEnabled = 1
	require.NoError(t, env.repos.vdi.Update(context.Background(), vdi))

	err := env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	me := assertMigrateCode(t, err, v1.CodeVdiCbtEnabled)
	assert.Equal(t, []string{vdi.Ref}, me.Params)
}

func TestAssertCanMigrateOnBootReset(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	vdi.OnBoot = model.OnBootReset
	require.NoError(t, env.repos.vdi.Update(context.Background(), vdi))

	err := env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	assertMigrateCode(t, err, v1.CodeVdiOnBootModeIncompatible)
}

func TestAssertCanMigrateEncryptedVDIRemap(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	vdi.SmConfig = `{"key_hash":"deadbeef"}`
	require.NoError(t, env.repos.vdi.Update(context.Background(), vdi))

	// 换 SR 时加密盘被拒
	err := env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	assertMigrateCode(t, err, v1.CodeVdiIsEncrypted)

	// 留在原 SR 不受影响
	err = env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: vdi.SRRef},
	})
	require.NoError(t, err)
}

func TestAssertCanMigrateVdiNotInMap(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, _ := seedIntraFixture(t, env)

	err := env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:   vm.Ref,
		Dest: intraDest(),
	})
	assertMigrateCode(t, err, v1.CodeVdiNotInMap)
}

func TestAssertCanMigrateSRWithoutMirrorCapability(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	src, err := env.repos.sr.GetByRef(context.Background(), "OpaqueRef:sr-src")
	require.NoError(t, err)
	src.Capabilities = `["VDI_SNAPSHOT"]`
	require.NoError(t, env.db.Save(src).Error)

	err = env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	assertMigrateCode(t, err, v1.CodeSrDoesNotSupportMigration)
}

func TestAssertCanMigrateLicenceRestriction(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	pl, err := env.repos.pool.GetCurrent(context.Background())
	require.NoError(t, err)
	pl.RestrictStorageMotion = 1
	require.NoError(t, env.repos.pool.Update(context.Background(), pl))

	err = env.svc.AssertCanMigrate(context.Background(), &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	})
	me := assertMigrateCode(t, err, v1.CodeLicenceRestriction)
	assert.Equal(t, []string{"Storage_motion"}, me.Params)
}

func TestMigrateSendCopyWithinPoolRejected(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)

	_, err := env.svc.MigrateSend(context.Background(), &v1.MigrateSendRequest{
		VM:      vm.Ref,
		Dest:    intraDest(),
		VdiMap:  map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
		Options: map[string]string{"copy": "true"},
	})
	me := assertMigrateCode(t, err, v1.CodeOperationNotAllowed)
	assert.Contains(t, me.Params[0], "VM.copy")
	// 拒绝发生在任何目的侧存储调用之前
	assert.Zero(t, env.smapi.copyCalls)
	assert.Zero(t, env.smapi.mirrorCalls)
}

func TestAssertCanMigrateIsIdempotent(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)
	req := &v1.AssertCanMigrateRequest{
		VM:     vm.Ref,
		Dest:   intraDest(),
		VdiMap: map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
	}

	require.NoError(t, env.svc.AssertCanMigrate(context.Background(), req))
	require.NoError(t, env.svc.AssertCanMigrate(context.Background(), req))
	// 校验不留痕：没有任务、没有存储调用
	assert.Zero(t, env.smapi.copyCalls)
	assert.Zero(t, env.smapi.mirrorCalls)
}

func TestParseMigrateOptionsInvalidToken(t *testing.T) {
	env := newMigrateTestEnv(t)
	vm, vdi := seedIntraFixture(t, env)

	_, err := env.svc.MigrateSend(context.Background(), &v1.MigrateSendRequest{
		VM:      vm.Ref,
		Dest:    intraDest(),
		VdiMap:  map[string]string{vdi.Ref: "OpaqueRef:sr-dst"},
		Options: map[string]string{"force": "maybe"},
	})
	assertMigrateCode(t, err, v1.CodeInvalidValue)
}

func TestComparePlatformVersions(t *testing.T) {
	assert.Equal(t, 0, comparePlatformVersions("3.2.1", "3.2.1"))
	assert.Equal(t, -1, comparePlatformVersions("3.1", "3.2.1"))
	assert.Equal(t, 1, comparePlatformVersions("3.10", "3.9"))
}

func TestCPUFeaturesSubset(t *testing.T) {
	assert.True(t, cpuFeaturesSubset("", "a,b"))
	assert.True(t, cpuFeaturesSubset("a,b", "a,b,c"))
	assert.False(t, cpuFeaturesSubset("a,d", "a,b,c"))
}
