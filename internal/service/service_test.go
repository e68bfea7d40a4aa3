package service

import (
	"context"
	"fmt"
	"testing"

	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/jwt"
	"xensphere/pkg/log"
	"xensphere/pkg/pool"
	"xensphere/pkg/sid"
	"xensphere/pkg/smapi"
	"xensphere/pkg/xenops"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ---- 测试环境 ----

type migrateTestEnv struct {
	svc    *vmMigrateService
	db     *gorm.DB
	smapi  *fakeSMAPI
	xenops *fakeXenops
	repos  struct {
		vm      repository.VMRepository
		vbd     repository.VBDRepository
		vdi     repository.VDIRepository
		sr      repository.SRRepository
		pbd     repository.PBDRepository
		vif     repository.VIFRepository
		network repository.NetworkRepository
		gpu     repository.GPURepository
		host    repository.HostRepository
		pool    repository.PoolRepository
		task    repository.TaskRepository
		message repository.MessageRepository
	}
}

func newMigrateTestEnv(t *testing.T) *migrateTestEnv {
	t.Helper()

	conf := viper.New()
	conf.Set("env", "test")
	conf.Set("log.log_level", "error")
	conf.Set("log.log_file_name", t.TempDir()+"/test.log")
	conf.Set("security.jwt.key", "test-key")
	conf.Set("agents.smapi_url", "http://127.0.0.1:4094")
	conf.Set("agents.xenops_url", "http://127.0.0.1:4095")
	conf.Set("agents.xenops_port", 4095)
	conf.Set("migration.force_tls", false)
	conf.Set("migration.shared_sr_mode", false)
	conf.Set("migration.allow_shared_sr_cross_pool", false)

	logger := log.NewLog(conf)

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/test.db?_pragma=busy_timeout(10000)"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Pool{}, &model.Host{}, &model.VM{}, &model.VBD{},
		&model.VDI{}, &model.SR{}, &model.PBD{}, &model.VIF{}, &model.Network{},
		&model.VGPU{}, &model.PGPU{}, &model.GPUGroup{}, &model.VTPM{},
		&model.Task{}, &model.Message{}, &model.Blob{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	repo := repository.NewRepository(logger, db)
	base := NewService(repository.NewTransaction(repo), logger, sid.NewSid(), jwt.NewJwt(conf))

	env := &migrateTestEnv{db: db}
	env.smapi = newFakeSMAPI()
	env.xenops = newFakeXenops()

	env.repos.vm = repository.NewVMRepository(repo)
	env.repos.vbd = repository.NewVBDRepository(repo)
	env.repos.vdi = repository.NewVDIRepository(repo)
	env.repos.sr = repository.NewSRRepository(repo)
	env.repos.pbd = repository.NewPBDRepository(repo)
	env.repos.vif = repository.NewVIFRepository(repo)
	env.repos.network = repository.NewNetworkRepository(repo)
	env.repos.gpu = repository.NewGPURepository(repo)
	env.repos.host = repository.NewHostRepository(repo)
	env.repos.pool = repository.NewPoolRepository(repo)
	env.repos.task = repository.NewTaskRepository(repo)
	env.repos.message = repository.NewMessageRepository(repo)

	svc := NewVMMigrateService(
		base, conf,
		env.repos.vm, env.repos.vbd, env.repos.vdi, env.repos.sr, env.repos.pbd,
		env.repos.vif, env.repos.network, env.repos.gpu, env.repos.host,
		env.repos.pool, env.repos.task, env.repos.message,
		func(string) (smapi.Client, error) { return env.smapi, nil },
		func(string) (xenops.Client, error) { return env.xenops, nil },
		func(masterURL, session string, verifyCert bool) (*pool.Client, error) {
			return pool.NewClient(masterURL, session, verifyCert)
		},
		xenops.NewEventSuppressor(),
		NewMigrateThrottle(),
		logger,
	).(*vmMigrateService)
	env.svc = svc
	return env
}

// ---- 常用夹具 ----

func (e *migrateTestEnv) seedPool(t *testing.T, mutate func(*model.Pool)) *model.Pool {
	t.Helper()
	pl := &model.Pool{Ref: "OpaqueRef:pool", UUID: "pool-uuid", NameLabel: "test-pool", MasterRef: "OpaqueRef:host1"}
	if mutate != nil {
		mutate(pl)
	}
	require.NoError(t, e.repos.pool.Create(context.Background(), pl))
	return pl
}

func (e *migrateTestEnv) seedHost(t *testing.T, ref string, mutate func(*model.Host)) *model.Host {
	t.Helper()
	host := &model.Host{
		Ref: ref, UUID: ref + "-uuid", Hostname: ref, Address: "192.168.1.10",
		Enabled: 1, IsCoordinator: 1, PlatformVersion: "3.2.1", CPUCount: 16,
	}
	if mutate != nil {
		mutate(host)
	}
	require.NoError(t, e.repos.host.Create(context.Background(), host))
	return host
}

func (e *migrateTestEnv) seedSR(t *testing.T, ref string, mutate func(*model.SR)) *model.SR {
	t.Helper()
	sr := &model.SR{
		Ref: ref, UUID: ref + "-uuid", NameLabel: ref, Type: "lvm",
		Capabilities: `["VDI_SNAPSHOT","VDI_MIRROR","VDI_MIRROR_IN"]`,
	}
	if mutate != nil {
		mutate(sr)
	}
	require.NoError(t, e.repos.sr.Create(context.Background(), sr))
	return sr
}

func (e *migrateTestEnv) seedVM(t *testing.T, ref string, mutate func(*model.VM)) *model.VM {
	t.Helper()
	vm := &model.VM{
		Ref: ref, UUID: ref + "-uuid", NameLabel: ref,
		PowerState: model.PowerStateRunning, ResidentOn: "OpaqueRef:host1", VCPUs: 2,
	}
	if mutate != nil {
		mutate(vm)
	}
	require.NoError(t, e.repos.vm.Create(context.Background(), vm))
	return vm
}

func (e *migrateTestEnv) seedVDI(t *testing.T, ref, srRef string, mutate func(*model.VDI)) *model.VDI {
	t.Helper()
	vdi := &model.VDI{
		Ref: ref, UUID: ref + "-uuid", SRRef: srRef, Location: ref + "-loc",
		VirtualSize: 8 << 30, OnBoot: model.OnBootPersist,
	}
	if mutate != nil {
		mutate(vdi)
	}
	require.NoError(t, e.repos.vdi.Create(context.Background(), vdi))
	return vdi
}

func (e *migrateTestEnv) seedVBD(t *testing.T, ref, vmRef, vdiRef string, mutate func(*model.VBD)) *model.VBD {
	t.Helper()
	vbd := &model.VBD{
		Ref: ref, UUID: ref + "-uuid", VMRef: vmRef, VDIRef: vdiRef,
		Mode: model.VBDModeRW, Type: model.VBDTypeDisk, Device: "xvda",
	}
	if mutate != nil {
		mutate(vbd)
	}
	require.NoError(t, e.repos.vbd.Create(context.Background(), vbd))
	return vbd
}

func (e *migrateTestEnv) seedPBD(t *testing.T, srRef, hostRef string, attached int8) {
	t.Helper()
	require.NoError(t, e.repos.pbd.Create(context.Background(), &model.PBD{
		Ref: fmt.Sprintf("OpaqueRef:pbd-%s-%s", srRef, hostRef), UUID: fmt.Sprintf("pbd-%s-%s", srRef, hostRef),
		SRRef: srRef, HostRef: hostRef, CurrentlyAttached: attached,
	}))
}

// intraDest 指向本池 host1 的握手信息
func intraDest() map[string]string {
	return map[string]string{
		"master":     "http://192.168.1.10:8000",
		"xenops":     "http://192.168.1.10:4095",
		"SM":         "http://192.168.1.20:4094",
		"host":       "OpaqueRef:host1",
		"session_id": "session-token",
	}
}

// ---- 存储代理假件 ----

type fakeSMAPI struct {
	tasks        map[string]*smapi.Task
	mirrors      map[string]*smapi.Mirror
	attachCalls  []string
	attachRW     []bool
	copyCalls    int
	mirrorCalls  int
	dpDestroyed  []string
	mirrorsDown  []string
	chainCalls   int
	chainErr     error
	copyResult   func(vdi string) string
	failCopyWith error
}

func newFakeSMAPI() *fakeSMAPI {
	f := &fakeSMAPI{
		tasks:   map[string]*smapi.Task{},
		mirrors: map[string]*smapi.Mirror{},
	}
	f.copyResult = func(vdi string) string { return "remote-" + vdi }
	return f
}

func (f *fakeSMAPI) VDIAttach3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string, readWrite bool) error {
	f.attachCalls = append(f.attachCalls, vdi)
	f.attachRW = append(f.attachRW, readWrite)
	return nil
}

func (f *fakeSMAPI) VDIActivate3(ctx context.Context, dbg, dp, sr, vdi, vmSlice string) error {
	return nil
}

func (f *fakeSMAPI) DPDestroy(ctx context.Context, dbg, dp string, allowLeak bool) error {
	f.dpDestroyed = append(f.dpDestroyed, dp)
	return nil
}

func (f *fakeSMAPI) DataCopy(ctx context.Context, dbg, sr, vdi, vmSlice, destURL, destSR string, verifyDest bool) (string, error) {
	if f.failCopyWith != nil {
		return "", f.failCopyWith
	}
	f.copyCalls++
	id := fmt.Sprintf("task-copy-%d", f.copyCalls)
	f.tasks[id] = &smapi.Task{ID: id, State: smapi.TaskStateCompleted, Progress: 1, Result: f.copyResult(vdi)}
	return id, nil
}

func (f *fakeSMAPI) MirrorStart(ctx context.Context, dbg, sr, vdi, dp, mirrorVM, copyVM, destURL, destSR string, verifyDest bool) (string, error) {
	f.mirrorCalls++
	id := fmt.Sprintf("task-mirror-%d", f.mirrorCalls)
	mirrorID := fmt.Sprintf("%s/%s", sr, vdi)
	f.mirrors[mirrorID] = &smapi.Mirror{ID: mirrorID, SourceVDI: vdi, DestVDI: f.copyResult(vdi), State: "synced"}
	f.tasks[id] = &smapi.Task{ID: id, State: smapi.TaskStateCompleted, Progress: 1, Result: mirrorID}
	return id, nil
}

func (f *fakeSMAPI) MirrorStop(ctx context.Context, dbg, mirrorID string) error {
	f.mirrorsDown = append(f.mirrorsDown, mirrorID)
	return nil
}

func (f *fakeSMAPI) MirrorStat(ctx context.Context, dbg, mirrorID string) (*smapi.Mirror, error) {
	mirror, ok := f.mirrors[mirrorID]
	if !ok {
		return nil, &smapi.BackendError{Code: "MirrorNotFound", Params: []string{mirrorID}}
	}
	return mirror, nil
}

func (f *fakeSMAPI) UpdateSnapshotInfoSrc(ctx context.Context, dbg, sr, vdi, destURL, destSR, destVDI string, snapshotPairs [][2]string, verifyDest bool) error {
	f.chainCalls++
	return f.chainErr
}

func (f *fakeSMAPI) TaskStat(ctx context.Context, dbg, taskID string) (*smapi.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("no such task %s", taskID)
	}
	return task, nil
}

func (f *fakeSMAPI) TaskDestroy(ctx context.Context, dbg, taskID string) error {
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeSMAPI) WaitForTask(ctx context.Context, dbg, taskID string) (*smapi.Task, error) {
	return f.TaskStat(ctx, dbg, taskID)
}

// ---- 控制代理假件 ----

type fakeXenops struct {
	migrateCalls int
	migrateErrs  []error // 第 n 次调用返回第 n 个错误，耗尽后成功
	vmState      *xenops.VMState
	shutdowns    []string
	cacheDrops   []string
	ejects       []string
}

func newFakeXenops() *fakeXenops {
	return &fakeXenops{vmState: &xenops.VMState{PowerState: model.PowerStateRunning}}
}

func (f *fakeXenops) VMMigrate(ctx context.Context, dbg, vmUUID string, vdiMap, vifMap, vgpuMap map[string]string, destURL string, compress, verifyDest bool) (string, error) {
	f.migrateCalls++
	if f.migrateCalls <= len(f.migrateErrs) {
		if err := f.migrateErrs[f.migrateCalls-1]; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("xtask-%d", f.migrateCalls), nil
}

func (f *fakeXenops) VMList(ctx context.Context, dbg string) ([]xenops.VMInfo, error) {
	return nil, nil
}

func (f *fakeXenops) VMStat(ctx context.Context, dbg, vmUUID string) (*xenops.VMState, error) {
	return f.vmState, nil
}

func (f *fakeXenops) VMShutdown(ctx context.Context, dbg, vmUUID string) error {
	f.shutdowns = append(f.shutdowns, vmUUID)
	return nil
}

func (f *fakeXenops) VMRemoveCache(ctx context.Context, dbg, vmUUID string) error {
	f.cacheDrops = append(f.cacheDrops, vmUUID)
	return nil
}

func (f *fakeXenops) VBDEject(ctx context.Context, dbg, vmUUID, device string) error {
	f.ejects = append(f.ejects, device)
	return nil
}

func (f *fakeXenops) TaskStat(ctx context.Context, dbg, taskID string) (*xenops.TaskState, error) {
	return &xenops.TaskState{ID: taskID, Completed: true}, nil
}

func (f *fakeXenops) SyncWithTask(ctx context.Context, dbg, taskID string) error {
	return nil
}
