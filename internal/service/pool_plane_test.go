package service

import (
	"context"
	"testing"

	v1 "xensphere/api/v1"
	"xensphere/internal/model"
	"xensphere/internal/repository"
	"xensphere/pkg/jwt"
	"xensphere/pkg/log"
	"xensphere/pkg/sid"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPlaneTestService(t *testing.T) (PoolPlaneService, *gorm.DB) {
	t.Helper()
	conf := viper.New()
	conf.Set("log.log_level", "error")
	conf.Set("log.log_file_name", t.TempDir()+"/test.log")
	conf.Set("security.jwt.key", "test-key")
	logger := log.NewLog(conf)

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/plane.db"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Pool{}, &model.Host{}, &model.VM{}, &model.VBD{}, &model.VDI{},
		&model.SR{}, &model.VIF{}, &model.Network{}, &model.VGPU{}, &model.PGPU{},
		&model.GPUGroup{}, &model.VTPM{}, &model.Message{}, &model.Blob{},
	))

	repo := repository.NewRepository(logger, db)
	idgen := sid.NewSid()
	base := NewService(repository.NewTransaction(repo), logger, idgen, jwt.NewJwt(conf))
	svc := NewPoolPlaneService(
		base, conf,
		repository.NewVMRepository(repo),
		repository.NewVBDRepository(repo),
		repository.NewVDIRepository(repo),
		repository.NewSRRepository(repo),
		repository.NewVIFRepository(repo),
		repository.NewNetworkRepository(repo),
		repository.NewGPURepository(repo),
		repository.NewHostRepository(repo),
		repository.NewPoolRepository(repo),
		repository.NewMessageRepository(repo),
		idgen,
		logger,
	)
	return svc, db
}

func sampleMetadata() *v1.VMMetadata {
	return &v1.VMMetadata{
		VM: v1.VMRecord{
			UUID:       "vm-uuid",
			NameLabel:  "imported",
			PowerState: model.PowerStateHalted,
		},
		VBDs: []v1.VBDRecord{
			{UUID: "vbd1", Device: "xvda", Mode: "RW", Type: "Disk", VDI: "OpaqueRef:remote-vdi"},
		},
		VIFs: []v1.VIFRecord{
			{UUID: "vif1", Device: "0", MAC: "aa:bb:cc:00:00:01", Network: "OpaqueRef:net"},
		},
		Snapshots: []v1.VMMetadata{
			{VM: v1.VMRecord{UUID: "snap-uuid", IsSnapshot: true, PowerState: model.PowerStateHalted}},
		},
	}
}

func TestImportMetadataDryRunNoConflicts(t *testing.T) {
	svc, db := newPlaneTestService(t)

	data, err := svc.ImportMetadata(context.Background(), &v1.ImportMetadataRequest{
		Metadata: *sampleMetadata(),
		DryRun:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, data.Conflicts)
	assert.Empty(t, data.VM)

	// 干跑不落库
	var count int64
	db.Model(&model.VM{}).Count(&count)
	assert.Zero(t, count)
}

func TestImportMetadataDryRunReportsConflicts(t *testing.T) {
	svc, db := newPlaneTestService(t)
	require.NoError(t, db.Create(&model.VM{Ref: "OpaqueRef:existing", UUID: "vm-uuid"}).Error)

	data, err := svc.ImportMetadata(context.Background(), &v1.ImportMetadataRequest{
		Metadata: *sampleMetadata(),
		DryRun:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vm-uuid"}, data.Conflicts)
}

func TestImportMetadataCreatesObjectGraph(t *testing.T) {
	svc, db := newPlaneTestService(t)

	data, err := svc.ImportMetadata(context.Background(), &v1.ImportMetadataRequest{
		Metadata: *sampleMetadata(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, data.VM)

	var vm model.VM
	require.NoError(t, db.Where("ref = ?", data.VM).First(&vm).Error)
	assert.Equal(t, "vm-uuid", vm.UUID)

	var vbds []model.VBD
	require.NoError(t, db.Where("vm_ref = ?", data.VM).Find(&vbds).Error)
	require.Len(t, vbds, 1)
	assert.Equal(t, "OpaqueRef:remote-vdi", vbds[0].VDIRef)

	var snapshots []model.VM
	require.NoError(t, db.Where("snapshot_of = ?", data.VM).Find(&snapshots).Error)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "snap-uuid", snapshots[0].UUID)
}

func TestDestroyVMByUUIDRemovesGraph(t *testing.T) {
	svc, db := newPlaneTestService(t)
	require.NoError(t, db.Create(&model.VM{Ref: "OpaqueRef:doomed", UUID: "doomed-uuid"}).Error)
	require.NoError(t, db.Create(&model.VBD{Ref: "OpaqueRef:vbd", VMRef: "OpaqueRef:doomed"}).Error)

	require.NoError(t, svc.DestroyVMByUUID(context.Background(), "doomed-uuid"))
	var count int64
	db.Model(&model.VM{}).Where("uuid = ?", "doomed-uuid").Count(&count)
	assert.Zero(t, count)
	db.Model(&model.VBD{}).Where("vm_ref = ?", "OpaqueRef:doomed").Count(&count)
	assert.Zero(t, count)

	// 不存在的 UUID 幂等放过
	require.NoError(t, svc.DestroyVMByUUID(context.Background(), "never-was"))
}

func TestVDIByLocationErrors(t *testing.T) {
	svc, db := newPlaneTestService(t)
	require.NoError(t, db.Create(&model.SR{Ref: "OpaqueRef:sr", UUID: "sr-uuid"}).Error)

	_, err := svc.VDIByLocation(context.Background(), "OpaqueRef:sr", "loc")
	assertMigrateCode(t, err, v1.CodeVdiLocationMissing)

	require.NoError(t, db.Create(&model.VDI{Ref: "OpaqueRef:v1", UUID: "u1", SRRef: "OpaqueRef:sr", Location: "loc"}).Error)
	record, err := svc.VDIByLocation(context.Background(), "OpaqueRef:sr", "loc")
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:v1", record.Ref)

	require.NoError(t, db.Create(&model.VDI{Ref: "OpaqueRef:v2", UUID: "u2", SRRef: "OpaqueRef:sr", Location: "loc"}).Error)
	_, err = svc.VDIByLocation(context.Background(), "OpaqueRef:sr", "loc")
	assertMigrateCode(t, err, v1.CodeLocationNotUnique)
}
