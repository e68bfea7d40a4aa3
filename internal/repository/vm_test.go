package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"xensphere/pkg/log"
)

func setupRepository(t *testing.T) (VMRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      mockDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	conf := viper.New()
	conf.Set("log.log_level", "error")
	conf.Set("log.log_file_name", t.TempDir()+"/test.log")
	logger := log.NewLog(conf)

	repo := NewRepository(logger, db)
	return NewVMRepository(repo), mock
}

func TestVMRepositoryGetByRef(t *testing.T) {
	repo, mock := setupRepository(t)

	rows := sqlmock.NewRows([]string{"id", "ref", "uuid", "power_state"}).
		AddRow(1, "OpaqueRef:vmA", "vm-uuid", "Running")
	mock.ExpectQuery("SELECT \\* FROM `vm` WHERE ref = \\?").
		WithArgs("OpaqueRef:vmA", 1).
		WillReturnRows(rows)

	vm, err := repo.GetByRef(context.Background(), "OpaqueRef:vmA")
	require.NoError(t, err)
	require.NotNil(t, vm)
	assert.Equal(t, "vm-uuid", vm.UUID)
	assert.Equal(t, "Running", vm.PowerState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVMRepositoryGetByRefNotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT \\* FROM `vm` WHERE ref = \\?").
		WithArgs("OpaqueRef:nope", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	vm, err := repo.GetByRef(context.Background(), "OpaqueRef:nope")
	require.NoError(t, err)
	assert.Nil(t, vm)
}
