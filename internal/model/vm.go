package model

import (
	"time"
)

// VM 电源状态
const (
	PowerStateHalted    = "Halted"
	PowerStateSuspended = "Suspended"
	PowerStateRunning   = "Running"
	PowerStatePaused    = "Paused"
)

type VM struct {
	Id                      int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref                     string    `json:"ref" gorm:"column:ref;uniqueIndex"` // 集群内不透明引用
	UUID                    string    `json:"uuid" gorm:"column:uuid;index"`
	NameLabel               string    `json:"name_label" gorm:"column:name_label"`
	PowerState              string    `json:"power_state" gorm:"column:power_state"`
	ResidentOn              string    `json:"resident_on" gorm:"column:resident_on"` // 宿主机引用
	IsSnapshot              int8      `json:"is_snapshot" gorm:"column:is_snapshot;default:0"`
	SnapshotOf              string    `json:"snapshot_of" gorm:"column:snapshot_of;index"` // 快照源 VM 引用
	SnapshotTime            time.Time `json:"snapshot_time" gorm:"column:snapshot_time"`
	SuspendVDI              string    `json:"suspend_vdi" gorm:"column:suspend_vdi"` // Suspended 状态下的内存镜像 VDI 引用
	SuspendSR               string    `json:"suspend_sr" gorm:"column:suspend_sr"`
	HaAlwaysRun             int8      `json:"ha_always_run" gorm:"column:ha_always_run;default:0"`
	VCPUs                   int       `json:"vcpus" gorm:"column:vcpus"`
	HardwarePlatformVersion int       `json:"hardware_platform_version" gorm:"column:hardware_platform_version;default:0"`
	LegacyIO                int8      `json:"legacy_io" gorm:"column:legacy_io;default:0"` // 旧式直通硬件，禁止迁移
	CPUFeatures             string    `json:"cpu_features" gorm:"column:cpu_features"`
	Platform                string    `json:"platform" gorm:"column:platform"`         // JSON
	OtherConfig             string    `json:"other_config" gorm:"column:other_config"` // JSON
	Creator                 string    `json:"creator" gorm:"column:creator"`
	Modifier                string    `json:"modifier" gorm:"column:modifier"`
	CreateTime              time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime              time.Time `json:"update_time" gorm:"column:gmt_modified"`
	ResourceHash            string    `json:"resource_hash" gorm:"column:resource_hash;index"`
	LastSyncTime            time.Time `json:"last_sync_time" gorm:"column:last_sync_time"`
}

func (VM) TableName() string {
	return "vm"
}
