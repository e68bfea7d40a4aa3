package model

import (
	"time"
)

type Host struct {
	Id               int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref              string    `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID             string    `json:"uuid" gorm:"column:uuid;index"`
	Hostname         string    `json:"hostname" gorm:"column:hostname"`
	Address          string    `json:"address" gorm:"column:address"` // 管理网 IP，可为空
	Enabled          int8      `json:"enabled" gorm:"column:enabled;default:1"`
	IsCoordinator    int8      `json:"is_coordinator" gorm:"column:is_coordinator;default:0"`
	PlatformVersion  string    `json:"platform_version" gorm:"column:platform_version"`
	HardwarePlatform int       `json:"hardware_platform" gorm:"column:hardware_platform"` // 虚拟硬件平台最高支持版本
	CPUCount         int       `json:"cpu_count" gorm:"column:cpu_count"`
	CPUFeatures      string    `json:"cpu_features" gorm:"column:cpu_features"`
	SuspendImageSR   string    `json:"suspend_image_sr" gorm:"column:suspend_image_sr"`
	CreateTime       time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime       time.Time `json:"update_time" gorm:"column:gmt_modified"`
	ResourceHash     string    `json:"resource_hash" gorm:"column:resource_hash;index"`
	LastSyncTime     time.Time `json:"last_sync_time" gorm:"column:last_sync_time"`
}

func (Host) TableName() string {
	return "host"
}
