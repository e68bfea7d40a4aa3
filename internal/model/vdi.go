package model

import (
	"time"
)

// VDI on_boot 行为
const (
	OnBootPersist = "persist"
	OnBootReset   = "reset"
)

// SmConfigKeyHash 存在即表示 VDI 已加密，换 SR 迁移会丢失密钥绑定
const SmConfigKeyHash = "key_hash"

type VDI struct {
	Id           int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref          string    `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID         string    `json:"uuid" gorm:"column:uuid;index"`
	SRRef        string    `json:"sr_ref" gorm:"column:sr_ref;index"`
	Location     string    `json:"location" gorm:"column:location;index"` // 存储面定位符
	VirtualSize  int64     `json:"virtual_size" gorm:"column:virtual_size"`
	OnBoot       string    `json:"on_boot" gorm:"column:on_boot;default:persist"`
	CbtEnabled   int8      `json:"cbt_enabled" gorm:"column:cbt_enabled;default:0"`
	SmConfig     string    `json:"sm_config" gorm:"column:sm_config"`       // JSON
	OtherConfig  string    `json:"other_config" gorm:"column:other_config"` // JSON
	SnapshotOf   string    `json:"snapshot_of" gorm:"column:snapshot_of;index"`
	SnapshotTime time.Time `json:"snapshot_time" gorm:"column:snapshot_time"`
}

func (VDI) TableName() string {
	return "vdi"
}
