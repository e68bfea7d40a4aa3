package model

import (
	"time"
)

// 任务状态
const (
	TaskStatusPending    = "pending"
	TaskStatusSuccess    = "success"
	TaskStatusFailure    = "failure"
	TaskStatusCancelling = "cancelling"
	TaskStatusCancelled  = "cancelled"
)

// OtherConfigMirrorFailed 镜像失败时由存储面回写的标记，值为出错 VDI 的 UUID
const OtherConfigMirrorFailed = "mirror_failed"

type Task struct {
	Id          int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref         string    `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID        string    `json:"uuid" gorm:"column:uuid;index"`
	NameLabel   string    `json:"name_label" gorm:"column:name_label"`
	Status      string    `json:"status" gorm:"column:status"`
	Progress    float64   `json:"progress" gorm:"column:progress"`
	Cancellable int8      `json:"cancellable" gorm:"column:cancellable;default:1"`
	Result      string    `json:"result" gorm:"column:result"`
	ErrorInfo   string    `json:"error_info" gorm:"column:error_info"`     // JSON 数组 [code, params...]
	OtherConfig string    `json:"other_config" gorm:"column:other_config"` // JSON
	CreateTime  time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime  time.Time `json:"update_time" gorm:"column:gmt_modified"`
}

func (Task) TableName() string {
	return "task"
}
