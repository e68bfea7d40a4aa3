package model

import (
	"time"
)

type Message struct {
	Id         int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref        string    `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID       string    `json:"uuid" gorm:"column:uuid;index"`
	ObjUUID    string    `json:"obj_uuid" gorm:"column:obj_uuid;index"` // 关联对象（VM）UUID
	Name       string    `json:"name" gorm:"column:name"`
	Priority   int64     `json:"priority" gorm:"column:priority"`
	Cls        string    `json:"cls" gorm:"column:cls"`
	Body       string    `json:"body" gorm:"column:body"`
	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create"`
}

func (Message) TableName() string {
	return "message"
}

type Blob struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref      string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID     string `json:"uuid" gorm:"column:uuid;index"`
	VMUUID   string `json:"vm_uuid" gorm:"column:vm_uuid;index"`
	Name     string `json:"name" gorm:"column:name"`
	MimeType string `json:"mime_type" gorm:"column:mime_type"`
	Content  string `json:"content" gorm:"column:content"` // base64
}

func (Blob) TableName() string {
	return "blob"
}
