package model

// SR 能力集（存储驱动声明）
const (
	SRCapVdiSnapshot = "VDI_SNAPSHOT"
	SRCapVdiMirror   = "VDI_MIRROR"
	SRCapVdiMirrorIn = "VDI_MIRROR_IN"
)

type SR struct {
	Id           int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref          string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID         string `json:"uuid" gorm:"column:uuid;index"`
	NameLabel    string `json:"name_label" gorm:"column:name_label"`
	Type         string `json:"type" gorm:"column:type"`
	Shared       int8   `json:"shared" gorm:"column:shared;default:0"`
	Capabilities string `json:"capabilities" gorm:"column:capabilities"` // JSON 数组
}

func (SR) TableName() string {
	return "sr"
}
