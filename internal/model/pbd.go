package model

type PBD struct {
	Id                int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref               string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID              string `json:"uuid" gorm:"column:uuid;index"`
	SRRef             string `json:"sr_ref" gorm:"column:sr_ref;index"`
	HostRef           string `json:"host_ref" gorm:"column:host_ref;index"`
	CurrentlyAttached int8   `json:"currently_attached" gorm:"column:currently_attached;default:0"`
	DeviceConfig      string `json:"device_config" gorm:"column:device_config"` // JSON
}

func (PBD) TableName() string {
	return "pbd"
}
