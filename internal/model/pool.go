package model

type Pool struct {
	Id                    int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref                   string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID                  string `json:"uuid" gorm:"column:uuid;index"`
	NameLabel             string `json:"name_label" gorm:"column:name_label"`
	MasterRef             string `json:"master_ref" gorm:"column:master_ref"`
	DefaultSR             string `json:"default_sr" gorm:"column:default_sr"`
	SuspendImageSR        string `json:"suspend_image_sr" gorm:"column:suspend_image_sr"`
	HaEnabled             int8   `json:"ha_enabled" gorm:"column:ha_enabled;default:0"`
	MigrationCompression  int8   `json:"migration_compression" gorm:"column:migration_compression;default:0"`
	RestrictStorageMotion int8   `json:"restrict_storage_motion" gorm:"column:restrict_storage_motion;default:0"` // 许可限制
	OtherConfig           string `json:"other_config" gorm:"column:other_config"`                                 // JSON
}

func (Pool) TableName() string {
	return "pool"
}
