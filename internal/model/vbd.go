package model

// VBD 模式与类型
const (
	VBDModeRW = "RW"
	VBDModeRO = "RO"

	VBDTypeDisk = "Disk"
	VBDTypeCD   = "CD"
)

type VBD struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref      string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID     string `json:"uuid" gorm:"column:uuid;index"`
	VMRef    string `json:"vm_ref" gorm:"column:vm_ref;index"`
	VDIRef   string `json:"vdi_ref" gorm:"column:vdi_ref;index"`
	Mode     string `json:"mode" gorm:"column:mode"` // RW / RO
	Type     string `json:"type" gorm:"column:type"` // Disk / CD
	Empty    int8   `json:"empty" gorm:"column:empty;default:0"`
	Device   string `json:"device" gorm:"column:device"`
	Bootable int8   `json:"bootable" gorm:"column:bootable;default:0"`
}

func (VBD) TableName() string {
	return "vbd"
}
