package model

type VIF struct {
	Id         int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref        string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID       string `json:"uuid" gorm:"column:uuid;index"`
	VMRef      string `json:"vm_ref" gorm:"column:vm_ref;index"`
	NetworkRef string `json:"network_ref" gorm:"column:network_ref;index"`
	MAC        string `json:"mac" gorm:"column:mac;index"`
	Device     string `json:"device" gorm:"column:device"`
}

func (VIF) TableName() string {
	return "vif"
}

type Network struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref       string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID      string `json:"uuid" gorm:"column:uuid;index"`
	NameLabel string `json:"name_label" gorm:"column:name_label"`
	Bridge    string `json:"bridge" gorm:"column:bridge"`
}

func (Network) TableName() string {
	return "network"
}
