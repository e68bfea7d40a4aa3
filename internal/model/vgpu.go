package model

type VGPU struct {
	Id              int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref             string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID            string `json:"uuid" gorm:"column:uuid;index"`
	VMRef           string `json:"vm_ref" gorm:"column:vm_ref;index"`
	GPUGroupRef     string `json:"gpu_group_ref" gorm:"column:gpu_group_ref;index"`
	Device          string `json:"device" gorm:"column:device"`
	ScheduledPGPU   string `json:"scheduled_pgpu" gorm:"column:scheduled_pgpu"`       // 调度目标，迁移前已定
	ExtraPCIAddress string `json:"extra_pci_address" gorm:"column:extra_pci_address"` // SR-IOV VF 地址，可为空
}

func (VGPU) TableName() string {
	return "vgpu"
}

type PGPU struct {
	Id          int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref         string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID        string `json:"uuid" gorm:"column:uuid;index"`
	HostRef     string `json:"host_ref" gorm:"column:host_ref;index"`
	GPUGroupRef string `json:"gpu_group_ref" gorm:"column:gpu_group_ref;index"`
	PCIAddress  string `json:"pci_address" gorm:"column:pci_address"` // 物理功能地址
}

func (PGPU) TableName() string {
	return "pgpu"
}

type GPUGroup struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref       string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID      string `json:"uuid" gorm:"column:uuid;index"`
	NameLabel string `json:"name_label" gorm:"column:name_label"`
}

func (GPUGroup) TableName() string {
	return "gpu_group"
}

type VTPM struct {
	Id    int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Ref   string `json:"ref" gorm:"column:ref;uniqueIndex"`
	UUID  string `json:"uuid" gorm:"column:uuid;index"`
	VMRef string `json:"vm_ref" gorm:"column:vm_ref;index"`
}

func (VTPM) TableName() string {
	return "vtpm"
}
