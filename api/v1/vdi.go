package v1

// VDI 相关 API 定义

// VDIPoolMigrateRequest 在线单盘迁移请求
type VDIPoolMigrateRequest struct {
	VDI     string            `json:"vdi" binding:"required"` // 待迁移 VDI 引用
	SR      string            `json:"sr" binding:"required"`  // 目标 SR 引用
	Options map[string]string `json:"options,omitempty"`      // __internal__vm 由派发层注入
}

type VDIPoolMigrateResponseData struct {
	VDI string `json:"vdi"` // 新 VDI 引用
}

type VDIPoolMigrateResponse struct {
	Response
	Data VDIPoolMigrateResponseData `json:"data"`
}

// SRScanRequest 触发一次 SR 扫描，让管理面看到存储面新产生的 VDI
type SRScanRequest struct {
	SR string `json:"sr" binding:"required"`
}

// VDIRecord VDI 元数据，用于跨池查询与导入
type VDIRecord struct {
	Ref          string            `json:"ref,omitempty"`
	UUID         string            `json:"uuid"`
	SR           string            `json:"sr"`
	Location     string            `json:"location"`
	VirtualSize  int64             `json:"virtual_size"`
	OnBoot       string            `json:"on_boot"`
	CbtEnabled   bool              `json:"cbt_enabled"`
	SmConfig     map[string]string `json:"sm_config,omitempty"`
	SnapshotOf   string            `json:"snapshot_of,omitempty"`
	SnapshotTime int64             `json:"snapshot_time,omitempty"` // unix 秒
}

type VDIQueryResponse struct {
	Response
	Data VDIRecord `json:"data"`
}

// VDIDestroyRequest 销毁 VDI（跨池回滚时由源侧调用）
type VDIDestroyRequest struct {
	VDI string `json:"vdi" binding:"required"`
}
