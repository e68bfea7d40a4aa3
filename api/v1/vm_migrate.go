package v1

// VM 迁移相关 API 定义

// MigrateSendRequest 存储+内存迁移（同池或跨池）请求
type MigrateSendRequest struct {
	VM      string            `json:"vm" binding:"required" example:"OpaqueRef:abc"` // 源 VM 引用
	Dest    map[string]string `json:"dest" binding:"required"`                       // 目的地握手信息：master/xenops/SM/host/session_id
	Live    bool              `json:"live" example:"true"`                           // 是否热迁移
	VdiMap  map[string]string `json:"vdi_map,omitempty"`                             // VDI ref -> 目标 SR ref
	VifMap  map[string]string `json:"vif_map,omitempty"`                             // VIF ref -> 目标网络 ref
	VgpuMap map[string]string `json:"vgpu_map,omitempty"`                            // VGPU ref -> 目标 GPU 组 ref
	Options map[string]string `json:"options,omitempty"`                             // force/copy/compress 等选项
}

type MigrateSendResponseData struct {
	VM   string `json:"vm"`   // 目的侧 VM 引用
	Task string `json:"task"` // 迁移任务引用，可用于进度查询
}

type MigrateSendResponse struct {
	Response
	Data MigrateSendResponseData `json:"data"`
}

// AssertCanMigrateRequest 迁移可行性校验请求（只读，不产生任何变更）
type AssertCanMigrateRequest struct {
	VM      string            `json:"vm" binding:"required"`
	Dest    map[string]string `json:"dest" binding:"required"`
	Live    bool              `json:"live"`
	VdiMap  map[string]string `json:"vdi_map,omitempty"`
	VifMap  map[string]string `json:"vif_map,omitempty"`
	VgpuMap map[string]string `json:"vgpu_map,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// PoolMigrateRequest 同池纯内存迁移请求（不迁移存储）
type PoolMigrateRequest struct {
	VM      string            `json:"vm" binding:"required"`
	Host    string            `json:"host" binding:"required"` // 目标宿主机引用
	Options map[string]string `json:"options,omitempty"`       // live/network 等
}

type PoolMigrateResponse struct {
	Response
	Data string `json:"data"` // 任务引用
}

// PoolMigrateCompleteRequest 目的侧迁移完成回调
type PoolMigrateCompleteRequest struct {
	VM   string `json:"vm" binding:"required"`   // 目的侧 VM 引用或 UUID
	Host string `json:"host" binding:"required"` // 目的宿主机引用
}

// VMDestroyByUUIDRequest 按 UUID 销毁 VM（跨池回滚时由源侧调用）
type VMDestroyByUUIDRequest struct {
	UUID string `json:"uuid" binding:"required"`
}

// VMSetHaAlwaysRunRequest 恢复目的侧 VM 的 HA 标记
type VMSetHaAlwaysRunRequest struct {
	UUID  string `json:"uuid" binding:"required"`
	Value bool   `json:"value"`
}
