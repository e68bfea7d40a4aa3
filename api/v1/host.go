package v1

// 宿主机/资源池信息，跨池迁移引导阶段由源侧查询

type HostDetail struct {
	Ref              string `json:"ref"`
	UUID             string `json:"uuid"`
	Hostname         string `json:"hostname"`
	Address          string `json:"address"`
	Enabled          bool   `json:"enabled"`
	PlatformVersion  string `json:"platform_version"`
	HardwarePlatform int    `json:"hardware_platform"` // 虚拟硬件平台最高支持版本
	CPUCount         int    `json:"cpu_count"`
	CPUFeatures      string `json:"cpu_features"`
	SuspendImageSR   string `json:"suspend_image_sr,omitempty"`
}

type GetHostResponse struct {
	Response
	Data HostDetail `json:"data"`
}

type PoolDetail struct {
	Ref             string `json:"ref"`
	UUID            string `json:"uuid"`
	Master          string `json:"master"`
	DefaultSR       string `json:"default_sr,omitempty"`
	SuspendImageSR  string `json:"suspend_image_sr,omitempty"`
	HaEnabled       bool   `json:"ha_enabled"`
	CompressDefault bool   `json:"compress_default"`
}

type GetPoolResponse struct {
	Response
	Data PoolDetail `json:"data"`
}

type SRDetail struct {
	Ref          string   `json:"ref"`
	UUID         string   `json:"uuid"`
	Type         string   `json:"type"`
	Shared       bool     `json:"shared"`
	Capabilities []string `json:"capabilities"`
}

type GetSRResponse struct {
	Response
	Data SRDetail `json:"data"`
}

type NetworkDetail struct {
	Ref    string `json:"ref"`
	UUID   string `json:"uuid"`
	Bridge string `json:"bridge"`
}

type ListNetworksResponse struct {
	Response
	Data []NetworkDetail `json:"data"`
}

type GPUGroupDetail struct {
	Ref  string `json:"ref"`
	UUID string `json:"uuid"`
}

type ListGPUGroupsResponse struct {
	Response
	Data []GPUGroupDetail `json:"data"`
}
