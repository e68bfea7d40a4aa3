package v1

// 任务相关 API 定义

type TaskDetail struct {
	Ref         string            `json:"ref"`
	UUID        string            `json:"uuid"`
	NameLabel   string            `json:"name_label"`
	Status      string            `json:"status"` // pending / success / failure / cancelling / cancelled
	Progress    float64           `json:"progress"`
	Cancellable bool              `json:"cancellable"`
	Result      string            `json:"result,omitempty"`
	ErrorInfo   []string          `json:"error_info,omitempty"`
	OtherConfig map[string]string `json:"other_config,omitempty"`
}

type GetTaskResponse struct {
	Response
	Data TaskDetail `json:"data"`
}
