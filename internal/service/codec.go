package service

import "encoding/json"

// 库里的 JSON 文本列与 map/slice 互转，坏数据按空值处理

func decodeStringMap(raw string) map[string]string {
	m := map[string]string{}
	if raw == "" {
		return m
	}
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}

func encodeStringMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func decodeStringSlice(raw string) []string {
	var s []string
	if raw == "" {
		return s
	}
	_ = json.Unmarshal([]byte(raw), &s)
	return s
}

// encodeErrorInfo 任务 error_info 列的格式：[code, params...]
func encodeErrorInfo(code string, params []string) string {
	info := append([]string{code}, params...)
	raw, err := json.Marshal(info)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
