package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CalculateResourceHash 计算资源对象的哈希值，只包含业务字段。
// 同步器用它跳过没有变化的记录。
func CalculateResourceHash(obj interface{}) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	var objMap map[string]interface{}
	if err := json.Unmarshal(data, &objMap); err != nil {
		return "", err
	}

	// 排除元数据字段
	excludeFields := []string{
		"id",
		"create_time",
		"update_time",
		"resource_hash",
		"last_sync_time",
		"creator",
		"modifier",
	}
	for _, field := range excludeFields {
		delete(objMap, field)
	}

	// 按 key 排序后重新序列化，保证字段顺序稳定
	keys := make([]string, 0, len(objMap))
	for k := range objMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, objMap[k])
	}
	cleanData, err := json.Marshal(ordered)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(cleanData)
	return hex.EncodeToString(sum[:]), nil
}
