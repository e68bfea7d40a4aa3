package informer

import (
	"context"
)

// DeltaType 表示资源的变化类型
type DeltaType string

const (
	DeltaAdded   DeltaType = "Added"
	DeltaUpdated DeltaType = "Updated"
	DeltaDeleted DeltaType = "Deleted"
)

// Delta 表示资源的一个变化
type Delta struct {
	Type   DeltaType
	Object interface{}
}

// EventHandler 处理资源变化事件
type EventHandler interface {
	OnAdd(obj interface{}) error
	OnUpdate(oldObj, newObj interface{}) error
	OnDelete(obj interface{}) error
}

// Store 本地缓存
type Store interface {
	Add(key string, obj interface{}) error
	Update(key string, obj interface{}) error
	Delete(key string) error
	Get(key string) (interface{}, bool)
	List() []interface{}
	Replace(items map[string]interface{}) error
}

// ListWatcher 资源来源：List 全量拉取，Watch 轮询模拟增量
type ListWatcher interface {
	List(ctx context.Context) ([]interface{}, error)
	Watch(ctx context.Context, version string) (string, []interface{}, error)
	GetResourceVersion(obj interface{}) string
}
