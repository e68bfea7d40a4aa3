package informer

import (
	"sync"
)

type DeltaFIFO struct {
	lock    sync.RWMutex
	items   []Delta
	keyFunc func(obj interface{}) (string, error)
	store   Store
}

func NewDeltaFIFO(keyFunc func(obj interface{}) (string, error), store Store) *DeltaFIFO {
	return &DeltaFIFO{
		items:   make([]Delta, 0),
		keyFunc: keyFunc,
		store:   store,
	}
}

func (f *DeltaFIFO) Pop(handler func(delta Delta) error) error {
	f.lock.Lock()
	if len(f.items) == 0 {
		f.lock.Unlock()
		return nil
	}
	delta := f.items[0]
	f.items = f.items[1:]
	f.lock.Unlock()

	return handler(delta)
}

// Replace 全量对比出 Added/Updated/Deleted 三类增量
func (f *DeltaFIFO) Replace(items []interface{}) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	newItems := make(map[string]interface{})
	oldItems := make(map[string]interface{})
	for _, item := range f.store.List() {
		key, _ := f.keyFunc(item)
		oldItems[key] = item
	}

	for _, item := range items {
		key, _ := f.keyFunc(item)
		newItems[key] = item
		if _, exists := oldItems[key]; !exists {
			f.items = append(f.items, Delta{Type: DeltaAdded, Object: item})
		} else {
			f.items = append(f.items, Delta{Type: DeltaUpdated, Object: item})
		}
		_ = f.store.Add(key, item)
	}

	for key, item := range oldItems {
		if _, exists := newItems[key]; !exists {
			f.items = append(f.items, Delta{Type: DeltaDeleted, Object: item})
			_ = f.store.Delete(key)
		}
	}
	return nil
}

func (f *DeltaFIFO) HasSynced() bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.items) == 0
}
