package service

import (
	"strconv"
	"sync"

	v1 "xensphere/api/v1"
)

// MaxStorageMigrations 单进程并发存储迁移上限
const MaxStorageMigrations = 3

// MigrateThrottle 并发闸门。计数器进程内全局，互斥量保护。
type MigrateThrottle struct {
	mu     sync.Mutex
	active int
	limit  int
}

func NewMigrateThrottle() *MigrateThrottle {
	return &MigrateThrottle{limit: MaxStorageMigrations}
}

func (t *MigrateThrottle) Enter() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active >= t.limit {
		return v1.NewMigrateError(v1.CodeTooManyStorageMigrates, strconv.Itoa(t.limit))
	}
	t.active++
	return nil
}

func (t *MigrateThrottle) Leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
}

func (t *MigrateThrottle) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// WithSlot 作用域式占用：任何退出路径（包括 panic）都会释放
func (t *MigrateThrottle) WithSlot(fn func() error) error {
	if err := t.Enter(); err != nil {
		return err
	}
	defer t.Leave()
	return fn()
}
