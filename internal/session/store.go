// Package session 管理单个浏览会话内的持久状态
// 每次页面跳转都会销毁页内运行时，遍历状态必须全部外化到会话存储
package session

import (
	"context"
	"sync"
)

// Store 会话级键值存储抽象
// 真实实现由浏览器的 sessionStorage 提供（见 internal/browser），
// 在同一标签页会话内跨页面跳转存活，会话结束即清空
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryStore 内存实现（测试用）
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
