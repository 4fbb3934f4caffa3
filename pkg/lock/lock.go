// Package lock 提供按资源标识的互斥锁。
//
// 日志本提交与导师审批必须按日志本串行执行；单实例部署使用进程内 KeyedMutex，
// 多实例部署使用 pkg/redis.Locker，二者均满足 Locker 接口。
package lock

import (
	"context"
	"sync"

	pkgerrors "nextstep/backend/pkg/errors"
)

// Locker 按 key 加锁
type Locker interface {
	// Acquire 阻塞直至获得 key 的锁或 ctx 结束；release 必须被调用且可重复调用
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex 进程内按 key 的互斥锁表，无等待者时自动回收条目
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyedMutex 创建进程内锁表
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Acquire 实现 Locker
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, e)
		return nil, pkgerrors.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.unref(key, e)
		})
	}, nil
}

func (m *KeyedMutex) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Len 当前活跃条目数
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
