package service

import "sync"

// recordLock 单条记录的锁，refs 为持有或等待中的调用数
type recordLock struct {
	mu   sync.Mutex
	refs int
}

// recordLocks 按记录 ID 串行化修改，只在单进程内有效。
// 最后一个调用方解锁后移除对应条目。
type recordLocks struct {
	mu    sync.Mutex
	locks map[int64]*recordLock
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[int64]*recordLock)}
}

// Lock 获取记录锁，返回解锁函数
func (l *recordLocks) Lock(id int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &recordLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() { l.release(id, lk) }
}

func (l *recordLocks) release(id int64, lk *recordLock) {
	lk.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// Len 当前仍有调用方持有或等待的锁数量
func (l *recordLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
