// Package cached 为审核记录仓储提供 LRU 读缓存装饰
package cached

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
)

// DefaultSize 未配置容量时的缓存条目数
const DefaultSize = 1024

// Stats 缓存命中统计
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// AuditRepository 按 ID 缓存快照；写入成功后刷新，删除后失效。
// Query 直接透传到底层仓储。
type AuditRepository struct {
	inner repository.IAuditRepository
	cache *lru.Cache[int64, audit.Snapshot]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ repository.IAuditRepository = (*AuditRepository)(nil)

// New 包装底层仓储，size<=0 取 DefaultSize
func New(inner repository.IAuditRepository, size int) (*AuditRepository, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[int64, audit.Snapshot](size)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfig, "创建缓存失败")
	}
	return &AuditRepository{inner: inner, cache: c}, nil
}

func (r *AuditRepository) Create(ctx context.Context, rec *audit.Record) error {
	if err := r.inner.Create(ctx, rec); err != nil {
		return err
	}
	r.cache.Add(rec.ID, rec.Snapshot())
	return nil
}

func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*audit.Record, error) {
	if s, ok := r.cache.Get(id); ok {
		r.hits.Add(1)
		return audit.FromSnapshot(s)
	}
	r.misses.Add(1)
	rec, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, rec.Snapshot())
	return rec, nil
}

func (r *AuditRepository) Update(ctx context.Context, rec *audit.Record) error {
	if err := r.inner.Update(ctx, rec); err != nil {
		// 版本冲突说明缓存可能已过期
		r.cache.Remove(rec.ID)
		return err
	}
	r.cache.Add(rec.ID, rec.Snapshot())
	return nil
}

func (r *AuditRepository) Delete(ctx context.Context, id int64) error {
	r.cache.Remove(id)
	return r.inner.Delete(ctx, id)
}

func (r *AuditRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if r.cache.Contains(id) {
		return true, nil
	}
	return r.inner.Exists(ctx, id)
}

func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	return r.inner.Count(ctx)
}

func (r *AuditRepository) Query(ctx context.Context, f repository.Filter) ([]*audit.Record, error) {
	return r.inner.Query(ctx, f)
}

// Purge 清空缓存
func (r *AuditRepository) Purge() { r.cache.Purge() }

func (r *AuditRepository) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load(), Size: r.cache.Len()}
}
