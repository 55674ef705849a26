// Package memory 提供基于内存的审核记录仓储，适用于测试与单机预览
package memory

import (
	"context"
	"sync"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
)

// AuditRepository 以快照形式保存记录，读写都做拷贝，调用方持有的对象与存储互不影响
type AuditRepository struct {
	mu    sync.RWMutex
	snaps map[int64]audit.Snapshot
}

var _ repository.IAuditRepository = (*AuditRepository)(nil)

// NewAuditRepository 创建内存仓储
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{snaps: make(map[int64]audit.Snapshot)}
}

func (r *AuditRepository) Create(_ context.Context, rec *audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[rec.ID]; ok {
		return repository.AlreadyExists(rec.ID)
	}
	if rec.Version != 0 {
		return repository.VersionConflict(rec.ID, 0, rec.Version)
	}
	rec.BumpVersion()
	r.snaps[rec.ID] = rec.Snapshot()
	return nil
}

func (r *AuditRepository) GetByID(_ context.Context, id int64) (*audit.Record, error) {
	r.mu.RLock()
	s, ok := r.snaps[id]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.NotFound(id)
	}
	return audit.FromSnapshot(s)
}

func (r *AuditRepository) Update(_ context.Context, rec *audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snaps[rec.ID]
	if !ok {
		return repository.NotFound(rec.ID)
	}
	if cur.Version != rec.Version {
		return repository.VersionConflict(rec.ID, rec.Version, cur.Version)
	}
	rec.BumpVersion()
	r.snaps[rec.ID] = rec.Snapshot()
	return nil
}

func (r *AuditRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[id]; !ok {
		return repository.NotFound(id)
	}
	delete(r.snaps, id)
	return nil
}

func (r *AuditRepository) Exists(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.snaps[id]
	return ok, nil
}

func (r *AuditRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.snaps)), nil
}

func (r *AuditRepository) Query(_ context.Context, f repository.Filter) ([]*audit.Record, error) {
	r.mu.RLock()
	all := make([]audit.Snapshot, 0, len(r.snaps))
	for _, s := range r.snaps {
		all = append(all, s)
	}
	r.mu.RUnlock()

	page := f.Apply(all)
	out := make([]*audit.Record, 0, len(page))
	for _, s := range page {
		rec, err := audit.FromSnapshot(s)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
