// Package badger 提供基于 BadgerDB 的嵌入式审核记录仓储
package badger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/errors"
)

var auditPrefix = []byte("audit:")

func auditKey(id int64) []byte {
	return append(append([]byte{}, auditPrefix...), strconv.FormatInt(id, 10)...)
}

// Open 打开 badger 库；dir 为空时使用内存模式
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "打开 badger 失败")
	}
	return db, nil
}

// AuditRepository 以 JSON 快照保存整条记录，键为 audit:{id}
type AuditRepository struct {
	db *badger.DB
}

var _ repository.IAuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *badger.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(_ context.Context, rec *audit.Record) error {
	if rec.Version != 0 {
		return repository.VersionConflict(rec.ID, 0, rec.Version)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(auditKey(rec.ID))
		if err == nil {
			return repository.AlreadyExists(rec.ID)
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		s := rec.Snapshot()
		s.Version = 1
		return putSnapshot(txn, s)
	})
	if err != nil {
		return mapErr(err, rec.ID)
	}
	rec.BumpVersion()
	return nil
}

func (r *AuditRepository) Update(_ context.Context, rec *audit.Record) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		cur, err := getSnapshot(txn, rec.ID)
		if err != nil {
			return err
		}
		if cur.Version != rec.Version {
			return repository.VersionConflict(rec.ID, rec.Version, cur.Version)
		}
		s := rec.Snapshot()
		s.Version = rec.Version + 1
		return putSnapshot(txn, s)
	})
	if err != nil {
		return mapErr(err, rec.ID)
	}
	rec.BumpVersion()
	return nil
}

func (r *AuditRepository) GetByID(_ context.Context, id int64) (*audit.Record, error) {
	var s audit.Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		s, err = getSnapshot(txn, id)
		return err
	})
	if err != nil {
		return nil, mapErr(err, id)
	}
	return audit.FromSnapshot(s)
}

func (r *AuditRepository) Delete(_ context.Context, id int64) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(auditKey(id)); err != nil {
			return err
		}
		return txn.Delete(auditKey(id))
	})
	return mapErr(err, id)
}

func (r *AuditRepository) Exists(_ context.Context, id int64) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(auditKey(id))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err, id)
	}
	return true, nil
}

func (r *AuditRepository) Count(_ context.Context) (int64, error) {
	var n int64
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = auditPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeDatabase, "统计审核记录失败")
	}
	return n, nil
}

// Query 前缀扫描全部快照后在内存中过滤排序
func (r *AuditRepository) Query(_ context.Context, f repository.Filter) ([]*audit.Record, error) {
	var snaps []audit.Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = auditPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var s audit.Snapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return err
			}
			if f.Match(s) {
				snaps = append(snaps, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "扫描审核记录失败")
	}

	repository.SortNewestFirst(snaps)
	page := f.Page(snaps)
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

func getSnapshot(txn *badger.Txn, id int64) (audit.Snapshot, error) {
	var s audit.Snapshot
	item, err := txn.Get(auditKey(id))
	if err != nil {
		return s, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &s)
	})
	return s, err
}

func putSnapshot(txn *badger.Txn, s audit.Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "序列化审核记录失败")
	}
	return txn.Set(auditKey(s.ID), raw)
}

func mapErr(err error, id int64) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return repository.NotFound(id)
	case stderrors.Is(err, badger.ErrConflict):
		return errors.WrapError(err, errors.ErrCodeConflict, "并发写入冲突")
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.WrapError(err, errors.ErrCodeDatabase, "badger 操作失败")
}
