// Package repository 定义审核记录的仓储契约
package repository

import (
	"context"

	"qcaudit/domain/audit"
	"qcaudit/domain/entity"
	"qcaudit/errors"
)

// IRepository 简单 CRUD 仓储接口
//
// Create 要求实体版本为 0；Update 要求实体版本等于存储中的版本（乐观锁），
// 成功后两者都会递增实体版本。
type IRepository[T entity.IEntity[ID], ID comparable] interface {
	Create(ctx context.Context, e T) error
	GetByID(ctx context.Context, id ID) (T, error)
	Update(ctx context.Context, e T) error
	Delete(ctx context.Context, id ID) error
	Exists(ctx context.Context, id ID) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// IAuditRepository 审核记录仓储
type IAuditRepository interface {
	IRepository[*audit.Record, int64]

	// Query 按过滤条件查询，按检验日期倒序、ID 倒序
	Query(ctx context.Context, f Filter) ([]*audit.Record, error)
}

// NotFound 记录不存在错误
func NotFound(id int64) error {
	return errors.NewErrorf(errors.ErrCodeNotFound, "审核记录 %d 不存在", id).
		WithContext("record_id", id)
}

// VersionConflict 乐观锁冲突
func VersionConflict(id, expected, actual int64) error {
	return errors.NewErrorf(errors.ErrCodeConflict,
		"审核记录 %d 版本冲突: 期望 %d, 实际 %d", id, expected, actual).
		WithContext("record_id", id)
}

// AlreadyExists 重复创建
func AlreadyExists(id int64) error {
	return errors.NewErrorf(errors.ErrCodeConflict, "审核记录 %d 已存在", id).
		WithContext("record_id", id)
}
