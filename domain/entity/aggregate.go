// Package entity 定义聚合根接口与基础实现
package entity

import "time"

// IEntity 实体接口
//
// 版本号用于乐观锁：每次持久化成功后递增，存储层据此检测并发覆盖。
type IEntity[T comparable] interface {
	GetID() T
	GetVersion() int64
}

// IDomainEvent 领域事件接口，仅关注事件语义，不关心传输信封
type IDomainEvent interface {
	EventType() string
}

// IAggregate 聚合根接口
type IAggregate[T comparable] interface {
	IEntity[T]
	GetAggregateType() string
	GetDomainEvents() []IDomainEvent
	ClearDomainEvents()
}

// Aggregate 基础聚合根：标识、版本、时间戳与待发布的领域事件
//
// 示例:
//
//	type Record struct {
//	    entity.Aggregate[int64]
//	    OrderNo string
//	}
type Aggregate[T comparable] struct {
	ID        T         `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	domainEvents []IDomainEvent
}

func (a *Aggregate[T]) GetID() T          { return a.ID }
func (a *Aggregate[T]) GetVersion() int64 { return a.Version }

// GetAggregateType 返回聚合根类型，嵌入方应覆盖
func (a *Aggregate[T]) GetAggregateType() string { return "Aggregate" }

// GetDomainEvents 获取未发布的领域事件
func (a *Aggregate[T]) GetDomainEvents() []IDomainEvent {
	return a.domainEvents
}

// ClearDomainEvents 清空领域事件
func (a *Aggregate[T]) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent 添加领域事件
func (a *Aggregate[T]) AddDomainEvent(evt IDomainEvent) {
	a.domainEvents = append(a.domainEvents, evt)
}

// Touch 标记修改时间；首次调用时同时设置创建时间
func (a *Aggregate[T]) Touch(at time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = at
	}
	a.UpdatedAt = at
}

// BumpVersion 持久化成功后由存储层调用
func (a *Aggregate[T]) BumpVersion() {
	a.Version++
}
