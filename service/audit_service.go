// Package service 在审核引擎外围组织持久化、并发控制与事件外发
package service

import (
	"context"
	"strings"
	"time"

	"qcaudit/codegen/ids"
	"qcaudit/domain/audit"
	"qcaudit/domain/entity"
	"qcaudit/domain/repository"
	"qcaudit/errors"
	"qcaudit/logging"
	"qcaudit/messaging"
)

// Publisher 事件外发出口，*messaging.MessageBus 与各 Transport 均满足
type Publisher interface {
	Publish(ctx context.Context, message messaging.IMessage) error
}

// Option 服务选项
type Option func(*AuditService)

func WithLogger(l logging.Logger) Option {
	return func(s *AuditService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher 设置事件出口；未设置时不外发事件
func WithPublisher(p Publisher) Option {
	return func(s *AuditService) { s.publisher = p }
}

// WithIDGenerator 替换记录 ID 生成器
func WithIDGenerator(next func() int64) Option {
	return func(s *AuditService) {
		if next != nil {
			s.nextID = next
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuditService 终检审核记录的应用服务。
//
// 每个修改在记录锁内依次完成：读取、修改、推导、复核、保存、发布。
// 不同记录之间互不阻塞。
type AuditService struct {
	repo      repository.IAuditRepository
	publisher Publisher
	locks     *recordLocks
	logger    logging.Logger
	nextID    func() int64
	now       func() time.Time
}

func NewAuditService(repo repository.IAuditRepository, opts ...Option) *AuditService {
	s := &AuditService{
		repo:   repo,
		locks:  newRecordLocks(),
		logger: logging.Component("service.audit"),
		nextID: ids.NextID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 新建记录并完成首次推导
func (s *AuditService) Create(ctx context.Context, header audit.Header, in audit.Inputs) (*audit.Record, error) {
	rec, err := audit.NewRecord(s.nextID(), header, in)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	rec.Rederive(audit.OpCreate)
	s.warnMisses(ctx, rec)
	rec.Touch(s.now())
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "审核记录已创建",
		logging.RecordID(rec.ID),
		logging.Int("sample_size", rec.Derived().SampleSize),
		logging.String("result", string(rec.Result())))
	s.publish(ctx, rec)
	return rec, nil
}

// UpdateHeader 修改描述性字段，不影响推导
func (s *AuditService) UpdateHeader(ctx context.Context, id int64, header audit.Header) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		if err := header.Validate(); err != nil {
			return err
		}
		rec.Header = header
		return nil
	})
}

// UpdateInputs 替换推导输入
func (s *AuditService) UpdateInputs(ctx context.Context, id int64, in audit.Inputs) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		return rec.SetInputs(in)
	})
}

// AddDefect 插入缺陷条目，返回带 ID 的条目
func (s *AuditService) AddDefect(ctx context.Context, id int64, e audit.DefectEntry) (*audit.Record, audit.DefectEntry, error) {
	var added audit.DefectEntry
	rec, err := s.mutate(ctx, id, func(rec *audit.Record) error {
		var err error
		added, err = rec.AddDefect(e)
		return err
	})
	return rec, added, err
}

func (s *AuditService) UpdateDefect(ctx context.Context, id int64, entryID string, patch audit.DefectPatch) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		_, err := rec.UpdateDefect(entryID, patch)
		return err
	})
}

func (s *AuditService) RemoveDefect(ctx context.Context, id int64, entryID string) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		_, err := rec.RemoveDefect(entryID)
		return err
	})
}

// ReplaceDefects 整体替换缺陷集合，只推导一次
func (s *AuditService) ReplaceDefects(ctx context.Context, id int64, entries []audit.DefectEntry) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		_, err := rec.ReplaceDefects(entries)
		return err
	})
}

func (s *AuditService) SetSizeChecks(ctx context.Context, id int64, rows []audit.SizeCheck) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		return rec.SetSizeChecks(rows)
	})
}

func (s *AuditService) SetMeasurements(ctx context.Context, id int64, rows []audit.Measurement) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		rec.SetMeasurements(rows)
		return nil
	})
}

func (s *AuditService) SetImages(ctx context.Context, id int64, images []audit.ImageRef) (*audit.Record, error) {
	return s.mutate(ctx, id, func(rec *audit.Record) error {
		next := make([]audit.ImageRef, len(images))
		for i, img := range images {
			if strings.TrimSpace(img.Ref) == "" {
				return errors.NewErrorf(errors.ErrCodeValidation, "第 %d 张图片缺少引用", i+1)
			}
			if img.ID == "" {
				img.ID = ids.NewUUID()
			}
			next[i] = img
		}
		rec.SetImages(next)
		return nil
	})
}

// OnInputChanged 调用方已修改记录输入时调用：重新推导并保存
func (s *AuditService) OnInputChanged(ctx context.Context, rec *audit.Record) error {
	unlock := s.locks.Lock(rec.ID)
	defer unlock()
	if err := rec.OnInputChanged(); err != nil {
		return err
	}
	return s.commit(ctx, rec)
}

// OnDefectEntryChanged 调用方已在记录上完成条目修改时调用：重新汇总、推导并保存
func (s *AuditService) OnDefectEntryChanged(ctx context.Context, rec *audit.Record, entry audit.DefectEntry, op audit.Op) error {
	unlock := s.locks.Lock(rec.ID)
	defer unlock()
	if err := rec.OnDefectEntryChanged(entry, op); err != nil {
		return err
	}
	return s.commit(ctx, rec)
}

func (s *AuditService) Get(ctx context.Context, id int64) (*audit.Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AuditService) List(ctx context.Context, f repository.Filter) ([]*audit.Record, error) {
	return s.repo.Query(ctx, f)
}

// Delete 删除记录并发布删除事件
func (s *AuditService) Delete(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "审核记录已删除", logging.RecordID(id))
	rec.ClearDomainEvents()
	rec.AddDomainEvent(audit.DeletedEvent{RecordID: id, OrderNo: rec.Header.OrderNo, StyleNo: rec.Header.StyleNo})
	s.publish(ctx, rec)
	return nil
}

// Preview 无状态预览，不落库
func (s *AuditService) Preview(qty int, standard string, criticalFound, majorFound, minorFound int) (audit.Preview, error) {
	p, err := audit.ComputeAudit(qty, standard, criticalFound, majorFound, minorFound)
	if err == nil && len(p.LimitMisses) > 0 {
		s.logger.Warn(context.Background(), "允收数查表未命中，按 0 处理",
			logging.Int("sample_size", p.SampleSize),
			logging.Any("severities", p.LimitMisses))
	}
	return p, err
}

func (s *AuditService) mutate(ctx context.Context, id int64, fn func(rec *audit.Record) error) (*audit.Record, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// commit 复核、保存、发布；调用方持有记录锁
func (s *AuditService) commit(ctx context.Context, rec *audit.Record) error {
	if err := rec.Verify(); err != nil {
		s.logger.Error(ctx, "缺陷台账不一致", logging.RecordID(rec.ID), logging.Error(err))
		return err
	}
	s.warnMisses(ctx, rec)
	rec.Touch(s.now())
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}
	s.publish(ctx, rec)
	return nil
}

func (s *AuditService) warnMisses(ctx context.Context, rec *audit.Record) {
	d := rec.Derived()
	if len(d.LimitMisses) == 0 {
		return
	}
	s.logger.Warn(ctx, "允收数查表未命中，按 0 处理",
		logging.RecordID(rec.ID),
		logging.Int("sample_size", d.SampleSize),
		logging.Any("severities", d.LimitMisses))
}

// publish 尽力外发领域事件；失败只记日志，不影响已保存的修改
func (s *AuditService) publish(ctx context.Context, rec *audit.Record) {
	events := rec.GetDomainEvents()
	rec.ClearDomainEvents()
	if s.publisher == nil {
		return
	}
	for _, evt := range events {
		msg := toMessage(rec, evt)
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Warn(ctx, "领域事件发布失败",
				logging.RecordID(rec.ID),
				logging.String("type", evt.EventType()),
				logging.String("message_id", msg.ID),
				logging.Error(err))
		}
	}
}

func toMessage(rec *audit.Record, evt entity.IDomainEvent) *messaging.Message {
	msg := messaging.NewMessage(ids.NewUUID(), evt.EventType(), evt)
	msg.SetMetadata("aggregate_type", rec.GetAggregateType())
	msg.SetMetadata("aggregate_id", rec.ID)
	msg.SetMetadata("version", rec.Version)
	return msg
}
