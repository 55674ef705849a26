// Package sync 提供同步的进程内消息传输
package sync

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"qcaudit/errors"
	"qcaudit/messaging"
)

// SyncTransport 在调用方 goroutine 内依次调用全部匹配的处理器
type SyncTransport struct {
	handlers *messaging.HandlerSet
	running  atomic.Bool
}

var _ messaging.Transport = (*SyncTransport)(nil)

func NewSyncTransport() *SyncTransport {
	return &SyncTransport{handlers: messaging.NewHandlerSet()}
}

// Publish 同步分发；无人订阅不是错误
func (t *SyncTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	if !t.running.Load() {
		return errors.NewError(errors.ErrCodeQueue, "sync transport 未启动")
	}
	var errs []error
	for _, h := range t.handlers.Lookup(message.GetType()) {
		if err := h.Handle(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.WrapError(stderrors.Join(errs...), errors.ErrCodeQueue, "消息处理失败: "+message.GetType())
	}
	return nil
}

func (t *SyncTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, m := range messages {
		if err := t.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (t *SyncTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.handlers.Add(messageType, handler)
	return nil
}

func (t *SyncTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	if found, _ := t.handlers.Remove(messageType, handler); !found {
		return errors.NewErrorf(errors.ErrCodeNotFound, "类型 %s 下没有该处理器", messageType)
	}
	return nil
}

func (t *SyncTransport) Start(context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return errors.NewError(errors.ErrCodeQueue, "sync transport 已在运行")
	}
	return nil
}

func (t *SyncTransport) Close() error {
	if !t.running.CompareAndSwap(true, false) {
		return errors.NewError(errors.ErrCodeQueue, "sync transport 未启动")
	}
	return nil
}

func (t *SyncTransport) Stats() messaging.TransportStats {
	return t.handlers.Stats(t.running.Load())
}
