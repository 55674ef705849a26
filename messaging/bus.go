package messaging

import (
	"context"
	"sync"

	"qcaudit/errors"
)

// IMiddleware 发布链中间件
type IMiddleware interface {
	Handle(ctx context.Context, message IMessage, next HandlerFunc) error
	Name() string
}

// MessageBus 在 Transport 之上叠加发布中间件
type MessageBus struct {
	transport   Transport
	middlewares []IMiddleware
	mutex       sync.RWMutex
}

// NewMessageBus 创建消息总线
func NewMessageBus(transport Transport) *MessageBus {
	return &MessageBus{transport: transport}
}

// Use 注册中间件，先注册的在外层
func (bus *MessageBus) Use(middleware IMiddleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.middlewares = append(bus.middlewares, middleware)
}

func (bus *MessageBus) Transport() Transport { return bus.transport }

func (bus *MessageBus) Subscribe(messageType string, handler IMessageHandler) error {
	return bus.transport.Subscribe(messageType, handler)
}

func (bus *MessageBus) Unsubscribe(messageType string, handler IMessageHandler) error {
	return bus.transport.Unsubscribe(messageType, handler)
}

// Publish 经中间件链发布单条消息
func (bus *MessageBus) Publish(ctx context.Context, message IMessage) error {
	return bus.chain(func(ctx context.Context, msg IMessage) error {
		return bus.transport.Publish(ctx, msg)
	})(ctx, message)
}

// PublishAll 逐条发布，遇错即停
func (bus *MessageBus) PublishAll(ctx context.Context, messages []IMessage) error {
	for _, m := range messages {
		if err := bus.Publish(ctx, m); err != nil {
			return errors.WrapError(err, errors.ErrCodeQueue, "发布消息失败: "+m.GetID())
		}
	}
	return nil
}

func (bus *MessageBus) chain(final HandlerFunc) HandlerFunc {
	bus.mutex.RLock()
	middlewares := bus.middlewares
	bus.mutex.RUnlock()

	next := final
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		inner := next
		next = func(ctx context.Context, msg IMessage) error {
			return mw.Handle(ctx, msg, inner)
		}
	}
	return next
}
