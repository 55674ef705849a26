package messaging

import (
	"context"
	"sort"
	"sync"
)

// WildcardType 订阅全部消息类型
const WildcardType = "*"

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	Handle(ctx context.Context, message IMessage) error
	// Type 处理器名称，用于日志
	Type() string
}

// HandlerFunc 处理函数
type HandlerFunc func(ctx context.Context, message IMessage) error

// FuncHandler 把函数包装成处理器；以指针比较身份，可用于 Unsubscribe
type FuncHandler struct {
	name string
	fn   HandlerFunc
}

// NewHandler 创建函数处理器
func NewHandler(name string, fn HandlerFunc) *FuncHandler {
	return &FuncHandler{name: name, fn: fn}
}

func (h *FuncHandler) Handle(ctx context.Context, message IMessage) error { return h.fn(ctx, message) }
func (h *FuncHandler) Type() string                                     { return h.name }

// HandlerSet 按消息类型登记处理器，供各传输实现共用。并发安全。
type HandlerSet struct {
	mu       sync.RWMutex
	handlers map[string][]IMessageHandler
}

func NewHandlerSet() *HandlerSet {
	return &HandlerSet{handlers: make(map[string][]IMessageHandler)}
}

// Add 登记处理器，返回该类型是否为首次登记
func (s *HandlerSet) Add(messageType string, h IMessageHandler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.handlers[messageType]) == 0
	s.handlers[messageType] = append(s.handlers[messageType], h)
	return first
}

// Remove 移除处理器，返回是否找到以及该类型剩余数量
func (s *HandlerSet) Remove(messageType string, h IMessageHandler) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.handlers[messageType]
	for i, cur := range hs {
		if cur == h {
			rest := append(append([]IMessageHandler{}, hs[:i]...), hs[i+1:]...)
			if len(rest) == 0 {
				delete(s.handlers, messageType)
			} else {
				s.handlers[messageType] = rest
			}
			return true, len(rest)
		}
	}
	return false, len(hs)
}

// Lookup 精确匹配在前，通配处理器在后
func (s *HandlerSet) Lookup(messageType string) []IMessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exact := s.handlers[messageType]
	wildcard := s.handlers[WildcardType]
	if messageType == WildcardType {
		wildcard = nil
	}
	out := make([]IMessageHandler, 0, len(exact)+len(wildcard))
	out = append(out, exact...)
	return append(out, wildcard...)
}

// Types 已登记的消息类型（排序）
func (s *HandlerSet) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for mt := range s.handlers {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}

// Stats 填充统计中的处理器部分
func (s *HandlerSet) Stats(running bool) TransportStats {
	s.mu.RLock()
	n := 0
	for _, hs := range s.handlers {
		n += len(hs)
	}
	s.mu.RUnlock()
	return TransportStats{Running: running, HandlerCount: n, MessageTypes: s.Types()}
}
