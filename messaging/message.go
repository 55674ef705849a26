// Package messaging 提供领域事件外发所需的消息抽象与传输接口
package messaging

import (
	"encoding/json"
	"time"

	"qcaudit/errors"
)

// IMessage 消息接口
type IMessage interface {
	GetID() string
	GetType() string
	GetTimestamp() time.Time
	GetPayload() any
	GetMetadata() map[string]any
}

// Message 消息基础实现。
// 进程内传输时 Payload 为原始对象，经网络传输解码后为 json.RawMessage。
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m *Message) GetID() string           { return m.ID }
func (m *Message) GetType() string         { return m.Type }
func (m *Message) GetTimestamp() time.Time { return m.Timestamp }
func (m *Message) GetPayload() any         { return m.Payload }

// GetMetadata 获取元数据
func (m *Message) GetMetadata() map[string]any {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	return m.Metadata
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// NewMessage 创建新消息
func NewMessage(messageID, messageType string, payload any) *Message {
	return &Message{
		ID:        messageID,
		Type:      messageType,
		Timestamp: time.Now(),
		Payload:   payload,
		Metadata:  make(map[string]any),
	}
}

// DecodePayload 将消息负载解到 dst，进程内与跨进程消息通用
func DecodePayload(msg IMessage, dst any) error {
	var raw []byte
	switch p := msg.GetPayload().(type) {
	case nil:
		return errors.NewErrorf(errors.ErrCodeValidation, "消息 %s 没有负载", msg.GetID())
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeQueue, "编码消息负载失败")
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "解码消息负载失败")
	}
	return nil
}
