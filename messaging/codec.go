package messaging

import (
	"encoding/json"
	"time"

	"qcaudit/errors"
)

// Envelope 跨进程传输的消息线格式，时间戳为 UnixNano
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata"`
}

// ToEnvelope 序列化负载并填充缺省时间戳
func ToEnvelope(msg IMessage) (Envelope, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return Envelope{}, errors.WrapError(err, errors.ErrCodeQueue, "编码消息负载失败")
	}
	metadata := msg.GetMetadata()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return Envelope{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}

// Message 还原为消息，负载保持 json.RawMessage
func (e Envelope) Message() *Message {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	var payload any
	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		payload = e.Payload
	}
	return &Message{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: time.Unix(0, e.Timestamp),
		Payload:   payload,
		Metadata:  e.Metadata,
	}
}

// Marshal 编码为 JSON 字节
func Marshal(msg IMessage) ([]byte, error) {
	env, err := ToEnvelope(msg)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "编码消息失败")
	}
	return data, nil
}

// Unmarshal 从 JSON 字节解码
func Unmarshal(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "解码消息失败")
	}
	return env.Message(), nil
}
