package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/patterns/retry"
)

type mockTransport struct {
	published []IMessage
	failFirst int
	order     *[]string
}

func (m *mockTransport) Publish(_ context.Context, message IMessage) error {
	if m.order != nil {
		*m.order = append(*m.order, "transport")
	}
	if m.failFirst > 0 {
		m.failFirst--
		return stderrors.New("broker unavailable")
	}
	m.published = append(m.published, message)
	return nil
}

func (m *mockTransport) PublishAll(ctx context.Context, messages []IMessage) error {
	for _, msg := range messages {
		if err := m.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockTransport) Subscribe(string, IMessageHandler) error   { return nil }
func (m *mockTransport) Unsubscribe(string, IMessageHandler) error { return nil }
func (m *mockTransport) Start(context.Context) error               { return nil }
func (m *mockTransport) Close() error                              { return nil }
func (m *mockTransport) Stats() TransportStats                     { return TransportStats{} }

type orderMiddleware struct {
	name  string
	order *[]string
}

func (o orderMiddleware) Name() string { return o.name }
func (o orderMiddleware) Handle(ctx context.Context, msg IMessage, next HandlerFunc) error {
	*o.order = append(*o.order, o.name)
	return next(ctx, msg)
}

func TestMessageBus_MiddlewareOrder(t *testing.T) {
	var order []string
	tr := &mockTransport{order: &order}
	bus := NewMessageBus(tr)
	bus.Use(orderMiddleware{name: "outer", order: &order})
	bus.Use(orderMiddleware{name: "inner", order: &order})

	require.NoError(t, bus.Publish(context.Background(), NewMessage("m1", "audit.derived", nil)))
	assert.Equal(t, []string{"outer", "inner", "transport"}, order)
	assert.Len(t, tr.published, 1)
}

func TestMessageBus_RetryMiddleware(t *testing.T) {
	tr := &mockTransport{failFirst: 2}
	bus := NewMessageBus(tr)
	bus.Use(NewRetryMiddleware(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 2 * time.Millisecond}, nil))

	require.NoError(t, bus.Publish(context.Background(), NewMessage("m1", "audit.derived", nil)))
	assert.Len(t, tr.published, 1)

	tr.failFirst = 5
	err := bus.PublishAll(context.Background(), []IMessage{NewMessage("m2", "audit.derived", nil)})
	assert.Error(t, err)
	assert.Len(t, tr.published, 1)
}

func TestHandlerSet(t *testing.T) {
	set := NewHandlerSet()
	noop := func(context.Context, IMessage) error { return nil }
	a := NewHandler("a", noop)
	b := NewHandler("b", noop)
	all := NewHandler("all", noop)

	assert.True(t, set.Add("audit.derived", a))
	assert.False(t, set.Add("audit.derived", b))
	set.Add(WildcardType, all)

	got := set.Lookup("audit.derived")
	require.Len(t, got, 3)
	assert.Equal(t, "all", got[2].Type())
	assert.Len(t, set.Lookup("audit.deleted"), 1)

	found, left := set.Remove("audit.derived", a)
	assert.True(t, found)
	assert.Equal(t, 1, left)
	found, _ = set.Remove("audit.derived", a)
	assert.False(t, found)

	stats := set.Stats(true)
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.HandlerCount)
	assert.Equal(t, []string{"*", "audit.derived"}, stats.MessageTypes)
}

type samplePayload struct {
	RecordID int64  `json:"record_id"`
	Result   string `json:"result"`
}

func TestCodec_RoundTrip(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &Message{
		ID:        "msg-1",
		Type:      "audit.derived",
		Timestamp: ts,
		Payload:   samplePayload{RecordID: 42, Result: "Fail"},
		Metadata:  map[string]any{"source": "qcaudit"},
	}
	data, err := Marshal(msg)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", decoded.GetID())
	assert.Equal(t, "audit.derived", decoded.GetType())
	assert.Equal(t, ts.UnixNano(), decoded.GetTimestamp().UnixNano())
	assert.Equal(t, "qcaudit", decoded.GetMetadata()["source"])
	_, isRaw := decoded.GetPayload().(json.RawMessage)
	assert.True(t, isRaw)

	var p samplePayload
	require.NoError(t, DecodePayload(decoded, &p))
	assert.Equal(t, samplePayload{RecordID: 42, Result: "Fail"}, p)

	// 进程内消息同样可以解负载
	var direct samplePayload
	require.NoError(t, DecodePayload(msg, &direct))
	assert.Equal(t, p, direct)
}

func TestCodec_Errors(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)

	var p samplePayload
	assert.Error(t, DecodePayload(NewMessage("x", "t", nil), &p))

	env, err := ToEnvelope(&Message{ID: "z"})
	require.NoError(t, err)
	assert.NotZero(t, env.Timestamp)
	assert.Nil(t, env.Message().GetPayload())
}
