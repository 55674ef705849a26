package redisstreams

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcaudit/errors"
	"qcaudit/messaging"
)

// fakeClient 只记录 XADD/XACK，读取一律阻塞到 ctx 结束
type fakeClient struct {
	added  []*redis.XAddArgs
	acked  []string
	addErr error
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.addErr != nil {
		cmd.SetErr(f.addErr)
		return cmd
	}
	f.added = append(f.added, a)
	cmd.SetVal(fmt.Sprintf("%d-0", len(f.added)))
	return cmd
}

func (f *fakeClient) XReadGroup(ctx context.Context, _ *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	<-ctx.Done()
	cmd.SetErr(ctx.Err())
	return cmd
}

func (f *fakeClient) XAck(ctx context.Context, _ string, _ string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, _, _, _ string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(stderrors.New("BUSYGROUP Consumer Group name already exists"))
	return cmd
}

func (f *fakeClient) Close() error { return nil }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &messaging.Message{
		ID:        "msg-1",
		Type:      "audit.derived",
		Timestamp: ts,
		Payload:   map[string]any{"record_id": 42},
		Metadata:  map[string]any{"correlation_id": "cor-123"},
	}
	values, err := encodeMessage(msg)
	require.NoError(t, err)

	decoded, err := decodeMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.GetID())
	assert.Equal(t, msg.Type, decoded.GetType())
	assert.Equal(t, ts.UnixNano(), decoded.GetTimestamp().UnixNano())
	assert.Equal(t, "cor-123", decoded.GetMetadata()["correlation_id"])

	var p struct {
		RecordID int64 `json:"record_id"`
	}
	require.NoError(t, messaging.DecodePayload(decoded, &p))
	assert.Equal(t, int64(42), p.RecordID)
}

func TestDecode_StringTimestampAndFallbackID(t *testing.T) {
	decoded, err := decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]any{
		"type":      "audit.deleted",
		"timestamp": "1700000000000000000",
		"payload":   "{}",
		"metadata":  "{}",
	}})
	require.NoError(t, err)
	assert.Equal(t, "2-0", decoded.GetID())
	assert.Equal(t, int64(1700000000000000000), decoded.GetTimestamp().UnixNano())

	_, err = decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]any{"payload": "{oops"}})
	assert.Error(t, err)
}

func TestPublish_StreamAndTrim(t *testing.T) {
	fc := &fakeClient{}
	tr := newWithClient(Config{StreamPrefix: "qc:", MaxLen: 1000}, fc, false)

	require.NoError(t, tr.Publish(context.Background(), messaging.NewMessage("e1", "audit.derived", map[string]any{"x": 1})))
	require.Len(t, fc.added, 1)
	assert.Equal(t, "qc:audit.derived", fc.added[0].Stream)
	assert.Equal(t, int64(1000), fc.added[0].MaxLen)
	assert.True(t, fc.added[0].Approx)

	fc.addErr = stderrors.New("connection refused")
	err := tr.Publish(context.Background(), messaging.NewMessage("e2", "audit.derived", nil))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))
}

func TestConsume_AckOnlyOnSuccess(t *testing.T) {
	fc := &fakeClient{}
	tr := newWithClient(Config{GroupName: "g"}, fc, false)
	fail := true
	require.NoError(t, tr.Subscribe("audit.derived", messaging.NewHandler("h", func(context.Context, messaging.IMessage) error {
		if fail {
			return stderrors.New("downstream busy")
		}
		return nil
	})))

	values, err := encodeMessage(messaging.NewMessage("e1", "audit.derived", map[string]any{}))
	require.NoError(t, err)
	entry := redis.XMessage{ID: "5-0", Values: values}

	tr.consume(context.Background(), "qcaudit:audit.derived", entry)
	assert.Empty(t, fc.acked)

	fail = false
	tr.consume(context.Background(), "qcaudit:audit.derived", entry)
	assert.Equal(t, []string{"5-0"}, fc.acked)

	tr.consume(context.Background(), "qcaudit:audit.derived", redis.XMessage{ID: "6-0", Values: map[string]any{"payload": "{bad"}})
	assert.Equal(t, []string{"5-0", "6-0"}, fc.acked)
}

func TestLifecycle(t *testing.T) {
	fc := &fakeClient{}
	tr := newWithClient(Config{}, fc, false)
	assert.Error(t, tr.Subscribe(messaging.WildcardType, messaging.NewHandler("x", nil)))
	require.NoError(t, tr.Subscribe("audit.derived", messaging.NewHandler("x", func(context.Context, messaging.IMessage) error { return nil })))

	require.NoError(t, tr.Start(context.Background()))
	assert.Error(t, tr.Start(context.Background()))
	assert.True(t, tr.Stats().Running)
	require.NoError(t, tr.Close())
	assert.False(t, tr.Stats().Running)

	_, err := NewTransport(Config{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfig))
}
