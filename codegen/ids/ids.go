// Package ids 生成审核记录（雪花 ID）与子条目、消息（UUID）的标识
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// MaxNode 节点号上限（默认 10 位节点位）
const MaxNode = 1023

// Generator 雪花 ID 生成器
type Generator struct {
	node *snowflake.Node
}

// NewGenerator 创建指定节点号的生成器
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, fmt.Errorf("snowflake node %d out of range [0,%d]", node, MaxNode)
	}
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, err
	}
	return &Generator{node: n}, nil
}

// NextID 生成下一个记录 ID
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// Parse 解析记录 ID 的时间戳（毫秒）与节点号
func Parse(id int64) (timestampMs, node int64) {
	sid := snowflake.ParseInt64(id)
	return sid.Time(), sid.Node()
}

// Format 记录 ID 的紧凑文本形式（base58）
func Format(id int64) string {
	return snowflake.ParseInt64(id).Base58()
}

var defaultGen atomic.Pointer[Generator]

func init() {
	g, _ := NewGenerator(1)
	defaultGen.Store(g)
}

// SetDefaultNode 替换默认生成器的节点号
func SetDefaultNode(node int64) error {
	g, err := NewGenerator(node)
	if err != nil {
		return err
	}
	defaultGen.Store(g)
	return nil
}

// NextID 使用默认生成器
func NextID() int64 {
	return defaultGen.Load().NextID()
}

// NewUUID 子条目与消息 ID
func NewUUID() string {
	return uuid.NewString()
}
