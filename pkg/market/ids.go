// 文件: pkg/market/ids.go
// 深度消息的 UpdateID 生成器
// 使用开源库: github.com/bwmarrin/snowflake

package market

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator 雪花 ID, 同一节点内单调递增
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator nodeID: 节点ID (0-1023), 多实例部署时各不相同
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next 生成下一个 ID
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
