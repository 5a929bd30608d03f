// 文件: pkg/market/message.go
// 对外发布的深度消息
//
// 每次成功修改生成一条, 带修改后的整本双边深度 (含空档),
// 下游不需要自己维护阶梯就能拿到完整视图

package market

import (
	"encoding/json"
	"time"

	"mdepth.com/pkg/depth"
)

// DepthMessage 深度更新消息
type DepthMessage struct {
	UpdateID int64      `json:"update_id"` // 雪花 ID
	Symbol   string     `json:"symbol"`
	Kind     depth.Kind `json:"kind"` // 触发本次修改的事件
	Side     depth.Side `json:"side"`
	Rank     int        `json:"rank"`
	Book     depth.Book `json:"book"`
	Ts       int64      `json:"ts"` // 生效时间 (毫秒)
}

// NewDepthMessage 由一次注册表更新构造消息
func NewDepthMessage(id int64, u depth.Update) *DepthMessage {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	return &DepthMessage{
		UpdateID: id,
		Symbol:   u.Event.Symbol,
		Kind:     u.Event.Kind,
		Side:     u.Event.Side,
		Rank:     u.Event.Rank,
		Book:     u.Book,
		Ts:       at.UnixMilli(),
	}
}

// Encode JSON 序列化
func (m *DepthMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeDepthMessage 反序列化
func DecodeDepthMessage(data []byte) (*DepthMessage, error) {
	var m DepthMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// kafka.Message 实现
// =============================================================================

// topicMessage 给消息绑定 topic
// key 用 symbol, 同一品种落在同一分区, 消费端看到的顺序与修改顺序一致
type topicMessage struct {
	topic string
	msg   *DepthMessage
}

func (t topicMessage) Topic() string          { return t.topic }
func (t topicMessage) Key() string            { return t.msg.Symbol }
func (t topicMessage) Value() ([]byte, error) { return t.msg.Encode() }
