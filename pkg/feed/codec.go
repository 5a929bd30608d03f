// 文件: pkg/feed/codec.go
// 消息总线上的行情载荷 (JSON 信封)
//
//	{"type":"snapshot","snapshot":{"symbol":"EURUSD","entries":[...]}}
//	{"type":"incremental","incremental":{"entries":[...]}}
//
// Kafka / NATS 的消费端都走 Adapter.HandlePayload

package feed

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType 信封类型
type MessageType string

const (
	TypeSnapshot    MessageType = "snapshot"
	TypeIncremental MessageType = "incremental"
)

// Message 信封
type Message struct {
	Type        MessageType          `json:"type"`
	Snapshot    *SnapshotFullRefresh `json:"snapshot,omitempty"`
	Incremental *IncrementalRefresh  `json:"incremental,omitempty"`
}

// NewSnapshotMessage 包装快照
func NewSnapshotMessage(s SnapshotFullRefresh) Message {
	return Message{Type: TypeSnapshot, Snapshot: &s}
}

// NewIncrementalMessage 包装增量
func NewIncrementalMessage(r IncrementalRefresh) Message {
	return Message{Type: TypeIncremental, Incremental: &r}
}

// Encode 序列化
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage 反序列化并校验信封
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch m.Type {
	case TypeSnapshot:
		if m.Snapshot == nil {
			return Message{}, fmt.Errorf("%w: snapshot body missing", ErrMalformedPayload)
		}
	case TypeIncremental:
		if m.Incremental == nil {
			return Message{}, fmt.Errorf("%w: incremental body missing", ErrMalformedPayload)
		}
	default:
		return Message{}, fmt.Errorf("%w: type %q", ErrMalformedPayload, m.Type)
	}
	return m, nil
}

// Handle 按信封类型分发
func (a *Adapter) Handle(m Message) error {
	switch {
	case m.Type == TypeSnapshot && m.Snapshot != nil:
		return a.OnSnapshot(*m.Snapshot)
	case m.Type == TypeIncremental && m.Incremental != nil:
		return a.OnIncremental(*m.Incremental)
	}
	return fmt.Errorf("%w: type %q", ErrMalformedPayload, m.Type)
}

// HandlePayload 解码 + 分发, 签名与 kafka / nats 的回调对齐后由调用方包一层
func (a *Adapter) HandlePayload(data []byte) error {
	m, err := DecodeMessage(data)
	if err != nil {
		a.logger.WithError(err).Warn("feed payload dropped")
		return err
	}
	return a.Handle(m)
}

// =============================================================================
// 单字符 FIX 取值的 JSON 形式
// =============================================================================

// 动作写成 "0"/"1"/"2", 也接受 "NEW"/"CHANGE"/"DELETE"
func (a UpdateAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(rune(a)))
}

func (a *UpdateAction) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "0", "NEW":
		*a = ActionNew
	case "1", "CHANGE":
		*a = ActionChange
	case "2", "DELETE":
		*a = ActionDelete
	default:
		// 单字符的未知动作留到逐档处理时拒绝, 不拖累整条消息
		if len(raw) == 1 {
			*a = UpdateAction(raw[0])
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	return nil
}

// 方向写成 "0"/"1", 也接受 "BID"/"OFFER"
func (t EntryType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(rune(t)))
}

func (t *EntryType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "0", "BID":
		*t = EntryBid
	case "1", "OFFER", "ASK":
		*t = EntryOffer
	default:
		if len(raw) == 1 {
			*t = EntryType(raw[0])
			return nil
		}
		return fmt.Errorf("%w: entry type %q", ErrMalformedPayload, raw)
	}
	return nil
}
