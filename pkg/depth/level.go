// 文件: pkg/depth/level.go
// 深度档位的值类型: Side / PriceLevel / Slot

package depth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultLevels 默认维护的档位数 (N)
const DefaultLevels = 3

// =============================================================================
// Side 买卖方向
// =============================================================================

// Side 盘口方向
// 取值与 FIX MDEntryType 对齐: '0' = Bid, '1' = Offer
type Side int8

const (
	SideBid   Side = 1 // 买盘
	SideOffer Side = 2 // 卖盘
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideOffer:
		return "OFFER"
	}
	return "UNKNOWN"
}

// Valid 是否为合法方向
func (s Side) Valid() bool {
	return s == SideBid || s == SideOffer
}

// SideFromEntryType 从 FIX MDEntryType 字符解析方向
func SideFromEntryType(c byte) (Side, error) {
	switch c {
	case '0':
		return SideBid, nil
	case '1':
		return SideOffer, nil
	}
	return 0, fmt.Errorf("%w: entry type %q", ErrUnknownSide, c)
}

// ParseSide 解析 "BID" / "OFFER" (大小写不敏感, 也接受 "0"/"1")
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BID", "0":
		return SideBid, nil
	case "OFFER", "ASK", "1":
		return SideOffer, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

func (s Side) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSide, s)
	}
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// PriceLevel 单个档位
// =============================================================================

// PriceLevel 档位值
// 值语义: 阶梯内部存的是副本, 外部拿到的也是副本
type PriceLevel struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Rank   int     `json:"rank"` // 1-based, 1 = 最优价
	Price  float64 `json:"price"`
	Size   int64   `json:"size"`
}

// =============================================================================
// Slot 可选档位
// =============================================================================

// Slot 阶梯中的一个位置, 可能为空
// 空位和 "价格为 0 的档位" 在结构上区分开, 不用 nil 指针表达
type Slot struct {
	level PriceLevel
	ok    bool
}

// Filled 构造一个有值的 Slot
func Filled(l PriceLevel) Slot {
	return Slot{level: l, ok: true}
}

// EmptySlot 空位
func EmptySlot() Slot {
	return Slot{}
}

// Level 取出档位, 第二个返回值表示是否有值
func (s Slot) Level() (PriceLevel, bool) {
	return s.level, s.ok
}

// Empty 是否为空位
func (s Slot) Empty() bool {
	return !s.ok
}

// slotJSON 序列化格式: 空位输出 {"rank":n,"empty":true}
type slotJSON struct {
	Rank  int     `json:"rank"`
	Empty bool    `json:"empty,omitempty"`
	Price float64 `json:"price,omitempty"`
	Size  int64   `json:"size,omitempty"`
}

// slotsJSON 把一侧的 Slot 序列化成带 rank 的列表
func slotsJSON(slots []Slot) []slotJSON {
	out := make([]slotJSON, len(slots))
	for i, s := range slots {
		if l, ok := s.Level(); ok {
			out[i] = slotJSON{Rank: l.Rank, Price: l.Price, Size: l.Size}
		} else {
			out[i] = slotJSON{Rank: i + 1, Empty: true}
		}
	}
	return out
}

// slotsFromJSON 反序列化; symbol/side 由外层补齐
func slotsFromJSON(symbol string, side Side, in []slotJSON) []Slot {
	out := make([]Slot, len(in))
	for i, s := range in {
		if s.Empty {
			continue
		}
		out[i] = Filled(PriceLevel{Symbol: symbol, Side: side, Rank: i + 1, Price: s.Price, Size: s.Size})
	}
	return out
}
