// 文件: pkg/depth/event.go
// 引擎的输入事件 (由 Feed Adapter 解码后调用)

package depth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind 事件类型
type Kind int8

const (
	KindNew    Kind = iota + 1 // 新增档位 (插入并下移)
	KindChange                 // 原地更新
	KindDelete                 // 删除档位 (上移补位)
)

func (k Kind) String() string {
	switch k {
	case KindNew:
		return "NEW"
	case KindChange:
		return "CHANGE"
	case KindDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// ParseKind 解析 "NEW" / "CHANGE" / "DELETE"
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NEW":
		return KindNew, nil
	case "CHANGE":
		return KindChange, nil
	case "DELETE":
		return KindDelete, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseKind(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event 单条档位事件
// DELETE 时 Price / Size 被忽略; 删除按 rank 定位
type Event struct {
	Kind   Kind    `json:"kind"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Rank   int     `json:"rank"`
	Price  float64 `json:"price,omitempty"`
	Size   int64   `json:"size,omitempty"`
}

// Level 事件对应的档位值
func (e Event) Level() PriceLevel {
	return PriceLevel{
		Symbol: e.Symbol,
		Side:   e.Side,
		Rank:   e.Rank,
		Price:  e.Price,
		Size:   e.Size,
	}
}

// validate 只检查与阶梯无关的字段, rank 由阶梯按自身容量校验
func (e Event) validate() error {
	if e.Symbol == "" {
		return ErrEmptySymbol
	}
	if !e.Side.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSide, e.Side)
	}
	switch e.Kind {
	case KindNew, KindChange, KindDelete:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
}
