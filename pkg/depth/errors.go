// 文件: pkg/depth/errors.go

package depth

import (
	"errors"
	"fmt"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrInvalidRank       = errors.New("invalid rank")
	ErrUnknownInstrument = errors.New("unknown instrument")

	// 以下只在解码层给出非法值时出现
	ErrUnknownSide = errors.New("unknown side")
	ErrUnknownKind = errors.New("unknown event kind")
	ErrEmptySymbol = errors.New("empty symbol")
)

// InvalidRankError rank 不在 [1, N]
type InvalidRankError struct {
	Symbol string
	Side   Side
	Rank   int
	Depth  int
}

func (e *InvalidRankError) Error() string {
	return fmt.Sprintf("invalid rank %d for %s %s: want 1..%d", e.Rank, e.Symbol, e.Side, e.Depth)
}

func (e *InvalidRankError) Unwrap() error { return ErrInvalidRank }

// UnknownInstrumentError CHANGE/DELETE/查询 时该 symbol 还没有阶梯
type UnknownInstrumentError struct {
	Symbol string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("unknown instrument %q", e.Symbol)
}

func (e *UnknownInstrumentError) Unwrap() error { return ErrUnknownInstrument }

// Reason 把错误归类成短标签, 用于日志和指标
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRank):
		return "invalid_rank"
	case errors.Is(err, ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, ErrUnknownSide):
		return "unknown_side"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, ErrEmptySymbol):
		return "empty_symbol"
	}
	return "other"
}
