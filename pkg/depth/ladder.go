// 文件: pkg/depth/ladder.go
// 单个品种的深度阶梯 (InstrumentLadder)
//
// 结构:
//   每个方向一个长度为 N 的 Slot 数组, 下标 0..N-1 对应 rank 1..N
//
// 不变量 (每次修改后都成立):
//   非空位构成前缀: arr[i] 为空 => arr[j] (j > i) 都为空
//   rank 一致:      arr[i] 非空 => arr[i].Rank == i+1
//
// 并发:
//   写: mu 串行化同一品种的所有修改, 保证按到达顺序生效
//   读: copy-on-write, 修改在副本上完成后整体 Store 到 atomic.Pointer
//       读者拿到的要么是修改前, 要么是修改后, 不会看到移位到一半的数组

package depth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ladderState 一次发布的完整状态 (发布后只读)
type ladderState struct {
	bids   []Slot
	offers []Slot
}

func (s *ladderState) side(side Side) []Slot {
	if side == SideBid {
		return s.bids
	}
	return s.offers
}

// withSide 复制被修改的一侧, 另一侧直接共享 (发布后的切片不会再被写)
func (s *ladderState) withSide(side Side) (*ladderState, []Slot) {
	next := &ladderState{bids: s.bids, offers: s.offers}
	arr := make([]Slot, len(s.side(side)))
	copy(arr, s.side(side))
	if side == SideBid {
		next.bids = arr
	} else {
		next.offers = arr
	}
	return next, arr
}

// Ladder 单品种双边阶梯
type Ladder struct {
	symbol string
	levels int

	mu    sync.Mutex // 写锁
	state atomic.Pointer[ladderState]
}

// NewLadder 创建空阶梯, levels <= 0 时使用 DefaultLevels
func NewLadder(symbol string, levels int) *Ladder {
	if levels <= 0 {
		levels = DefaultLevels
	}
	l := &Ladder{symbol: symbol, levels: levels}
	l.state.Store(&ladderState{
		bids:   make([]Slot, levels),
		offers: make([]Slot, levels),
	})
	return l
}

// Symbol 品种
func (l *Ladder) Symbol() string { return l.symbol }

// Levels 容量 N
func (l *Ladder) Levels() int { return l.levels }

// =============================================================================
// 修改操作
// =============================================================================

// Insert 在 level.Rank 插入, rank 及之后的档位整体后移一位, 最后一位被挤掉
func (l *Ladder) Insert(level PriceLevel) error {
	return l.apply(KindNew, level, nil)
}

// Update 原地替换 level.Rank 上的档位, 不移动其他档位
// 目标为空位时直接写入 (不要求先有 NEW)
func (l *Ladder) Update(level PriceLevel) error {
	return l.apply(KindChange, level, nil)
}

// Delete 删除 rank 上的档位, 之后的档位整体前移一位, 最后一位清空
// 删除空位是合法的空操作
func (l *Ladder) Delete(side Side, rank int) error {
	return l.apply(KindDelete, PriceLevel{Symbol: l.symbol, Side: side, Rank: rank}, nil)
}

// apply 在写锁内完成修改并发布新状态
// commit 在同一把锁内回调, 同一品种的回调顺序与修改顺序一致
// rank 为实际落位的档位 (越过前缀的写入会被前移)
func (l *Ladder) apply(kind Kind, level PriceLevel, commit func(rank int, b Book)) error {
	if !level.Side.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSide, level.Side)
	}
	if level.Rank < 1 || level.Rank > l.levels {
		return &InvalidRankError{Symbol: l.symbol, Side: level.Side, Rank: level.Rank, Depth: l.levels}
	}
	level.Symbol = l.symbol

	l.mu.Lock()
	defer l.mu.Unlock()

	next, arr := l.state.Load().withSide(level.Side)
	rank := level.Rank
	switch kind {
	case KindNew:
		rank = insertAt(arr, level)
	case KindChange:
		rank = updateAt(arr, level)
	case KindDelete:
		deleteAt(arr, level.Rank)
	}
	l.state.Store(next)

	if commit != nil {
		commit(rank, bookOf(l.symbol, next))
	}
	return nil
}

// filled 前缀中非空位的个数 (依赖前缀不变量)
func filled(arr []Slot) int {
	for i, s := range arr {
		if s.Empty() {
			return i
		}
	}
	return len(arr)
}

// withRank 改写档位的 rank
func withRank(s Slot, rank int) Slot {
	if lv, ok := s.Level(); ok {
		lv.Rank = rank
		return Filled(lv)
	}
	return s
}

// insertAt 插入并后移
// 越过第一个空位的写入落到第一个空位上, 保持非空位前缀; 返回实际 rank
func insertAt(arr []Slot, level PriceLevel) int {
	pos := level.Rank - 1
	if f := filled(arr); pos > f {
		pos = f
	}
	for i := len(arr) - 1; i > pos; i-- {
		arr[i] = withRank(arr[i-1], i+1)
	}
	level.Rank = pos + 1
	arr[pos] = Filled(level)
	return level.Rank
}

// updateAt 原地写入, 返回实际 rank
func updateAt(arr []Slot, level PriceLevel) int {
	pos := level.Rank - 1
	if f := filled(arr); pos > f {
		pos = f
	}
	level.Rank = pos + 1
	arr[pos] = Filled(level)
	return level.Rank
}

// deleteAt 删除并前移, 空位移动后仍是空位
func deleteAt(arr []Slot, rank int) {
	n := len(arr)
	for i := rank - 1; i < n-1; i++ {
		arr[i] = withRank(arr[i+1], i+1)
	}
	arr[n-1] = EmptySlot()
}

// =============================================================================
// 查询
// =============================================================================

// DepthOf 返回一侧的副本, 长度恒为 N
func (l *Ladder) DepthOf(side Side) []Slot {
	src := l.state.Load().side(side)
	out := make([]Slot, len(src))
	copy(out, src)
	return out
}

// Book 双边副本 (同一次发布的状态)
func (l *Ladder) Book() Book {
	return bookOf(l.symbol, l.state.Load())
}

// Render 文本输出, 仅用于观测
func (l *Ladder) Render() string {
	return l.Book().Render()
}

// =============================================================================
// Book 双边快照
// =============================================================================

// Book 某一时刻的双边阶梯副本
type Book struct {
	Symbol string
	Bids   []Slot
	Offers []Slot
}

func bookOf(symbol string, s *ladderState) Book {
	b := Book{
		Symbol: symbol,
		Bids:   make([]Slot, len(s.bids)),
		Offers: make([]Slot, len(s.offers)),
	}
	copy(b.Bids, s.bids)
	copy(b.Offers, s.offers)
	return b
}

// Side 取一侧
func (b Book) Side(side Side) []Slot {
	if side == SideBid {
		return b.Bids
	}
	return b.Offers
}

// Best 一侧的最优档位
func (b Book) Best(side Side) (PriceLevel, bool) {
	slots := b.Side(side)
	if len(slots) == 0 {
		return PriceLevel{}, false
	}
	return slots[0].Level()
}

// Render 两段式文本:
//
//	EURUSD BID
//	Level 1 1000 at 1.4335
//	NULL
//	EURUSD OFFER
//	...
func (b Book) Render() string {
	var sb strings.Builder
	renderSide(&sb, b.Symbol, SideBid, b.Bids)
	renderSide(&sb, b.Symbol, SideOffer, b.Offers)
	return sb.String()
}

func renderSide(sb *strings.Builder, symbol string, side Side, slots []Slot) {
	sb.WriteString(symbol)
	sb.WriteByte(' ')
	sb.WriteString(side.String())
	sb.WriteByte('\n')
	for _, s := range slots {
		lv, ok := s.Level()
		if !ok {
			sb.WriteString("NULL\n")
			continue
		}
		sb.WriteString("Level ")
		sb.WriteString(strconv.Itoa(lv.Rank))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatInt(lv.Size, 10))
		sb.WriteString(" at ")
		sb.WriteString(strconv.FormatFloat(lv.Price, 'f', -1, 64))
		sb.WriteByte('\n')
	}
}

// bookJSON 对外的 JSON 格式 (缓存 / 消息总线)
type bookJSON struct {
	Symbol string     `json:"symbol"`
	Bids   []slotJSON `json:"bids"`
	Offers []slotJSON `json:"offers"`
}

func (b Book) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookJSON{
		Symbol: b.Symbol,
		Bids:   slotsJSON(b.Bids),
		Offers: slotsJSON(b.Offers),
	})
}

func (b *Book) UnmarshalJSON(data []byte) error {
	var raw bookJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Symbol = raw.Symbol
	b.Bids = slotsFromJSON(raw.Symbol, SideBid, raw.Bids)
	b.Offers = slotsFromJSON(raw.Symbol, SideOffer, raw.Offers)
	return nil
}
