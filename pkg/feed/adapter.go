// 文件: pkg/feed/adapter.go
// Feed Adapter: 把已解码的行情消息 (全量快照 / 增量刷新) 拆成逐档事件
//
// 数据流:
//   会话层 (FIX 引擎, 不在本仓库) → Adapter → Applier (Registry 或 Dispatcher)
//
// 本层不解析线上字节, 输入是结构化的消息

package feed

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"mdepth.com/pkg/depth"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrUnknownAction    = errors.New("unknown md update action")
	ErrMalformedPayload = errors.New("malformed feed payload")
)

// =============================================================================
// FIX 字段取值
// =============================================================================

// UpdateAction MDUpdateAction (tag 279)
type UpdateAction byte

const (
	ActionNew    UpdateAction = '0'
	ActionChange UpdateAction = '1'
	ActionDelete UpdateAction = '2'
)

// Kind 映射到引擎事件类型
func (a UpdateAction) Kind() (depth.Kind, error) {
	switch a {
	case ActionNew:
		return depth.KindNew, nil
	case ActionChange:
		return depth.KindChange, nil
	case ActionDelete:
		return depth.KindDelete, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, byte(a))
}

// EntryType MDEntryType (tag 269): '0' = Bid, '1' = Offer
type EntryType byte

const (
	EntryBid   EntryType = '0'
	EntryOffer EntryType = '1'
)

// =============================================================================
// 消息结构
// =============================================================================

// SnapshotEntry 快照中的一档 (NoMDEntries 重复组)
type SnapshotEntry struct {
	EntryType EntryType `json:"entry_type"`
	Price     float64   `json:"price"`    // MDEntryPx
	Size      float64   `json:"size"`     // MDEntrySize
	Position  int       `json:"position"` // MDEntryPositionNo
}

// SnapshotFullRefresh MarketDataSnapshotFullRefresh (35=W)
type SnapshotFullRefresh struct {
	Symbol  string          `json:"symbol"`
	Entries []SnapshotEntry `json:"entries"`
}

// IncrementalEntry 增量中的一档, 每档自带 symbol 和动作
type IncrementalEntry struct {
	Action    UpdateAction `json:"action"`
	Symbol    string       `json:"symbol"`
	EntryType EntryType    `json:"entry_type"`
	Price     float64      `json:"price"`
	Size      float64      `json:"size"`
	Position  int          `json:"position"`
}

// IncrementalRefresh MarketDataIncrementalRefresh (35=X)
type IncrementalRefresh struct {
	Entries []IncrementalEntry `json:"entries"`
}

// =============================================================================
// Adapter
// =============================================================================

// Applier 事件落地方
// *depth.Registry 同步应用, *Dispatcher 按品种排队后应用
type Applier interface {
	Apply(ev depth.Event) error
}

// AdapterStats 适配器统计
type AdapterStats struct {
	Snapshots    int64
	Incrementals int64
	Entries      int64
	Rejected     int64
}

// Adapter 行情适配器
// 可被多个会话 / 分区并发调用, 同一品种的顺序由调用方或 Dispatcher 保证
type Adapter struct {
	applier Applier
	logger  *logrus.Entry

	snapshots    atomic.Int64
	incrementals atomic.Int64
	entries      atomic.Int64
	rejected     atomic.Int64
}

// NewAdapter 创建适配器
func NewAdapter(applier Applier, logger *logrus.Entry) *Adapter {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Adapter{
		applier: applier,
		logger:  logger.WithField("component", "feed_adapter"),
	}
}

// OnSnapshot 全量快照: 每档一条 NEW
// 某一档失败不影响其余档位, 所有失败合并后返回
func (a *Adapter) OnSnapshot(msg SnapshotFullRefresh) error {
	a.snapshots.Add(1)
	a.logger.WithFields(logrus.Fields{
		"symbol":  msg.Symbol,
		"entries": len(msg.Entries),
	}).Debug("received snapshot full refresh")

	var errs []error
	for i, e := range msg.Entries {
		ev, err := snapshotEvent(msg.Symbol, e)
		if err != nil {
			a.logDecodeError(msg.Symbol, i+1, err)
		} else {
			err = a.apply(ev)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot %s entry %d: %w", msg.Symbol, i+1, err))
		}
	}
	return a.finish(errs)
}

// OnIncremental 增量刷新: 按 MDUpdateAction 分发
func (a *Adapter) OnIncremental(msg IncrementalRefresh) error {
	a.incrementals.Add(1)
	a.logger.WithField("entries", len(msg.Entries)).Debug("received incremental refresh")

	var errs []error
	for i, e := range msg.Entries {
		ev, err := incrementalEvent(e)
		if err != nil {
			a.logDecodeError(e.Symbol, i+1, err)
		} else {
			err = a.apply(ev)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("incremental %s entry %d: %w", e.Symbol, i+1, err))
		}
	}
	return a.finish(errs)
}

// Stats 统计
func (a *Adapter) Stats() AdapterStats {
	return AdapterStats{
		Snapshots:    a.snapshots.Load(),
		Incrementals: a.incrementals.Load(),
		Entries:      a.entries.Load(),
		Rejected:     a.rejected.Load(),
	}
}

func (a *Adapter) apply(ev depth.Event) error {
	a.entries.Add(1)
	return a.applier.Apply(ev)
}

// logDecodeError 解码失败的档位不会到达注册表, 在这里留日志
func (a *Adapter) logDecodeError(symbol string, entry int, err error) {
	a.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"entry":  entry,
	}).WithError(err).Warn("feed entry dropped")
}

func (a *Adapter) finish(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	a.rejected.Add(int64(len(errs)))
	return errors.Join(errs...)
}

func snapshotEvent(symbol string, e SnapshotEntry) (depth.Event, error) {
	side, err := depth.SideFromEntryType(byte(e.EntryType))
	if err != nil {
		return depth.Event{}, err
	}
	return depth.Event{
		Kind:   depth.KindNew,
		Symbol: symbol,
		Side:   side,
		Rank:   e.Position,
		Price:  e.Price,
		Size:   int64(e.Size), // 数量按整数截断
	}, nil
}

func incrementalEvent(e IncrementalEntry) (depth.Event, error) {
	kind, err := e.Action.Kind()
	if err != nil {
		return depth.Event{}, err
	}
	side, err := depth.SideFromEntryType(byte(e.EntryType))
	if err != nil {
		return depth.Event{}, err
	}
	ev := depth.Event{
		Kind:   kind,
		Symbol: e.Symbol,
		Side:   side,
		Rank:   e.Position,
	}
	if kind != depth.KindDelete {
		ev.Price = e.Price
		ev.Size = int64(e.Size)
	}
	return ev, nil
}
