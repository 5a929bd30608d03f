// 文件: pkg/market/simulator.go
// 行情源模拟器
//
// 没有真实 FIX 会话时, 用它生成一个品种的深度行情:
// 1. 启动时先发一条全量快照 (每边 1..N 档 NEW)
// 2. 之后每个 tick 发一条增量: 改价 / 删档补尾 / 新的最优档
// 中间价走几何布朗运动 (GBM), 档位按 tick 间距铺开

package market

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"mdepth.com/pkg/depth"
	"mdepth.com/pkg/feed"
)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	Symbol     string        `yaml:"symbol"`
	StartPrice float64       `yaml:"start_price"`
	Interval   time.Duration `yaml:"interval"`
	Volatility float64       `yaml:"volatility"` // 年化波动率, 0.1 = 10%
	Levels     int           `yaml:"levels"`
	TickSize   float64       `yaml:"tick_size"` // 相邻档位价差
	BaseSize   int64         `yaml:"base_size"` // 单档基准数量
	Seed       int64         `yaml:"seed"`      // 0 = 按时间取种子
}

// DefaultSimulatorConfig 默认配置 (外汇风格)
func DefaultSimulatorConfig(symbol string) SimulatorConfig {
	return SimulatorConfig{
		Symbol:     symbol,
		StartPrice: 1.4330,
		Interval:   100 * time.Millisecond,
		Volatility: 0.1,
		Levels:     depth.DefaultLevels,
		TickSize:   0.0001,
		BaseSize:   1000,
	}
}

// Simulator 单品种行情模拟器
type Simulator struct {
	cfg SimulatorConfig

	mid         float64
	lastUpdated time.Time
	r           *rand.Rand

	stopChan chan struct{}
	stopOnce sync.Once
	outChan  chan feed.Message

	dropped atomic.Int64
}

// NewSimulator 创建模拟器
func NewSimulator(cfg SimulatorConfig) *Simulator {
	def := DefaultSimulatorConfig(cfg.Symbol)
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = def.StartPrice
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = def.Volatility
	}
	if cfg.Levels <= 0 {
		cfg.Levels = def.Levels
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = def.TickSize
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = def.BaseSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:         cfg,
		mid:         cfg.StartPrice,
		lastUpdated: time.Now(),
		r:           rand.New(rand.NewSource(seed)),
		stopChan:    make(chan struct{}),
		outChan:     make(chan feed.Message, 100),
	}
}

// Symbol 品种
func (s *Simulator) Symbol() string { return s.cfg.Symbol }

// Start 启动, 返回只读 Channel; Stop 后 Channel 关闭
func (s *Simulator) Start() <-chan feed.Message {
	go s.loop()
	return s.outChan
}

// Stop 停止, 可重复调用
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Dropped 下游太慢被丢弃的消息数
func (s *Simulator) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Simulator) loop() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer close(s.outChan)

	// 快照必须送达, 否则后续增量全部是未知品种
	select {
	case s.outChan <- feed.NewSnapshotMessage(s.Snapshot()):
	case <-s.stopChan:
		return
	}

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.step(now)
			// 旧行情没有价值, 下游慢就丢
			select {
			case s.outChan <- feed.NewIncrementalMessage(s.Next()):
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// step GBM 推进中间价: S *= exp(-0.5σ²dt + σ√dt·Z)
func (s *Simulator) step(now time.Time) {
	dt := now.Sub(s.lastUpdated).Hours() / 24 / 365
	if dt <= 0 {
		dt = 1e-9
	}
	sigma := s.cfg.Volatility
	z := s.r.NormFloat64()
	s.mid *= math.Exp(-0.5*sigma*sigma*dt + sigma*math.Sqrt(dt)*z)
	s.lastUpdated = now
}

// Snapshot 以当前中间价生成全量快照
func (s *Simulator) Snapshot() feed.SnapshotFullRefresh {
	entries := make([]feed.SnapshotEntry, 0, 2*s.cfg.Levels)
	for rank := 1; rank <= s.cfg.Levels; rank++ {
		entries = append(entries,
			feed.SnapshotEntry{EntryType: feed.EntryBid, Price: s.priceAt(feed.EntryBid, rank), Size: s.size(), Position: rank},
			feed.SnapshotEntry{EntryType: feed.EntryOffer, Price: s.priceAt(feed.EntryOffer, rank), Size: s.size(), Position: rank},
		)
	}
	return feed.SnapshotFullRefresh{Symbol: s.cfg.Symbol, Entries: entries}
}

// Next 生成一条增量
//
//	70% 改某一档的价和量
//	15% 删除某档, 再在尾部补一档
//	15% 出现新的最优档 (NEW rank 1, 其余下移)
func (s *Simulator) Next() feed.IncrementalRefresh {
	side := feed.EntryBid
	if s.r.Intn(2) == 0 {
		side = feed.EntryOffer
	}
	n := s.cfg.Levels
	rank := s.r.Intn(n) + 1

	switch p := s.r.Intn(100); {
	case p < 70:
		return feed.IncrementalRefresh{Entries: []feed.IncrementalEntry{
			s.entry(feed.ActionChange, side, rank),
		}}
	case p < 85:
		return feed.IncrementalRefresh{Entries: []feed.IncrementalEntry{
			{Action: feed.ActionDelete, Symbol: s.cfg.Symbol, EntryType: side, Position: rank},
			s.entry(feed.ActionNew, side, n),
		}}
	default:
		return feed.IncrementalRefresh{Entries: []feed.IncrementalEntry{
			s.entry(feed.ActionNew, side, 1),
		}}
	}
}

func (s *Simulator) entry(action feed.UpdateAction, side feed.EntryType, rank int) feed.IncrementalEntry {
	return feed.IncrementalEntry{
		Action:    action,
		Symbol:    s.cfg.Symbol,
		EntryType: side,
		Price:     s.priceAt(side, rank),
		Size:      s.size(),
		Position:  rank,
	}
}

// priceAt 买盘在中间价下方, 卖盘在上方, 每档一个 tick
func (s *Simulator) priceAt(side feed.EntryType, rank int) float64 {
	offset := (float64(rank) - 0.5) * s.cfg.TickSize
	p := s.mid + offset
	if side == feed.EntryBid {
		p = s.mid - offset
	}
	return roundTo(p, s.cfg.TickSize/10)
}

func (s *Simulator) size() float64 {
	return float64(s.cfg.BaseSize * int64(1+s.r.Intn(10)))
}

func roundTo(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
