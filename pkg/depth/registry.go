// 文件: pkg/depth/registry.go
// 品种 → 阶梯 的注册表 (DepthRegistry)
//
// 职责:
// 1. 首次见到某个品种的 NEW 时懒创建阶梯
// 2. 把事件路由到对应阶梯 (NEW → Insert, CHANGE → Update, DELETE → Delete)
// 3. 修改成功后回调观察者 (日志 / 广播 / 指标), 失败时记录并回调拒绝处理器
//
// 锁的层次:
//   mu 只保护 map 本身, 查到阶梯后立刻释放, 再进入阶梯自己的写锁
//   不同品种的修改完全并行

package depth

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Update 一次成功修改后的通知
type Update struct {
	Event Event     // 生效的事件, Rank 为实际落位
	Book  Book      // 修改后的双边副本
	At    time.Time // 生效时间
}

// UpdateHandler 修改成功回调
// 在阶梯写锁内同步调用, 同一品种按修改顺序到达; 不要在回调里对同一品种调用 Apply
type UpdateHandler func(Update)

// RejectHandler 事件被拒绝回调
type RejectHandler func(Event, error)

// RegistryOption 构造选项
type RegistryOption func(*Registry)

// WithLevels 默认档位数 N
func WithLevels(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.levels = n
		}
	}
}

// WithDepthResolver 按品种决定新阶梯的档位数, 返回 <= 0 时回落到默认值
func WithDepthResolver(fn func(symbol string) int) RegistryOption {
	return func(r *Registry) { r.resolve = fn }
}

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry 深度注册表
type Registry struct {
	levels  int
	resolve func(symbol string) int
	logger  *logrus.Entry

	mu      sync.RWMutex
	ladders map[string]*Ladder

	hmu            sync.RWMutex
	updateHandlers []UpdateHandler
	rejectHandlers []RejectHandler
}

// NewRegistry 创建注册表
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		levels:  DefaultLevels,
		logger:  logrus.NewEntry(logrus.StandardLogger()).WithField("component", "depth"),
		ladders: make(map[string]*Ladder),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUpdate 注册修改成功回调
func (r *Registry) OnUpdate(h UpdateHandler) {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	r.updateHandlers = append(r.updateHandlers, h)
}

// OnReject 注册拒绝回调
func (r *Registry) OnReject(h RejectHandler) {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	r.rejectHandlers = append(r.rejectHandlers, h)
}

// =============================================================================
// 事件入口
// =============================================================================

// Apply 应用一条事件
// 错误只影响这一条事件: *InvalidRankError / *UnknownInstrumentError, 或解码层的非法字段
func (r *Registry) Apply(ev Event) error {
	err := r.apply(ev)
	if err != nil {
		r.reject(ev, err)
	}
	return err
}

func (r *Registry) apply(ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	ladder := r.lookup(ev.Symbol)
	if ladder == nil {
		if ev.Kind != KindNew {
			return &UnknownInstrumentError{Symbol: ev.Symbol}
		}
		// 先校验 rank, 非法事件不留下空阶梯
		n := r.levelsFor(ev.Symbol)
		if ev.Rank < 1 || ev.Rank > n {
			return &InvalidRankError{Symbol: ev.Symbol, Side: ev.Side, Rank: ev.Rank, Depth: n}
		}
		ladder = r.getOrCreate(ev.Symbol, n)
	}

	return ladder.apply(ev.Kind, ev.Level(), func(rank int, b Book) {
		// 通知里的 rank 以实际落位为准, 与 Book 一致
		ev.Rank = rank
		r.commit(ev, b)
	})
}

// lookup 读锁查找
func (r *Registry) lookup(symbol string) *Ladder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ladders[symbol]
}

// getOrCreate 双重检查创建, 并发首次创建同一品种只会留下一个阶梯
func (r *Registry) getOrCreate(symbol string, levels int) *Ladder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ladders[symbol]; ok {
		return l
	}
	l := NewLadder(symbol, levels)
	r.ladders[symbol] = l
	r.logger.WithFields(logrus.Fields{"symbol": symbol, "levels": levels}).Info("instrument registered")
	return l
}

func (r *Registry) levelsFor(symbol string) int {
	if r.resolve != nil {
		if n := r.resolve(symbol); n > 0 {
			return n
		}
	}
	return r.levels
}

// commit 在阶梯写锁内执行: 记录日志并通知观察者
func (r *Registry) commit(ev Event, b Book) {
	if r.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		r.logger.WithFields(logrus.Fields{
			"symbol": ev.Symbol,
			"kind":   ev.Kind.String(),
			"side":   ev.Side.String(),
			"rank":   ev.Rank,
		}).Debug("depth updated\n" + b.Render())
	}

	r.hmu.RLock()
	handlers := r.updateHandlers
	r.hmu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	u := Update{Event: ev, Book: b, At: time.Now()}
	for _, h := range handlers {
		h(u)
	}
}

// reject 拒绝的事件至少留一条日志
func (r *Registry) reject(ev Event, err error) {
	r.logger.WithFields(logrus.Fields{
		"symbol": ev.Symbol,
		"kind":   ev.Kind.String(),
		"side":   ev.Side.String(),
		"rank":   ev.Rank,
		"reason": Reason(err),
	}).WithError(err).Warn("depth event rejected")

	r.hmu.RLock()
	handlers := r.rejectHandlers
	r.hmu.RUnlock()
	for _, h := range handlers {
		h(ev, err)
	}
}

// =============================================================================
// 查询
// =============================================================================

// DepthOf 某品种一侧的副本
func (r *Registry) DepthOf(symbol string, side Side) ([]Slot, error) {
	if !side.Valid() {
		return nil, ErrUnknownSide
	}
	l := r.lookup(symbol)
	if l == nil {
		return nil, &UnknownInstrumentError{Symbol: symbol}
	}
	return l.DepthOf(side), nil
}

// Book 某品种双边副本
func (r *Registry) Book(symbol string) (Book, error) {
	l := r.lookup(symbol)
	if l == nil {
		return Book{}, &UnknownInstrumentError{Symbol: symbol}
	}
	return l.Book(), nil
}

// Render 某品种文本输出
func (r *Registry) Render(symbol string) (string, error) {
	l := r.lookup(symbol)
	if l == nil {
		return "", &UnknownInstrumentError{Symbol: symbol}
	}
	return l.Render(), nil
}

// Symbols 已注册品种 (排序后)
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.ladders))
	for s := range r.ladders {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len 已注册品种数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ladders)
}
