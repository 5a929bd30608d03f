// 文件: pkg/feed/dispatcher.go
// 按品种分片的单写者队列
//
// 核心设计:
// 1. 每个分片一个 goroutine, 从 Channel 串行取事件应用到注册表
// 2. 同一品种永远落在同一分片 (xxhash(symbol) % shards), 顺序不变
// 3. 不同品种分散到多个分片并行处理
// 4. Stop 时处理完队列中剩余事件再退出

package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"mdepth.com/pkg/depth"
)

var (
	ErrShardClosed = errors.New("dispatcher is closed")
	ErrQueueFull   = errors.New("dispatcher queue is full")
)

// DispatcherConfig 分片配置
type DispatcherConfig struct {
	Shards   int `yaml:"shards"`    // 分片数
	QueueLen int `yaml:"queue_len"` // 每个分片的队列长度
}

// DefaultDispatcherConfig 默认配置
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Shards:   8,
		QueueLen: 10000,
	}
}

// DispatcherStats 统计
type DispatcherStats struct {
	Enqueued int64
	Applied  int64
	Failed   int64
	Dropped  int64 // TryApply 队列满被丢弃
	Pending  int   // 当前排队数
}

// ErrorHandler 异步应用失败时的回调
type ErrorHandler func(ev depth.Event, err error)

type task struct {
	ev     depth.Event
	result chan error // 可选, Submit 时等待结果
}

// Dispatcher 分片调度器, 实现 Applier
type Dispatcher struct {
	target Applier
	queues []chan task
	logger *logrus.Entry

	onError ErrorHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 入队持读锁, Stop 持写锁置 closed
	// 保证 cancel 之前所有已接受的事件都已进队, 会被分片处理掉
	mu     sync.RWMutex
	closed bool

	enqueued atomic.Int64
	applied  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewDispatcher 创建并启动调度器
func NewDispatcher(target Applier, cfg DispatcherConfig, logger *logrus.Entry) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = def.QueueLen
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		target: target,
		queues: make([]chan task, cfg.Shards),
		logger: logger.WithField("component", "dispatcher"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range d.queues {
		d.queues[i] = make(chan task, cfg.QueueLen)
		d.wg.Add(1)
		go d.loop(i)
	}
	d.logger.WithFields(logrus.Fields{
		"shards":    cfg.Shards,
		"queue_len": cfg.QueueLen,
	}).Info("dispatcher started")
	return d
}

// OnError 设置失败回调, 须在投递事件之前调用
func (d *Dispatcher) OnError(h ErrorHandler) {
	d.onError = h
}

// ShardOf 品种所在分片
func (d *Dispatcher) ShardOf(symbol string) int {
	return int(xxhash.Sum64String(symbol) % uint64(len(d.queues)))
}

// Apply 入队, 队列满时阻塞 (反压到行情源)
// 返回 nil 只表示已入队, 应用结果走 OnError
// 阻塞期间 Stop 会等待这次入队完成, 分片仍在消费所以不会卡死
func (d *Dispatcher) Apply(ev depth.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrShardClosed
	}
	d.queues[d.ShardOf(ev.Symbol)] <- task{ev: ev}
	d.enqueued.Add(1)
	return nil
}

// TryApply 非阻塞入队, 队列满直接丢弃
func (d *Dispatcher) TryApply(ev depth.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrShardClosed
	}
	select {
	case d.queues[d.ShardOf(ev.Symbol)] <- task{ev: ev}:
		d.enqueued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Submit 入队并等待应用结果
func (d *Dispatcher) Submit(ctx context.Context, ev depth.Event) error {
	t := task{ev: ev, result: make(chan error, 1)}
	if err := d.enqueue(ctx, t); err != nil {
		return err
	}

	// 已入队的事件一定会被处理, 结果一定会到
	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, t task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrShardClosed
	}
	select {
	case d.queues[d.ShardOf(t.ev.Symbol)] <- t:
		d.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止接收新事件, 处理完剩余事件后返回
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.logger.WithField("applied", d.applied.Load()).Info("dispatcher stopped")
}

// Stats 统计
func (d *Dispatcher) Stats() DispatcherStats {
	pending := 0
	for _, q := range d.queues {
		pending += len(q)
	}
	return DispatcherStats{
		Enqueued: d.enqueued.Load(),
		Applied:  d.applied.Load(),
		Failed:   d.failed.Load(),
		Dropped:  d.dropped.Load(),
		Pending:  pending,
	}
}

func (d *Dispatcher) loop(shard int) {
	defer d.wg.Done()
	q := d.queues[shard]
	for {
		select {
		case <-d.ctx.Done():
			d.drain(q)
			return
		case t := <-q:
			d.handle(t)
		}
	}
}

func (d *Dispatcher) drain(q chan task) {
	for {
		select {
		case t := <-q:
			d.handle(t)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(t task) {
	err := d.target.Apply(t.ev)
	if err != nil {
		d.failed.Add(1)
		if d.onError != nil {
			d.onError(t.ev, err)
		}
	} else {
		d.applied.Add(1)
	}
	if t.result != nil {
		t.result <- err
	}
}
