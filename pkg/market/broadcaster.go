// 文件: pkg/market/broadcaster.go
// 深度更新广播器 (Fan-out)
//
//	      Registry.OnUpdate (生产者)
//	            |
//	            v
//	     [Broadcaster]
//	       /    |    \
//	      v     v     v
//	   Pump   指标   监控面板
//
// 订阅者之间互相隔离: 一个订阅者处理慢, 只丢它自己的数据

package market

import (
	"sync"
	"sync/atomic"

	"mdepth.com/pkg/depth"
)

// DefaultSubscriberBuffer 订阅 Channel 默认缓冲
const DefaultSubscriberBuffer = 1024

// Broadcaster 深度更新广播器
type Broadcaster struct {
	// Subscribe 写, Broadcast 读; 读多写少
	mu          sync.RWMutex
	subscribers []chan depth.Update
	closed      bool

	dropped atomic.Int64
}

// NewBroadcaster 创建广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make([]chan depth.Update, 0),
	}
}

// Subscribe 订阅, buffer <= 0 时用默认缓冲
// 广播器已关闭时返回一个已关闭的 Channel
func (b *Broadcaster) Subscribe(buffer int) <-chan depth.Update {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan depth.Update, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast 广播一次更新 (Hot Path)
// 订阅者 Channel 满了直接丢弃, 绝不阻塞注册表的写锁
func (b *Broadcaster) Broadcast(u depth.Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped 累计丢弃次数
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers 当前订阅者数量
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close 关闭所有订阅者的 Channel, 之后的 Broadcast 是空操作
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
