// 文件: pkg/market/pump.go
// 把广播器的一路订阅转成对外发布
//
//	Broadcaster ──Subscribe──> Pump ──> KafkaSink (topic, key=symbol)
//	                                 ├─> NatsSink  (subject prefix.symbol)
//	                                 └─> CacheSink (Redis 最新一本)
//
// 每条更新先盖上 UpdateID, 再依次交给所有 Sink; 某个 Sink 失败只记日志

package market

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"mdepth.com/pkg/depth"
	"mdepth.com/pkg/kafka"
	"mdepth.com/pkg/nats"
)

// Sink 深度消息的落地方
type Sink interface {
	Name() string
	Publish(ctx context.Context, m *DepthMessage) error
}

// =============================================================================
// Sinks
// =============================================================================

// KafkaSender *kafka.Producer 满足
type KafkaSender interface {
	Send(msg kafka.Message) error
}

// KafkaSink 写入 Kafka topic, key = symbol
type KafkaSink struct {
	sender KafkaSender
	topic  string
}

func NewKafkaSink(sender KafkaSender, topic string) *KafkaSink {
	return &KafkaSink{sender: sender, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(_ context.Context, m *DepthMessage) error {
	return s.sender.Send(topicMessage{topic: s.topic, msg: m})
}

// NatsPublisher *nats.Publisher 满足
type NatsPublisher interface {
	PublishRaw(subject string, data []byte) error
}

// NatsSink 每个品种一个 subject
type NatsSink struct {
	pub    NatsPublisher
	prefix string
}

func NewNatsSink(pub NatsPublisher, prefix string) *NatsSink {
	return &NatsSink{pub: pub, prefix: prefix}
}

func (s *NatsSink) Name() string { return "nats" }

func (s *NatsSink) Publish(_ context.Context, m *DepthMessage) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return s.pub.PublishRaw(nats.Subject(s.prefix, m.Symbol), data)
}

// BookSaver *depthcache.Store 满足
type BookSaver interface {
	Save(ctx context.Context, b depth.Book) error
}

// CacheSink 只保存最新的整本深度
type CacheSink struct {
	store BookSaver
}

func NewCacheSink(store BookSaver) *CacheSink {
	return &CacheSink{store: store}
}

func (s *CacheSink) Name() string { return "cache" }

func (s *CacheSink) Publish(ctx context.Context, m *DepthMessage) error {
	return s.store.Save(ctx, m.Book)
}

// =============================================================================
// Pump
// =============================================================================

// PumpStats 统计
type PumpStats struct {
	Published int64 // 处理的更新数
	Failed    int64 // Sink 失败次数 (一条更新可能失败多次)
}

// Pump 发布泵
type Pump struct {
	in     <-chan depth.Update
	ids    *IDGenerator
	sinks  []Sink
	logger *logrus.Entry

	published atomic.Int64
	failed    atomic.Int64
}

// NewPump in 通常来自 Broadcaster.Subscribe
func NewPump(in <-chan depth.Update, ids *IDGenerator, logger *logrus.Entry, sinks ...Sink) *Pump {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pump{
		in:     in,
		ids:    ids,
		sinks:  sinks,
		logger: logger.WithField("component", "pump"),
	}
}

// Run 阻塞运行, ctx 结束或输入 Channel 关闭时返回
func (p *Pump) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-p.in:
			if !ok {
				return
			}
			p.publish(ctx, u)
		}
	}
}

// Stats 统计
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pump) publish(ctx context.Context, u depth.Update) {
	m := NewDepthMessage(p.ids.Next(), u)
	p.published.Add(1)

	for _, s := range p.sinks {
		if err := s.Publish(ctx, m); err != nil {
			p.failed.Add(1)
			p.logger.WithFields(logrus.Fields{
				"sink":      s.Name(),
				"symbol":    m.Symbol,
				"update_id": m.UpdateID,
			}).WithError(err).Warn("depth publish failed")
		}
	}
}
