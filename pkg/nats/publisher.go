// 文件: pkg/nats/publisher.go
// NATS 消息发布者
// 轻量级替代 Kafka，适合本地开发和同机房内的低延迟扇出

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher NATS 发布者
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher 创建发布者
func NewPublisher(url string, logger *logrus.Entry) (*Publisher, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "nats_publisher")

	conn, err := nats.Connect(url, connectOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// Publish 发布消息 (JSON)
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// PublishRaw 发布原始消息
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close 先 flush 再关闭连接
func (p *Publisher) Close() {
	if err := p.conn.Flush(); err != nil {
		p.logger.WithError(err).Warn("nats flush on close failed")
	}
	p.conn.Close()
}

// connectOptions 断线重连时留日志
func connectOptions(logger *logrus.Entry) []nats.Option {
	return []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	}
}
