// 文件: pkg/metrics/collector.go
// Prometheus 指标
//
// 事件计数挂在注册表的 OnUpdate / OnReject 上,
// 其余组件已有的原子计数 (广播丢弃, 队列积压) 通过 Func 指标在抓取时读取

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mdepth.com/pkg/depth"
)

// DefaultNamespace 指标前缀
const DefaultNamespace = "mdepth"

// Collector 指标集合, 使用独立的 Registry
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	applied  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	bestBid  *prometheus.GaugeVec
	bestOfr  *prometheus.GaugeVec
}

// NewCollector 创建并注册基础指标
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	c := &Collector{
		namespace: namespace,
		registry:  reg,
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Depth events applied to a ladder, by kind and side",
		}, []string{"kind", "side"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Depth events rejected, by kind and reason",
		}, []string{"kind", "reason"}),
		bestBid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_bid_price",
			Help:      "Rank 1 bid price per symbol",
		}, []string{"symbol"}),
		bestOfr: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_offer_price",
			Help:      "Rank 1 offer price per symbol",
		}, []string{"symbol"}),
	}
	reg.MustRegister(
		c.applied, c.rejected, c.bestBid, c.bestOfr,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveUpdate 签名与 depth.UpdateHandler 一致
func (c *Collector) ObserveUpdate(u depth.Update) {
	c.applied.WithLabelValues(u.Event.Kind.String(), u.Event.Side.String()).Inc()

	if lv, ok := u.Book.Best(depth.SideBid); ok {
		c.bestBid.WithLabelValues(u.Book.Symbol).Set(lv.Price)
	} else {
		c.bestBid.DeleteLabelValues(u.Book.Symbol)
	}
	if lv, ok := u.Book.Best(depth.SideOffer); ok {
		c.bestOfr.WithLabelValues(u.Book.Symbol).Set(lv.Price)
	} else {
		c.bestOfr.DeleteLabelValues(u.Book.Symbol)
	}
}

// ObserveReject 签名与 depth.RejectHandler 一致
func (c *Collector) ObserveReject(ev depth.Event, err error) {
	c.rejected.WithLabelValues(ev.Kind.String(), depth.Reason(err)).Inc()
}

// TrackGauge 抓取时调用 fn 取值 (如 instruments_tracked, dispatcher_pending)
func (c *Collector) TrackGauge(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// TrackCounter 单调递增的外部计数 (如 broadcast_dropped_total)
func (c *Collector) TrackCounter(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry 底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
