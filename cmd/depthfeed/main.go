// 文件: cmd/depthfeed/main.go
// 深度行情进程
//
//	行情源 (simulate / kafka / nats)
//	   → Adapter → Dispatcher (按品种分片) → Registry
//	   → OnUpdate: 指标 + Broadcaster → Pump → Kafka / NATS / Redis
//
// SIGINT / SIGTERM 时按相反顺序关闭, 队列中已收到的事件会先处理完

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mdepth.com/pkg/config"
	"mdepth.com/pkg/depth"
	"mdepth.com/pkg/depthcache"
	"mdepth.com/pkg/feed"
	"mdepth.com/pkg/instrument"
	"mdepth.com/pkg/kafka"
	"mdepth.com/pkg/logging"
	"mdepth.com/pkg/market"
	"mdepth.com/pkg/metrics"
	"mdepth.com/pkg/nats"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $MDEPTH_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("depthfeed exited")
	}
	logger.Info("depthfeed stopped")
}

// closer 关闭动作, 逆序执行
type closer struct {
	name string
	fn   func() error
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				logger.WithField("resource", closers[i].name).WithError(err).Warn("close failed")
			}
		}
	}()

	// ===== 品种目录 =====
	repo, err := newInstrumentRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	catalog := instrument.NewCatalog(repo, logging.Component(logger, "instrument"))
	if err := catalog.Load(ctx); err != nil {
		return err
	}

	// ===== 注册表 =====
	registry := depth.NewRegistry(
		depth.WithLevels(cfg.Depth.Levels),
		depth.WithDepthResolver(catalog.DepthFor),
		depth.WithLogger(logging.Component(logger, "depth")),
	)

	collector := metrics.NewCollector(cfg.Metrics.Namespace)
	registry.OnUpdate(collector.ObserveUpdate)
	registry.OnReject(collector.ObserveReject)

	// ===== /metrics =====
	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics.Addr, collector, logger)
		closers = append(closers, closer{"metrics", stop})
	}

	broadcaster := market.NewBroadcaster()
	registry.OnUpdate(broadcaster.Broadcast)

	// ===== 对外发布 =====
	sinks, sinkClosers, err := newSinks(ctx, cfg, logger)
	closers = append(closers, sinkClosers...)
	if err != nil {
		return err
	}

	var pumpWG sync.WaitGroup
	if len(sinks) > 0 {
		ids, err := market.NewIDGenerator(cfg.Snowflake.Node)
		if err != nil {
			return err
		}
		pump := market.NewPump(broadcaster.Subscribe(0), ids, logging.Component(logger, "pump"), sinks...)
		pumpWG.Add(1)
		go func() {
			defer pumpWG.Done()
			// 不跟随 ctx: 广播器关闭后把剩余更新发完再退出
			pump.Run(context.Background())
		}()
		collector.TrackCounter("depth_publish_failed_total", "Sink publish failures", func() float64 {
			return float64(pump.Stats().Failed)
		})
	}
	// 注意顺序: 先停 Dispatcher, 再关广播器, 最后等 Pump 收尾
	closers = append(closers, closer{"pump", func() error { pumpWG.Wait(); return nil }})
	closers = append(closers, closer{"broadcaster", func() error { broadcaster.Close(); return nil }})

	// ===== 入口 =====
	dispatcher := feed.NewDispatcher(registry, feed.DispatcherConfig{
		Shards:   cfg.Dispatcher.Shards,
		QueueLen: cfg.Dispatcher.QueueLen,
	}, logging.Component(logger, "dispatcher"))
	closers = append(closers, closer{"dispatcher", func() error { dispatcher.Stop(); return nil }})

	adapter := feed.NewAdapter(dispatcher, logging.Component(logger, "feed"))
	sessions := feed.NewSessionMonitor(logging.Component(logger, "session"))
	closers = append(closers, closer{"sessions", func() error { sessions.Close(); return nil }})

	collector.TrackGauge("instruments_tracked", "Ladders held by the registry", func() float64 {
		return float64(registry.Len())
	})
	collector.TrackGauge("dispatcher_pending", "Events queued in dispatcher shards", func() float64 {
		return float64(dispatcher.Stats().Pending)
	})
	collector.TrackGauge("sessions_active", "Feed sessions logged on", func() float64 {
		return float64(len(sessions.Active()))
	})
	collector.TrackCounter("broadcast_dropped_total", "Updates dropped by slow subscribers", func() float64 {
		return float64(broadcaster.Dropped())
	})
	collector.TrackCounter("feed_entries_rejected_total", "Feed entries that failed to decode or enqueue", func() float64 {
		return float64(adapter.Stats().Rejected)
	})

	// ===== 行情源 =====
	session := feed.SessionID{
		BeginString:  cfg.Feed.Session.BeginString,
		SenderCompID: cfg.Feed.Session.SenderCompID,
		TargetCompID: cfg.Feed.Session.TargetCompID,
	}
	stopSource, err := startSource(cfg, catalog, adapter, logger)
	if err != nil {
		return err
	}
	sessions.Logon(session)

	logger.WithFields(logrus.Fields{
		"source":  cfg.Feed.Source,
		"levels":  cfg.Depth.Levels,
		"catalog": catalog.Len(),
		"sinks":   len(sinks),
	}).Info("depthfeed started")

	<-ctx.Done()
	logger.Info("shutting down")

	stopSource()
	sessions.Logout(session)
	return nil
}

// newInstrumentRepository DSN 为空时用内存目录, 以配置的模拟品种为种子
func newInstrumentRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (instrument.Repository, error) {
	if cfg.MySQL.DSN == "" {
		seed := make([]instrument.Instrument, 0, len(cfg.Feed.Symbols))
		for _, s := range cfg.Feed.Symbols {
			seed = append(seed, instrument.Instrument{Symbol: s, DepthLevels: cfg.Depth.Levels, Enabled: true})
		}
		return instrument.NewMemoryRepository(seed...), nil
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	repo := instrument.NewMySQLRepository(db.WithContext(ctx))
	if err := repo.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate instruments: %w", err)
	}
	logger.Info("instrument catalog backed by mysql")
	return repo, nil
}

// newSinks 按配置打开 Kafka / NATS / Redis
func newSinks(ctx context.Context, cfg config.Config, logger *logrus.Logger) ([]market.Sink, []closer, error) {
	var sinks []market.Sink
	var closers []closer

	if cfg.Kafka.Enabled {
		pcfg := kafka.DefaultProducerConfig(cfg.Kafka.Brokers)
		pcfg.RequiredAcks = cfg.Kafka.RequiredAcks
		pcfg.Compression = cfg.Kafka.Compression
		producer, err := kafka.NewProducer(pcfg, logging.Component(logger, "kafka"))
		if err != nil {
			return sinks, closers, err
		}
		closers = append(closers, closer{"kafka", producer.Close})
		sinks = append(sinks, market.NewKafkaSink(producer, cfg.Kafka.DepthTopic))
	}

	if cfg.Nats.Enabled {
		pub, err := nats.NewPublisher(cfg.Nats.URL, logging.Component(logger, "nats"))
		if err != nil {
			return sinks, closers, err
		}
		closers = append(closers, closer{"nats", func() error { pub.Close(); return nil }})
		sinks = append(sinks, market.NewNatsSink(pub, cfg.Nats.Prefix))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return sinks, closers, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, closer{"redis", client.Close})
		sinks = append(sinks, market.NewCacheSink(depthcache.NewStore(client, cfg.Redis.TTL)))
	}

	return sinks, closers, nil
}

// startSource 启动行情源, 返回停止函数
func startSource(cfg config.Config, catalog *instrument.Catalog, adapter *feed.Adapter, logger *logrus.Logger) (func(), error) {
	log := logging.Component(logger, "source")

	switch cfg.Feed.Source {
	case config.SourceKafka:
		consumer, err := kafka.NewConsumer(
			kafka.DefaultConsumerConfig(cfg.Kafka.Brokers, cfg.Feed.Kafka.GroupID, []string{cfg.Feed.Kafka.Topic}),
			func(_ string, _ int32, _ int64, _, value []byte) error {
				return adapter.HandlePayload(value)
			},
			logging.Component(logger, "kafka"),
		)
		if err != nil {
			return nil, err
		}
		consumer.Start()
		return func() {
			if err := consumer.Stop(); err != nil {
				log.WithError(err).Warn("kafka consumer stop failed")
			}
		}, nil

	case config.SourceNats:
		sub, err := nats.NewSubscriber(cfg.Nats.URL, func(_ string, data []byte) error {
			return adapter.HandlePayload(data)
		}, logging.Component(logger, "nats"))
		if err != nil {
			return nil, err
		}
		if err := sub.Subscribe(cfg.Feed.NatsSubject); err != nil {
			sub.Close()
			return nil, err
		}
		return func() { sub.Close() }, nil
	}

	// simulate
	var wg sync.WaitGroup
	sims := make([]*market.Simulator, 0, len(cfg.Feed.Symbols))
	for _, symbol := range cfg.Feed.Symbols {
		scfg := market.DefaultSimulatorConfig(symbol)
		scfg.Interval = cfg.Feed.Interval
		scfg.Levels = catalog.DepthFor(symbol)
		if scfg.Levels <= 0 {
			scfg.Levels = cfg.Depth.Levels
		}
		sim := market.NewSimulator(scfg)
		sims = append(sims, sim)

		ch := sim.Start()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range ch {
				if err := adapter.Handle(msg); err != nil {
					log.WithError(err).Debug("simulated message partially rejected")
				}
			}
		}()
	}
	return func() {
		for _, sim := range sims {
			sim.Stop()
		}
		wg.Wait()
		for _, sim := range sims {
			if n := sim.Dropped(); n > 0 {
				log.WithFields(logrus.Fields{"symbol": sim.Symbol(), "dropped": n}).Info("simulator dropped messages")
			}
		}
	}, nil
}

// serveMetrics 启动 /metrics, 返回关闭函数
func serveMetrics(addr string, collector *metrics.Collector, logger *logrus.Logger) func() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
