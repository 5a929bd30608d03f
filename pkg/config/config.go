// 文件: pkg/config/config.go
// 进程配置
//
// 加载顺序 (后者覆盖前者):
//   内置默认值 → YAML 文件 → MDEPTH_* 环境变量
// .env 文件 (若存在) 在读取环境变量之前加载, 已存在的环境变量不会被覆盖

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mdepth.com/pkg/depth"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MDEPTH_"

// Feed 数据源
const (
	SourceSimulate = "simulate"
	SourceKafka    = "kafka"
	SourceNats     = "nats"
)

// Config 全部配置
type Config struct {
	Depth      Depth      `yaml:"depth"`
	Log        Log        `yaml:"log"`
	Feed       Feed       `yaml:"feed"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
	Kafka      Kafka      `yaml:"kafka"`
	Nats       Nats       `yaml:"nats"`
	Redis      Redis      `yaml:"redis"`
	MySQL      MySQL      `yaml:"mysql"`
	Metrics    Metrics    `yaml:"metrics"`
	Snowflake  Snowflake  `yaml:"snowflake"`
}

// Depth 阶梯
type Depth struct {
	Levels int `yaml:"levels"` // 默认档位数 N
}

// Log 日志
type Log struct {
	Level  string `yaml:"level"`  // trace/debug/info/warn/error
	Format string `yaml:"format"` // json / text
}

// Feed 行情源
type Feed struct {
	Source      string        `yaml:"source"`  // simulate / kafka / nats
	Symbols     []string      `yaml:"symbols"` // simulate 时模拟的品种
	Interval    time.Duration `yaml:"interval"`
	Session     Session       `yaml:"session"`
	Kafka       FeedKafka     `yaml:"kafka"`
	NatsSubject string        `yaml:"nats_subject"` // nats 源的订阅 subject
}

// Session FIX 会话标识
type Session struct {
	BeginString  string `yaml:"begin_string"`
	SenderCompID string `yaml:"sender_comp_id"`
	TargetCompID string `yaml:"target_comp_id"`
}

// FeedKafka kafka 源
type FeedKafka struct {
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

// Dispatcher 分片
type Dispatcher struct {
	Shards   int `yaml:"shards"`
	QueueLen int `yaml:"queue_len"`
}

// Kafka 发布
type Kafka struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	DepthTopic   string   `yaml:"depth_topic"`
	RequiredAcks int      `yaml:"required_acks"`
	Compression  string   `yaml:"compression"`
}

// Nats 发布
type Nats struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Prefix  string `yaml:"subject_prefix"`
}

// Redis 深度缓存
type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MySQL 品种目录, DSN 为空时用内存目录
type MySQL struct {
	DSN string `yaml:"dsn"`
}

// Metrics /metrics
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Snowflake UpdateID 节点
type Snowflake struct {
	Node int64 `yaml:"node"`
}

// Default 内置默认值
func Default() Config {
	return Config{
		Depth: Depth{Levels: depth.DefaultLevels},
		Log:   Log{Level: "info", Format: "json"},
		Feed: Feed{
			Source:   SourceSimulate,
			Symbols:  []string{"EURUSD"},
			Interval: 100 * time.Millisecond,
			Session: Session{
				BeginString:  "FIX.4.4",
				SenderCompID: "MDEPTH",
				TargetCompID: "VENUE",
			},
			Kafka:       FeedKafka{Topic: "md.feed", GroupID: "mdepth"},
			NatsSubject: "md.feed.>",
		},
		Dispatcher: Dispatcher{Shards: 8, QueueLen: 10000},
		Kafka: Kafka{
			Brokers:      []string{"localhost:9092"},
			DepthTopic:   "md.depth",
			RequiredAcks: 1,
			Compression:  "snappy",
		},
		Nats:    Nats{URL: "nats://127.0.0.1:4222", Prefix: "md.depth"},
		Redis:   Redis{Addr: "localhost:6379", TTL: 5 * time.Minute},
		Metrics: Metrics{Enabled: true, Addr: ":9102", Namespace: "mdepth"},
	}
}

// Load path 为空时尝试 MDEPTH_CONFIG; 都为空则只用默认值 + 环境变量
func Load(path string) (Config, error) {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验
func (c Config) Validate() error {
	var errs []error
	if c.Depth.Levels <= 0 {
		errs = append(errs, fmt.Errorf("depth.levels must be positive, got %d", c.Depth.Levels))
	}
	switch c.Feed.Source {
	case SourceSimulate:
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, errors.New("feed.symbols is empty for simulate source"))
		}
	case SourceKafka:
		if len(c.Kafka.Brokers) == 0 || c.Feed.Kafka.Topic == "" {
			errs = append(errs, errors.New("feed.kafka.topic and kafka.brokers are required for kafka source"))
		}
	case SourceNats:
		if c.Nats.URL == "" || c.Feed.NatsSubject == "" {
			errs = append(errs, errors.New("nats.url and feed.nats_subject are required for nats source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed.source %q", c.Feed.Source))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.DepthTopic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.depth_topic are required when kafka is enabled"))
	}
	if c.Snowflake.Node < 0 || c.Snowflake.Node > 1023 {
		errs = append(errs, fmt.Errorf("snowflake.node must be in [0, 1023], got %d", c.Snowflake.Node))
	}
	return errors.Join(errs...)
}

// =============================================================================
// 环境变量覆盖
// =============================================================================

func (c *Config) applyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitCSV(v)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	num("DEPTH_LEVELS", &c.Depth.Levels)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("FEED_SOURCE", &c.Feed.Source)
	list("FEED_SYMBOLS", &c.Feed.Symbols)
	dur("FEED_INTERVAL", &c.Feed.Interval)
	str("FEED_KAFKA_TOPIC", &c.Feed.Kafka.Topic)
	str("FEED_KAFKA_GROUP", &c.Feed.Kafka.GroupID)
	str("FEED_NATS_SUBJECT", &c.Feed.NatsSubject)

	num("DISPATCHER_SHARDS", &c.Dispatcher.Shards)
	num("DISPATCHER_QUEUE_LEN", &c.Dispatcher.QueueLen)

	flag("KAFKA_ENABLED", &c.Kafka.Enabled)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_DEPTH_TOPIC", &c.Kafka.DepthTopic)

	flag("NATS_ENABLED", &c.Nats.Enabled)
	str("NATS_URL", &c.Nats.URL)

	flag("REDIS_ENABLED", &c.Redis.Enabled)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	str("MYSQL_DSN", &c.MySQL.DSN)

	flag("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_ADDR", &c.Metrics.Addr)

	node := int(c.Snowflake.Node)
	num("SNOWFLAKE_NODE", &node)
	c.Snowflake.Node = int64(node)

	return errors.Join(errs...)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
