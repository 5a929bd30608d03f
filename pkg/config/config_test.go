package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdepth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MDEPTH_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3, cfg.Depth.Levels)
	assert.Equal(t, SourceSimulate, cfg.Feed.Source)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
depth:
  levels: 5
log:
  level: debug
  format: text
feed:
  source: kafka
  interval: 250ms
  kafka:
    topic: fix.md
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
redis:
  enabled: true
  ttl: 1m
`)
	t.Setenv("MDEPTH_LOG_LEVEL", "warn")
	t.Setenv("MDEPTH_KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("MDEPTH_SNOWFLAKE_NODE", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Depth.Levels)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, SourceKafka, cfg.Feed.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, "fix.md", cfg.Feed.Kafka.Topic)
	assert.Equal(t, "mdepth", cfg.Feed.Kafka.GroupID, "unset keys keep defaults")
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, int64(12), cfg.Snowflake.Node)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "depth:\n  levels: 7\n")
	t.Setenv("MDEPTH_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Depth.Levels)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("MDEPTH_CONFIG", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "depth: [oops"))
	assert.Error(t, err)

	t.Setenv("MDEPTH_DEPTH_LEVELS", "three")
	_, err = Load("")
	assert.ErrorContains(t, err, "MDEPTH_DEPTH_LEVELS")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Depth.Levels = 0
	bad.Feed.Source = "fix"
	bad.Snowflake.Node = 2048
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "depth.levels")
	assert.ErrorContains(t, err, "feed.source")
	assert.ErrorContains(t, err, "snowflake.node")

	noSymbols := Default()
	noSymbols.Feed.Symbols = nil
	assert.Error(t, noSymbols.Validate())

	kafka := Default()
	kafka.Kafka.Enabled = true
	kafka.Kafka.DepthTopic = ""
	assert.Error(t, kafka.Validate())
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b,"))
	assert.Nil(t, splitCSV(""))
}
