// 文件: pkg/depthcache/redis_store.go
// 最新深度的 Redis 缓存
//
// Key 设计:
//   depth:book:{symbol}  → Book JSON (带 TTL, 行情断流后自然过期)
//   depth:symbols        → Set, 出现过的品种
//
// 只缓存每个品种的最新一本, 不做历史; 供监控面板和其它进程读取

package depthcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"mdepth.com/pkg/depth"
)

const (
	keyPrefix  = "depth:"
	keyBook    = keyPrefix + "book:%s"
	keySymbols = keyPrefix + "symbols"

	// DefaultTTL 默认过期时间
	DefaultTTL = 5 * time.Minute
)

var ErrNotCached = errors.New("depth book not cached")

// Store Redis 深度缓存
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore 创建缓存, ttl <= 0 时用默认值
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func bookKey(symbol string) string {
	return fmt.Sprintf(keyBook, symbol)
}

// Save 覆盖写入一本深度, 并登记品种
func (s *Store) Save(ctx context.Context, b depth.Book) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal book %s: %w", b.Symbol, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, bookKey(b.Symbol), data, s.ttl)
	pipe.SAdd(ctx, keySymbols, b.Symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache book %s: %w", b.Symbol, err)
	}
	return nil
}

// Get 读取一本深度, 未命中返回 ErrNotCached
func (s *Store) Get(ctx context.Context, symbol string) (depth.Book, error) {
	data, err := s.client.Get(ctx, bookKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return depth.Book{}, ErrNotCached
		}
		return depth.Book{}, err
	}

	var b depth.Book
	if err := json.Unmarshal(data, &b); err != nil {
		return depth.Book{}, fmt.Errorf("unmarshal book %s: %w", symbol, err)
	}
	return b, nil
}

// Symbols 登记过的品种 (排序)
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := s.client.SMembers(ctx, keySymbols).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Delete 删除一个品种的缓存
func (s *Store) Delete(ctx context.Context, symbol string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, bookKey(symbol))
	pipe.SRem(ctx, keySymbols, symbol)
	_, err := pipe.Exec(ctx)
	return err
}
