// 文件: pkg/instrument/catalog.go
// 品种目录的内存视图
//
// 启动时 Load 一次, 之后 DepthFor 在注册表创建阶梯时被调用 (热路径之外, 每个品种一次)

package instrument

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Catalog 已启用品种的缓存
type Catalog struct {
	repo   Repository
	logger *logrus.Entry

	mu     sync.RWMutex
	levels map[string]int
}

// NewCatalog 创建目录
func NewCatalog(repo Repository, logger *logrus.Entry) *Catalog {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Catalog{
		repo:   repo,
		logger: logger.WithField("component", "instrument_catalog"),
		levels: make(map[string]int),
	}
}

// Load 重新加载所有启用的品种
func (c *Catalog) Load(ctx context.Context) error {
	list, err := c.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	levels := make(map[string]int, len(list))
	for _, inst := range list {
		levels[inst.Symbol] = inst.DepthLevels
	}

	c.mu.Lock()
	c.levels = levels
	c.mu.Unlock()

	c.logger.WithField("instruments", len(levels)).Info("instrument catalog loaded")
	return nil
}

// DepthFor 品种的档位数; 未登记返回 0, 由调用方回落到默认值
// 签名与 depth.WithDepthResolver 对齐
func (c *Catalog) DepthFor(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.levels[symbol]
}

// Known 是否登记
func (c *Catalog) Known(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.levels[symbol]
	return ok
}

// Len 已加载品种数
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.levels)
}
