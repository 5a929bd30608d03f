// 文件: pkg/instrument/repository.go
// 品种存储: MySQL (GORM) 与内存两种实现

package instrument

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Repository 品种存储接口
type Repository interface {
	// Create symbol 已存在返回 ErrSymbolExists
	Create(ctx context.Context, inst *Instrument) error
	// GetBySymbol 不存在返回 ErrSymbolNotFound
	GetBySymbol(ctx context.Context, symbol string) (*Instrument, error)
	// ListEnabled 所有启用的品种, 按 symbol 排序
	ListEnabled(ctx context.Context) ([]*Instrument, error)
}

var (
	_ Repository = (*MySQLRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

// =============================================================================
// MySQL
// =============================================================================

// MySQLRepository GORM 实现
type MySQLRepository struct {
	db *gorm.DB
}

// NewMySQLRepository 创建 MySQL 存储
func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// AutoMigrate 建表
func (r *MySQLRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Instrument{})
}

func (r *MySQLRepository) Create(ctx context.Context, inst *Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(inst).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrSymbolExists
		}
		return err
	}
	return nil
}

func (r *MySQLRepository) GetBySymbol(ctx context.Context, symbol string) (*Instrument, error) {
	var inst Instrument
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSymbolNotFound
		}
		return nil, err
	}
	return &inst, nil
}

func (r *MySQLRepository) ListEnabled(ctx context.Context) ([]*Instrument, error) {
	var list []*Instrument
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("symbol ASC").
		Find(&list).Error
	return list, err
}

// isDuplicateKeyError MySQL 1062 = Duplicate entry
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "1062")
}

// =============================================================================
// 内存
// =============================================================================

// MemoryRepository 内存实现, 没有配置数据库时使用, 也用于测试
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID uint
	items  map[string]*Instrument
}

// NewMemoryRepository 可带初始品种
func NewMemoryRepository(seed ...Instrument) *MemoryRepository {
	r := &MemoryRepository{items: make(map[string]*Instrument)}
	for i := range seed {
		inst := seed[i]
		_ = r.Create(context.Background(), &inst)
	}
	return r
}

func (r *MemoryRepository) Create(_ context.Context, inst *Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[inst.Symbol]; ok {
		return ErrSymbolExists
	}
	r.nextID++
	now := time.Now().UnixMilli()
	inst.ID = r.nextID
	inst.CreatedAt = now
	inst.UpdatedAt = now

	cp := *inst
	r.items[inst.Symbol] = &cp
	return nil
}

func (r *MemoryRepository) GetBySymbol(_ context.Context, symbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.items[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	cp := *inst
	return &cp, nil
}

func (r *MemoryRepository) ListEnabled(_ context.Context) ([]*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Instrument, 0, len(r.items))
	for _, inst := range r.items {
		if inst.Enabled {
			cp := *inst
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
	return list, nil
}
