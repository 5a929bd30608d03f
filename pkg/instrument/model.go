// 文件: pkg/instrument/model.go
// 品种目录: 哪些品种有深度, 每个品种维护几档

package instrument

import (
	"errors"
	"strings"
)

var (
	ErrSymbolNotFound = errors.New("instrument not found")
	ErrSymbolExists   = errors.New("instrument already exists")
	ErrInvalidDepth   = errors.New("instrument depth levels must be positive")
)

// Instrument 品种
type Instrument struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol      string `gorm:"column:symbol;type:varchar(32);uniqueIndex" json:"symbol"`
	DepthLevels int    `gorm:"column:depth_levels" json:"depth_levels"` // 阶梯档位数 N
	Enabled     bool   `gorm:"column:enabled;index" json:"enabled"`

	CreatedAt int64 `gorm:"column:created_at;autoCreateTime:false" json:"created_at"` // 毫秒
	UpdatedAt int64 `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

// TableName GORM 表名
func (Instrument) TableName() string {
	return "instruments"
}

// Validate 写入前校验
func (i *Instrument) Validate() error {
	i.Symbol = strings.TrimSpace(i.Symbol)
	if i.Symbol == "" {
		return errors.New("instrument symbol is empty")
	}
	if i.DepthLevels <= 0 {
		return ErrInvalidDepth
	}
	return nil
}
