package instrument

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mdepth.com/pkg/depth"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(
		Instrument{Symbol: "EURUSD", DepthLevels: 3, Enabled: true},
		Instrument{Symbol: "BTCUSD", DepthLevels: 10, Enabled: true},
		Instrument{Symbol: "XAUUSD", DepthLevels: 5, Enabled: false},
	)

	inst, err := repo.GetBySymbol(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 10, inst.DepthLevels)
	assert.NotZero(t, inst.ID)
	assert.NotZero(t, inst.CreatedAt)

	_, err = repo.GetBySymbol(ctx, "GBPUSD")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	err = repo.Create(ctx, &Instrument{Symbol: "EURUSD", DepthLevels: 3})
	assert.ErrorIs(t, err, ErrSymbolExists)
	assert.ErrorIs(t, repo.Create(ctx, &Instrument{Symbol: "GBPUSD"}), ErrInvalidDepth)
	assert.Error(t, repo.Create(ctx, &Instrument{Symbol: "  ", DepthLevels: 3}))

	list, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "BTCUSD", list[0].Symbol)
	assert.Equal(t, "EURUSD", list[1].Symbol)

	// 返回的是副本
	list[0].DepthLevels = 99
	again, _ := repo.GetBySymbol(ctx, "BTCUSD")
	assert.Equal(t, 10, again.DepthLevels)
}

func TestCatalog_DepthFor(t *testing.T) {
	repo := NewMemoryRepository(
		Instrument{Symbol: "EURUSD", DepthLevels: 3, Enabled: true},
		Instrument{Symbol: "BTCUSD", DepthLevels: 10, Enabled: true},
		Instrument{Symbol: "XAUUSD", DepthLevels: 5, Enabled: false},
	)
	cat := NewCatalog(repo, nil)
	require.NoError(t, cat.Load(context.Background()))

	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, 10, cat.DepthFor("BTCUSD"))
	assert.Equal(t, 0, cat.DepthFor("XAUUSD"))
	assert.True(t, cat.Known("EURUSD"))
	assert.False(t, cat.Known("XAUUSD"))
}

// 目录决定新阶梯的档位数, 未登记的品种用默认值
func TestCatalog_FeedsRegistry(t *testing.T) {
	cat := NewCatalog(NewMemoryRepository(Instrument{Symbol: "BTCUSD", DepthLevels: 5, Enabled: true}), nil)
	require.NoError(t, cat.Load(context.Background()))

	reg := depth.NewRegistry(depth.WithDepthResolver(cat.DepthFor))
	require.NoError(t, reg.Apply(depth.Event{Kind: depth.KindNew, Symbol: "BTCUSD", Side: depth.SideBid, Rank: 5, Price: 1, Size: 1}))
	require.NoError(t, reg.Apply(depth.Event{Kind: depth.KindNew, Symbol: "EURUSD", Side: depth.SideBid, Rank: 1, Price: 1, Size: 1}))

	btc, err := reg.DepthOf("BTCUSD", depth.SideBid)
	require.NoError(t, err)
	assert.Len(t, btc, 5)
	eur, err := reg.DepthOf("EURUSD", depth.SideBid)
	require.NoError(t, err)
	assert.Len(t, eur, depth.DefaultLevels)
}

// =============================================================================
// MySQL (需要 MDEPTH_MYSQL_DSN)
// =============================================================================

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := os.Getenv("MDEPTH_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping test; MDEPTH_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("skipping test; mysql not available: %v", err)
	}
	require.NoError(t, db.Migrator().DropTable(&Instrument{}))
	return db
}

func TestMySQLRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMySQLRepository(db)
	require.NoError(t, repo.AutoMigrate())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Instrument{Symbol: "EURUSD", DepthLevels: 3, Enabled: true}))
	require.NoError(t, repo.Create(ctx, &Instrument{Symbol: "USDJPY", DepthLevels: 5, Enabled: false}))
	assert.ErrorIs(t, repo.Create(ctx, &Instrument{Symbol: "EURUSD", DepthLevels: 3}), ErrSymbolExists)

	inst, err := repo.GetBySymbol(ctx, "USDJPY")
	require.NoError(t, err)
	assert.Equal(t, 5, inst.DepthLevels)
	assert.False(t, inst.Enabled)

	_, err = repo.GetBySymbol(ctx, "GBPUSD")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	list, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EURUSD", list[0].Symbol)
}
