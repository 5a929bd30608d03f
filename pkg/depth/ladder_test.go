package depth

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 测试辅助
// =============================================================================

const testSymbol = "EURUSD"

func lvl(side Side, rank int, price float64, size int64) PriceLevel {
	return PriceLevel{Symbol: testSymbol, Side: side, Rank: rank, Price: price, Size: size}
}

// fullLadder 三档买卖都填满
func fullLadder(t *testing.T) *Ladder {
	t.Helper()
	l := NewLadder(testSymbol, 3)
	bids := []float64{1.4335, 1.4334, 1.4333}
	offers := []float64{1.4326, 1.4327, 1.4328}
	for i := range bids {
		require.NoError(t, l.Insert(lvl(SideBid, i+1, bids[i], 1000)))
		require.NoError(t, l.Insert(lvl(SideOffer, i+1, offers[i], 1000)))
	}
	return l
}

func prices(slots []Slot) []float64 {
	out := make([]float64, 0, len(slots))
	for _, s := range slots {
		if lv, ok := s.Level(); ok {
			out = append(out, lv.Price)
		}
	}
	return out
}

// assertInvariants 检查非空位构成前缀且 rank == index+1
func assertInvariants(t *testing.T, slots []Slot) {
	t.Helper()
	seenEmpty := false
	for i, s := range slots {
		lv, ok := s.Level()
		if !ok {
			seenEmpty = true
			continue
		}
		require.False(t, seenEmpty, "gap before index %d", i)
		require.Equal(t, i+1, lv.Rank, "rank mismatch at index %d", i)
	}
}

// =============================================================================
// Insert
// =============================================================================

func TestLadder_InsertOrdering(t *testing.T) {
	l := fullLadder(t)

	bids := l.DepthOf(SideBid)
	require.Len(t, bids, 3)
	best, ok := bids[0].Level()
	require.True(t, ok)
	assert.Equal(t, 1.4335, best.Price)
	assert.Equal(t, []float64{1.4335, 1.4334, 1.4333}, prices(bids))
	assert.Equal(t, []float64{1.4326, 1.4327, 1.4328}, prices(l.DepthOf(SideOffer)))
}

func TestLadder_InsertShiftDropsLast(t *testing.T) {
	l := fullLadder(t)

	require.NoError(t, l.Insert(lvl(SideBid, 2, 1.43345, 500)))

	bids := l.DepthOf(SideBid)
	require.Len(t, bids, 3)
	assert.Equal(t, []float64{1.4335, 1.43345, 1.4334}, prices(bids))

	moved, _ := bids[2].Level()
	assert.Equal(t, 3, moved.Rank)
	assertInvariants(t, bids)

	// 卖盘不受影响
	assert.Equal(t, []float64{1.4326, 1.4327, 1.4328}, prices(l.DepthOf(SideOffer)))
}

func TestLadder_InsertIntoPartialLadder(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideBid, 1, 10, 1)))
	require.NoError(t, l.Insert(lvl(SideBid, 1, 11, 1)))

	bids := l.DepthOf(SideBid)
	assert.Equal(t, []float64{11, 10}, prices(bids))
	assert.True(t, bids[2].Empty())
	assertInvariants(t, bids)
}

func TestLadder_InsertBeyondPrefixIsCompacted(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideOffer, 3, 1.5, 7)))

	offers := l.DepthOf(SideOffer)
	lv, ok := offers[0].Level()
	require.True(t, ok)
	assert.Equal(t, 1, lv.Rank)
	assert.Equal(t, 1.5, lv.Price)
	assert.True(t, offers[1].Empty())
	assert.True(t, offers[2].Empty())
}

func TestLadder_InvalidRank(t *testing.T) {
	l := fullLadder(t)
	before := l.Book()

	for _, rank := range []int{0, -1, 4} {
		err := l.Insert(lvl(SideBid, rank, 9, 9))
		require.ErrorIs(t, err, ErrInvalidRank)

		var rankErr *InvalidRankError
		require.ErrorAs(t, err, &rankErr)
		assert.Equal(t, rank, rankErr.Rank)
		assert.Equal(t, 3, rankErr.Depth)

		require.ErrorIs(t, l.Update(lvl(SideBid, rank, 9, 9)), ErrInvalidRank)
		require.ErrorIs(t, l.Delete(SideBid, rank), ErrInvalidRank)
	}

	assert.Equal(t, before, l.Book())
}

func TestLadder_UnknownSide(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.ErrorIs(t, l.Insert(lvl(Side(9), 1, 1, 1)), ErrUnknownSide)
}

// =============================================================================
// Update
// =============================================================================

func TestLadder_UpdateInPlace(t *testing.T) {
	l := fullLadder(t)

	require.NoError(t, l.Update(lvl(SideBid, 1, 9.99, 100)))

	bids := l.DepthOf(SideBid)
	top, _ := bids[0].Level()
	assert.Equal(t, 9.99, top.Price)
	assert.Equal(t, int64(100), top.Size)
	assert.Equal(t, []float64{9.99, 1.4334, 1.4333}, prices(bids))
	assertInvariants(t, bids)
}

func TestLadder_UpdateEmptySlotFills(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Update(lvl(SideBid, 1, 2.5, 10)))

	bids := l.DepthOf(SideBid)
	top, ok := bids[0].Level()
	require.True(t, ok)
	assert.Equal(t, 2.5, top.Price)
	assertInvariants(t, bids)
}

func TestLadder_UpdateBeyondPrefixIsCompacted(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideBid, 1, 1.4335, 1000)))
	require.NoError(t, l.Update(lvl(SideBid, 3, 1.4333, 300)))

	bids := l.DepthOf(SideBid)
	second, ok := bids[1].Level()
	require.True(t, ok)
	assert.Equal(t, 2, second.Rank)
	assert.Equal(t, 1.4333, second.Price)
	assert.Equal(t, int64(300), second.Size)
	assert.True(t, bids[2].Empty())
	assertInvariants(t, bids)
}

// 更新后再插入 rank 2, 旧的 rank 2 下移到 rank 3
func TestLadder_NewAfterUpdateShiftsTail(t *testing.T) {
	l := fullLadder(t)
	require.NoError(t, l.Update(lvl(SideBid, 1, 9.99, 100)))
	require.NoError(t, l.Insert(lvl(SideBid, 2, 8.88, 200)))

	bids := l.DepthOf(SideBid)
	second, _ := bids[1].Level()
	third, _ := bids[2].Level()
	assert.Equal(t, 8.88, second.Price)
	assert.Equal(t, int64(200), second.Size)
	assert.Equal(t, 2, second.Rank)
	assert.Equal(t, 1.4334, third.Price)
	assert.Equal(t, 3, third.Rank)
}

// =============================================================================
// Delete
// =============================================================================

func TestLadder_DeleteShiftsUp(t *testing.T) {
	l := fullLadder(t)
	offers := l.DepthOf(SideOffer)
	p2, _ := offers[1].Level()
	p3, _ := offers[2].Level()

	require.NoError(t, l.Delete(SideOffer, 1))

	offers = l.DepthOf(SideOffer)
	first, _ := offers[0].Level()
	second, _ := offers[1].Level()
	assert.Equal(t, p2.Price, first.Price)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, p3.Price, second.Price)
	assert.Equal(t, 2, second.Rank)
	assert.True(t, offers[2].Empty())
}

func TestLadder_DeleteEmptyIsNoop(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideBid, 1, 1, 1)))
	before := l.Book()

	require.NoError(t, l.Delete(SideBid, 3))
	require.NoError(t, l.Delete(SideBid, 2))

	assert.Equal(t, before, l.Book())
}

// =============================================================================
// 查询 / 渲染
// =============================================================================

func TestLadder_DepthOfIsCopy(t *testing.T) {
	l := fullLadder(t)
	bids := l.DepthOf(SideBid)
	bids[0] = EmptySlot()

	fresh := l.DepthOf(SideBid)
	assert.False(t, fresh[0].Empty())
}

func TestLadder_Render(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideBid, 1, 1.4335, 1000)))
	require.NoError(t, l.Insert(lvl(SideOffer, 1, 1.4326, 500)))
	require.NoError(t, l.Insert(lvl(SideOffer, 2, 1.4327, 700)))

	want := "EURUSD BID\n" +
		"Level 1 1000 at 1.4335\n" +
		"NULL\n" +
		"NULL\n" +
		"EURUSD OFFER\n" +
		"Level 1 500 at 1.4326\n" +
		"Level 2 700 at 1.4327\n" +
		"NULL\n"
	assert.Equal(t, want, l.Render())
}

func TestBook_JSONKeepsEmptySlots(t *testing.T) {
	l := NewLadder(testSymbol, 3)
	require.NoError(t, l.Insert(lvl(SideBid, 1, 1.25, 10)))

	data, err := l.Book().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"symbol":"EURUSD",
		"bids":[{"rank":1,"price":1.25,"size":10},{"rank":2,"empty":true},{"rank":3,"empty":true}],
		"offers":[{"rank":1,"empty":true},{"rank":2,"empty":true},{"rank":3,"empty":true}]
	}`, string(data))

	var back Book
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, l.Book(), back)
}

// =============================================================================
// 不变量: 随机操作序列
// =============================================================================

func TestLadder_InvariantsHoldForRandomSequences(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, levels := range []int{1, 3, 5, 10} {
		l := NewLadder(testSymbol, levels)
		for i := 0; i < 2000; i++ {
			side := SideBid
			if r.Intn(2) == 0 {
				side = SideOffer
			}
			rank := r.Intn(levels) + 1
			switch r.Intn(3) {
			case 0:
				require.NoError(t, l.Insert(lvl(side, rank, r.Float64(), r.Int63n(1000))))
			case 1:
				require.NoError(t, l.Update(lvl(side, rank, r.Float64(), r.Int63n(1000))))
			case 2:
				require.NoError(t, l.Delete(side, rank))
			}
			assertInvariants(t, l.DepthOf(SideBid))
			assertInvariants(t, l.DepthOf(SideOffer))
			require.Len(t, l.DepthOf(side), levels)
		}
	}
}

// =============================================================================
// Benchmark
// =============================================================================

func BenchmarkLadder_InsertDelete(b *testing.B) {
	l := NewLadder(testSymbol, 10)
	level := PriceLevel{Symbol: testSymbol, Side: SideBid, Rank: 1, Price: 1.1, Size: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Insert(level)
		_ = l.Delete(SideBid, 1)
	}
}
