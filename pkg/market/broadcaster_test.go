package market

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdepth.com/pkg/depth"
)

func testUpdate(symbol string, price float64) depth.Update {
	ev := depth.Event{Kind: depth.KindNew, Symbol: symbol, Side: depth.SideBid, Rank: 1, Price: price, Size: 100}
	l := depth.NewLadder(symbol, depth.DefaultLevels)
	_ = l.Insert(ev.Level())
	return depth.Update{Event: ev, Book: l.Book(), At: time.Now()}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe(4)
	c := b.Subscribe(4)
	assert.Equal(t, 2, b.Subscribers())

	b.Broadcast(testUpdate("EURUSD", 1.1))

	for _, ch := range []<-chan depth.Update{a, c} {
		u := <-ch
		assert.Equal(t, "EURUSD", u.Event.Symbol)
	}
	assert.Zero(t, b.Dropped())
}

// 慢订阅者只丢自己的数据
func TestBroadcaster_SlowSubscriberIsolated(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe(1)
	fast := b.Subscribe(16)

	for i := 0; i < 10; i++ {
		b.Broadcast(testUpdate("EURUSD", float64(i)))
	}

	assert.Len(t, fast, 10)
	assert.Len(t, slow, 1)
	assert.Equal(t, int64(9), b.Dropped())
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(0)
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// 关闭后订阅拿到的是已关闭的 Channel, 广播是空操作
	late := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	b.Broadcast(testUpdate("EURUSD", 1))
	assert.Zero(t, b.Subscribers())
}

func TestBroadcaster_RegistryHook(t *testing.T) {
	reg := depth.NewRegistry()
	b := NewBroadcaster()
	reg.OnUpdate(b.Broadcast)
	ch := b.Subscribe(8)

	require.NoError(t, reg.Apply(depth.Event{Kind: depth.KindNew, Symbol: "EURUSD", Side: depth.SideBid, Rank: 1, Price: 1.4335, Size: 1000}))
	require.NoError(t, reg.Apply(depth.Event{Kind: depth.KindChange, Symbol: "EURUSD", Side: depth.SideBid, Rank: 1, Price: 1.4336, Size: 500}))

	first := <-ch
	second := <-ch
	assert.Equal(t, depth.KindNew, first.Event.Kind)
	assert.Equal(t, depth.KindChange, second.Event.Kind)
	best, ok := second.Book.Best(depth.SideBid)
	require.True(t, ok)
	assert.Equal(t, 1.4336, best.Price)
}

// =============================================================================
// Benchmark
// =============================================================================

// 1 个生产者 -> 10 个消费者
func BenchmarkBroadcast(b *testing.B) {
	broadcaster := NewBroadcaster()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		ch := broadcaster.Subscribe(0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}

	u := testUpdate("EURUSD", 1.1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		broadcaster.Broadcast(u)
	}
	b.StopTimer()

	broadcaster.Close()
	wg.Wait()
}

// 模拟器 -> 注册表 -> 广播器 -> 10 个消费者
func BenchmarkPipeline(b *testing.B) {
	reg := depth.NewRegistry()
	broadcaster := NewBroadcaster()
	reg.OnUpdate(broadcaster.Broadcast)
	for i := 0; i < 10; i++ {
		ch := broadcaster.Subscribe(0)
		go func() {
			for range ch {
			}
		}()
	}

	sim := NewSimulator(SimulatorConfig{Symbol: "EURUSD", Seed: 7})
	adapter := newBenchAdapter(reg)
	_ = adapter.OnSnapshot(sim.Snapshot())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = adapter.OnIncremental(sim.Next())
	}
	b.StopTimer()
	broadcaster.Close()
}
