package feed

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMonitor_LogonLogout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewSessionMonitor(logrus.NewEntry(logger))

	id := SessionID{BeginString: "FIX.4.4", SenderCompID: "CLIENT", TargetCompID: "VENUE"}
	other := SessionID{BeginString: "FIX.4.4", SenderCompID: "CLIENT", TargetCompID: "BACKUP"}

	var events []SessionEvent
	m.OnChange(func(ev SessionEvent) { events = append(events, ev) })
	ch := m.Subscribe()

	m.Logon(id)
	m.Logon(other)
	assert.True(t, m.IsLoggedOn(id))
	assert.Equal(t, []SessionID{other, id}, m.Active())

	m.Logout(id)
	assert.False(t, m.IsLoggedOn(id))
	assert.Equal(t, []SessionID{other}, m.Active())

	require.Len(t, events, 3)
	assert.True(t, events[0].Connected)
	assert.False(t, events[2].Connected)
	assert.Equal(t, id, events[2].Session)

	first := <-ch
	assert.Equal(t, id, first.Session)
	assert.True(t, first.Connected)
	assert.Equal(t, "FIX.4.4:CLIENT->VENUE", id.String())

	m.Close()
	<-ch
	<-ch
	_, open := <-ch
	assert.False(t, open)
}

func TestSessionMonitor_SlowSubscriberDoesNotBlock(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewSessionMonitor(logrus.NewEntry(logger))
	_ = m.Subscribe()

	id := SessionID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"}
	for i := 0; i < 40; i++ {
		m.Logon(id)
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
	assert.Len(t, m.Active(), 1)
}

// 回调里再注册回调 / 订阅不能死锁, 新注册的从下一次事件开始生效
func TestSessionMonitor_HandlerCanRegister(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewSessionMonitor(logrus.NewEntry(logger))
	id := SessionID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"}

	var late []SessionEvent
	var sub <-chan SessionEvent
	registered := false
	m.OnChange(func(SessionEvent) {
		if registered {
			return
		}
		registered = true
		m.OnChange(func(ev SessionEvent) { late = append(late, ev) })
		sub = m.Subscribe()
	})

	done := make(chan struct{})
	go func() {
		m.Logon(id)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Logon blocked on a handler that registers")
	}
	assert.Empty(t, late)

	m.Logout(id)
	require.Len(t, late, 1)
	assert.False(t, late[0].Connected)
	require.NotNil(t, sub)
	ev := <-sub
	assert.Equal(t, id, ev.Session)
	assert.False(t, ev.Connected)
}
