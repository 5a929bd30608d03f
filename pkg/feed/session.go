// 文件: pkg/feed/session.go
// 会话登录 / 登出通知
//
// 会话层 (FIX 引擎) 在 onLogon / onLogout 时调用 Logon / Logout,
// 关心连接状态的组件可以注册回调, 也可以订阅 Channel

package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionID FIX 会话标识
type SessionID struct {
	BeginString  string `json:"begin_string"` // 如 "FIX.4.4"
	SenderCompID string `json:"sender_comp_id"`
	TargetCompID string `json:"target_comp_id"`
}

func (s SessionID) String() string {
	return s.BeginString + ":" + s.SenderCompID + "->" + s.TargetCompID
}

// SessionEvent 连接状态变化
type SessionEvent struct {
	Session   SessionID
	Connected bool
	At        time.Time
}

// SessionHandler 状态变化回调
type SessionHandler func(SessionEvent)

// SessionMonitor 记录当前在线会话并通知订阅者
type SessionMonitor struct {
	mu          sync.RWMutex
	active      map[SessionID]time.Time // 会话 → 登录时间
	handlers    []SessionHandler
	subscribers []chan SessionEvent

	logger *logrus.Entry
}

// NewSessionMonitor 创建监视器
func NewSessionMonitor(logger *logrus.Entry) *SessionMonitor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SessionMonitor{
		active: make(map[SessionID]time.Time),
		logger: logger.WithField("component", "session"),
	}
}

// OnChange 注册回调
func (m *SessionMonitor) OnChange(h SessionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Subscribe 订阅状态变化, 缓冲满时丢弃 (不阻塞会话线程)
func (m *SessionMonitor) Subscribe() <-chan SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan SessionEvent, 16)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Logon 会话登录; 重复登录不改变在线集合, 但仍会通知
func (m *SessionMonitor) Logon(id SessionID) {
	now := time.Now()
	m.mu.Lock()
	if _, ok := m.active[id]; !ok {
		m.active[id] = now
	}
	m.mu.Unlock()

	m.logger.WithField("session", id.String()).Info("session logged on")
	m.notify(SessionEvent{Session: id, Connected: true, At: now})
}

// Logout 会话登出
func (m *SessionMonitor) Logout(id SessionID) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	m.logger.WithField("session", id.String()).Info("session logged out")
	m.notify(SessionEvent{Session: id, Connected: false, At: time.Now()})
}

// IsLoggedOn 是否在线
func (m *SessionMonitor) IsLoggedOn(id SessionID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

// Active 当前在线会话 (按字符串排序)
func (m *SessionMonitor) Active() []SessionID {
	m.mu.RLock()
	out := make([]SessionID, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Close 关闭所有订阅 Channel
func (m *SessionMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

// notify 回调在锁外执行, 回调里可以再调用 OnChange / Subscribe
// 向 Channel 发送仍持读锁, 避免与 Close 交错写已关闭的 Channel
func (m *SessionMonitor) notify(ev SessionEvent) {
	m.mu.RLock()
	handlers := make([]SessionHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			m.logger.WithField("session", ev.Session.String()).Warn("session subscriber slow, event dropped")
		}
	}
}
