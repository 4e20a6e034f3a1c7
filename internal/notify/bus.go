// Package notify fans user-visible notifications out to dashboard subscribers.
package notify

import (
	"sync"
	"time"
)

// Level is the severity shown to the user
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one message for the dashboard
type Notification struct {
	Level    Level     `json:"level"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	WalletID string    `json:"walletId,omitempty"`
	TxHash   string    `json:"txHash,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher is what producers depend on
type Publisher interface {
	Publish(n Notification)
}

// SubscriberBuffer is the per-subscriber queue length
const SubscriberBuffer = 32

// Bus is an in-memory publish/subscribe hub. Publish never blocks: a
// subscriber whose buffer is full misses the notification.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Notification]struct{}
	now         func() time.Time
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Notification]struct{}),
		now:         time.Now,
	}
}

// Publish delivers n to every subscriber that has room
func (b *Bus) Publish(n Notification) {
	if n.Time.IsZero() {
		n.Time = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, SubscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Subscribers returns the number of active subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Nop discards every notification
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(Notification) {}
