package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/taskhub/internal/logger"
	"go.uber.org/zap"
)

// EventBus 事件总线
//
// Publish 只负责入队，真正的分发由 fanout goroutine 完成，
// 慢订阅者不会阻塞发布方。
type EventBus struct {
	queue     chan *Event
	subs      map[string]chan *Event
	subsMu    sync.RWMutex
	subBuffer int
	mu        sync.RWMutex
	closed    bool
	closeCh   chan struct{}
	done      chan struct{}
}

// NewEventBus 创建事件总线
func NewEventBus(bufferSize, subscriberBuffer int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = 100
	}
	b := &EventBus{
		queue:     make(chan *Event, bufferSize),
		subs:      make(map[string]chan *Event),
		subBuffer: subscriberBuffer,
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.fanout()
	return b
}

// Publish 发布事件
// 队列已满时丢弃事件并记录告警，不向调用方返回错误
func (b *EventBus) Publish(ctx context.Context, evt *Event) error {
	if evt == nil {
		return fmt.Errorf("event is nil")
	}
	if evt.Name == "" {
		return fmt.Errorf("event name is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	select {
	case b.queue <- evt:
		logger.Debug("Event published",
			zap.String("id", evt.ID),
			zap.String("name", evt.Name),
			zap.Int("queue_size", len(b.queue)))
	default:
		logger.Warn("Event queue full, event dropped",
			zap.String("id", evt.ID),
			zap.String("name", evt.Name))
	}
	return nil
}

// Subscription 事件订阅
type Subscription struct {
	ID     string
	Events <-chan *Event
	bus    *EventBus
}

// Unsubscribe 取消订阅
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s.ID)
}

// Subscribe 订阅全部事件，每个订阅者有独立的缓冲 channel
func (b *EventBus) Subscribe() *Subscription {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		ch := make(chan *Event)
		close(ch)
		return &Subscription{Events: ch}
	}

	b.subsMu.Lock()
	id := uuid.NewString()
	ch := make(chan *Event, b.subBuffer)
	b.subs[id] = ch
	total := len(b.subs)
	b.subsMu.Unlock()

	logger.Debug("New event subscriber",
		zap.String("subscription_id", id),
		zap.Int("total_subscribers", total))

	return &Subscription{ID: id, Events: ch, bus: b}
}

func (b *EventBus) unsubscribe(id string) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount 当前订阅者数量
func (b *EventBus) SubscriberCount() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs)
}

// fanout 是唯一读取 queue 的地方
func (b *EventBus) fanout() {
	defer close(b.done)
	for {
		select {
		case evt := <-b.queue:
			b.deliver(evt)
		case <-b.closeCh:
			// drain what was accepted before Close
			for {
				select {
				case evt := <-b.queue:
					b.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) deliver(evt *Event) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			logger.Warn("Subscriber channel full, event dropped",
				zap.String("subscription_id", id),
				zap.String("event", evt.Name),
				zap.Int("queue_len", len(ch)))
		}
	}
}

// Close 关闭事件总线，已入队的事件会先分发完
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	<-b.done

	b.subsMu.Lock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.subsMu.Unlock()
	return nil
}

// IsClosed 检查是否已关闭
func (b *EventBus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Errors
var (
	ErrBusClosed = &BusError{Message: "event bus is closed"}
)

// BusError 总线错误
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}
