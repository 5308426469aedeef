// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ============================================================================
// MemEventBus - 内存版 EventBus 实现（用于测试和无 Redis 的降级运行）
// ============================================================================

// MemEventBus 内存事件总线，保留最近 MaxStreamLength 条事件
type MemEventBus struct {
	mu     sync.RWMutex
	events []*ActivityEvent
	nextID int
	subs   map[int]chan *ActivityEvent
	nextCh int
}

// NewMemEventBus 创建 MemEventBus 实例
func NewMemEventBus() *MemEventBus {
	return &MemEventBus{
		subs: make(map[int]chan *ActivityEvent),
	}
}

// Close 关闭事件总线
func (b *MemEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}

func (b *MemEventBus) PublishActivity(ctx context.Context, event *ActivityEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	cp := *event
	cp.ID = fmt.Sprintf("%d-0", b.nextID)
	b.events = append(b.events, &cp)
	if len(b.events) > MaxStreamLength {
		b.events = b.events[len(b.events)-MaxStreamLength:]
	}

	for _, ch := range b.subs {
		select {
		case ch <- &cp:
		default:
		}
	}
	return nil
}

// streamSeq 提取流 ID 的数值前缀（"12-0" → 12）
//
// 游标比较必须按数值：按字符串比较时 "10-0" 排在 "9-0" 之前。
func streamSeq(id string) int64 {
	prefix, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func (b *MemEventBus) GetActivities(ctx context.Context, fromID string, count int64) ([]*ActivityEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	from := int64(-1)
	if fromID != "" {
		from = streamSeq(fromID)
	}

	var events []*ActivityEvent
	for _, e := range b.events {
		if streamSeq(e.ID) <= from {
			continue
		}
		cp := *e
		events = append(events, &cp)
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

func (b *MemEventBus) GetRecentActivities(ctx context.Context, count int64) ([]*ActivityEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if count > 0 && int64(len(b.events)) > count {
		start = len(b.events) - int(count)
	}

	events := make([]*ActivityEvent, 0, len(b.events)-start)
	for _, e := range b.events[start:] {
		cp := *e
		events = append(events, &cp)
	}
	return events, nil
}

func (b *MemEventBus) GetActivityCount(ctx context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.events)), nil
}

func (b *MemEventBus) SubscribeActivities(ctx context.Context) (<-chan *ActivityEvent, error) {
	b.mu.Lock()
	ch := make(chan *ActivityEvent, 100)
	id := b.nextCh
	b.nextCh++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			close(c)
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}()

	return ch, nil
}

// 确保 MemEventBus 实现了 EventBus 接口
var _ EventBus = (*MemEventBus)(nil)
