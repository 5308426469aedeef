// Package redis 活动事件流操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"vyral-cms/internal/shared/eventbus"
)

// PublishActivity 发布活动事件到 Stream
func (s *Store) PublishActivity(ctx context.Context, event *eventbus.ActivityEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: eventbus.KeyActivityEvents,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":      event.Type,
			"actor_id":  event.ActorID,
			"entity":    event.Entity,
			"entity_id": event.EntityID,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"data":      string(dataJSON),
		},
	}

	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish activity: %w", err)
	}
	return nil
}

// GetActivities 读取活动事件，fromID 为空时从头读取
func (s *Store) GetActivities(ctx context.Context, fromID string, count int64) ([]*eventbus.ActivityEvent, error) {
	if fromID == "" {
		fromID = "0"
	}

	msgs, err := s.client.XRange(ctx, eventbus.KeyActivityEvents, fromID, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get activities: %w", err)
	}

	var events []*eventbus.ActivityEvent
	for _, msg := range msgs {
		events = append(events, decodeActivity(msg))
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

// GetRecentActivities 读取最新的 count 条活动事件
//
// XRevRange 从流尾部取，反转后按时间正序返回。
func (s *Store) GetRecentActivities(ctx context.Context, count int64) ([]*eventbus.ActivityEvent, error) {
	msgs, err := s.client.XRevRangeN(ctx, eventbus.KeyActivityEvents, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activities: %w", err)
	}

	events := make([]*eventbus.ActivityEvent, len(msgs))
	for i, msg := range msgs {
		events[len(msgs)-1-i] = decodeActivity(msg)
	}
	return events, nil
}

// GetActivityCount 获取活动事件数量
func (s *Store) GetActivityCount(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, eventbus.KeyActivityEvents).Result()
}

// SubscribeActivities 订阅新活动事件，从订阅时刻之后开始
func (s *Store) SubscribeActivities(ctx context.Context) (<-chan *eventbus.ActivityEvent, error) {
	ch := make(chan *eventbus.ActivityEvent, 100)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{eventbus.KeyActivityEvents, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Redis/EventBus] Activity subscription error: %v", err)
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					select {
					case ch <- decodeActivity(msg):
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func decodeActivity(msg redis.XMessage) *eventbus.ActivityEvent {
	event := &eventbus.ActivityEvent{ID: msg.ID}

	if v, ok := msg.Values["type"].(string); ok {
		event.Type = v
	}
	if v, ok := msg.Values["actor_id"].(string); ok {
		event.ActorID = v
	}
	if v, ok := msg.Values["entity"].(string); ok {
		event.Entity = v
	}
	if v, ok := msg.Values["entity_id"].(string); ok {
		event.EntityID = v
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}
	if dataStr, ok := msg.Values["data"].(string); ok && dataStr != "" && dataStr != "null" {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(dataStr), &data); err == nil {
			event.Data = data
		}
	}
	return event
}

// 确保 Store 实现了 EventBus 接口
var _ eventbus.EventBus = (*Store)(nil)
