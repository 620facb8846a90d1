package events

import (
	"context"
	"time"
)

// 收获卡生命周期事件类型
const (
	TypeCardCreated       = "harvest_card.created"
	TypeCardDeactivated   = "harvest_card.deactivated"
	TypeCardStatusChanged = "harvest_card.status_changed"
	TypeCardVerified      = "harvest_card.verified"
)

// Event 收获卡生命周期事件
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	CardID    string                 `json:"card_id"`
	OwnerID   string                 `json:"owner_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// Sink 事件投递目标
type Sink interface {
	Send(ctx context.Context, evt *Event) error
	Close() error
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

// Publish 忽略
func (NopPublisher) Publish(context.Context, *Event) error { return nil }
