package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

const DefaultChannelPrefix = "notifications:"

// Publisher is the pub/sub surface the realtime forwarder needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// UnreadCounter reports a user's unread in-app notifications.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// UnreadMessage is published on <prefix><user_id>.
type UnreadMessage struct {
	UserID         string    `json:"user_id"`
	NotificationID string    `json:"notification_id"`
	Type           string    `json:"type"`
	Unread         int       `json:"unread"`
	SentAt         time.Time `json:"sent_at"`
}

type Realtime struct {
	pub     Publisher
	counter UnreadCounter
	prefix  string
	log     logx.Logger
}

func NewRealtime(pub Publisher, counter UnreadCounter, prefix string, log logx.Logger) *Realtime {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Realtime{pub: pub, counter: counter, prefix: prefix, log: log}
}

// Run forwards notification.created events until ctx ends.
func (r *Realtime) Run(ctx context.Context, bus eventbus.Bus) error {
	return pump(ctx, bus, r.log, r.forward, notify.EventNotificationCreated)
}

func (r *Realtime) forward(ctx context.Context, e eventbus.Event) error {
	created, ok := e.Data.(notify.NotificationCreated)
	if !ok || created.UserID == "" {
		return nil
	}
	unread, err := r.counter.UnreadCount(ctx, created.UserID)
	if err != nil {
		return fmt.Errorf("unread count: %w", err)
	}
	b, err := json.Marshal(UnreadMessage{
		UserID:         created.UserID,
		NotificationID: created.NotificationID,
		Type:           created.Type,
		Unread:         unread,
		SentAt:         e.Time,
	})
	if err != nil {
		return err
	}
	return r.pub.Publish(ctx, r.prefix+created.UserID, b)
}

// RedisPublisher adapts a go-redis client to Publisher.
type RedisPublisher struct {
	c *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisPublisher(cfg RedisConfig) *RedisPublisher {
	return &RedisPublisher{c: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func (p *RedisPublisher) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.c.Publish(ctx, channel, payload).Err()
}

func (p *RedisPublisher) Close() error { return p.c.Close() }
