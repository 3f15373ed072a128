package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

const DefaultMailQueue = "email_queue"

// Wakeup is one "an email is waiting" signal for the mail worker.
type Wakeup struct {
	EmailID  string
	Priority string
}

// WakeupPublisher carries wakeups to the mail worker.
type WakeupPublisher interface {
	PublishWakeup(ctx context.Context, w Wakeup) error
}

type MailQ struct {
	pub WakeupPublisher
	log logx.Logger
}

func NewMailQ(pub WakeupPublisher, log logx.Logger) *MailQ {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MailQ{pub: pub, log: log}
}

// Run forwards email.queued events until ctx ends.
func (m *MailQ) Run(ctx context.Context, bus eventbus.Bus) error {
	return pump(ctx, bus, m.log, m.forward, notify.EventEmailQueued)
}

func (m *MailQ) forward(ctx context.Context, e eventbus.Event) error {
	q, ok := e.Data.(notify.EmailQueued)
	if !ok || q.EmailID == "" {
		return nil
	}
	return m.pub.PublishWakeup(ctx, Wakeup{EmailID: q.EmailID, Priority: string(q.Priority)})
}

type AMQPConfig struct {
	URL      string
	Exchange string // empty publishes through the default exchange
	Queue    string
}

// AMQPPublisher publishes wakeups as persistent messages whose body is the
// email id. The connection is dialled lazily and redialled after a failure.
type AMQPPublisher struct {
	cfg AMQPConfig
	log logx.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(cfg AMQPConfig, log logx.Logger) *AMQPPublisher {
	if strings.TrimSpace(cfg.Queue) == "" {
		cfg.Queue = DefaultMailQueue
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AMQPPublisher{cfg: cfg, log: log}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", p.cfg.Queue, err)
	}
	if p.cfg.Exchange != "" {
		if err := ch.QueueBind(p.cfg.Queue, p.cfg.Queue, p.cfg.Exchange, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("amqp bind %s: %w", p.cfg.Queue, err)
		}
	}
	p.conn, p.ch = conn, ch
	p.log.Info("amqp connected", logx.String("queue", p.cfg.Queue))
	return ch, nil
}

func (p *AMQPPublisher) PublishWakeup(ctx context.Context, w Wakeup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(pctx, p.cfg.Exchange, p.cfg.Queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "text/plain",
		Timestamp:    time.Now(),
		Body:         []byte(w.EmailID),
		Headers:      amqp.Table{"priority": w.Priority},
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.conn, p.ch = nil, nil
	return errors.Join(errs...)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}
