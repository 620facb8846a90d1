package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/metrics"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrDispatcherStopped 分发器已停止
var ErrDispatcherStopped = errors.New("event dispatcher stopped")

// 默认参数
const (
	DefaultQueueSize  = 1000
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second
	sendTimeout       = 10 * time.Second
)

// Options 分发器参数
type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	Backoff    time.Duration // 首次重试间隔,之后指数退避
}

// job 队列中的投递任务
type job struct {
	record *model.EventModel
	event  *Event
}

// Dispatcher 基于数据库的事件分发器
// 事件先持久化到 events 表,再由 worker 异步投递到 Sink
type Dispatcher struct {
	eventRepo repository.EventRepository
	sink      Sink
	logger    logrus.FieldLogger
	opts      Options

	queue   chan job
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher 创建事件分发器并启动 worker
func NewDispatcher(eventRepo repository.EventRepository, sink Sink, logger logrus.FieldLogger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	d := &Dispatcher{
		eventRepo: eventRepo,
		sink:      sink,
		logger:    logger,
		opts:      opts,
		queue:     make(chan job, opts.QueueSize),
		done:      make(chan struct{}),
	}

	// 启动 worker goroutines
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Publish 发布事件
func (d *Dispatcher) Publish(ctx context.Context, evt *Event) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	// 1. 持久化事件
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	now := time.Now()
	record := &model.EventModel{
		ID:        evt.ID,
		CardID:    evt.CardID,
		Type:      evt.Type,
		Data:      data,
		Status:    model.EventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if err := d.eventRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	// 2. 异步投递
	return d.enqueue(job{record: record, event: evt})
}

// Redeliver 重新投递数据库中仍处于 pending 状态的事件
func (d *Dispatcher) Redeliver(ctx context.Context, limit int) (int, error) {
	records, err := d.eventRepo.FindPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending events: %w", err)
	}

	queued := 0
	for _, record := range records {
		var evt Event
		if err := json.Unmarshal(record.Data, &evt); err != nil {
			d.logger.WithError(err).WithField("event_id", record.ID).Warn("Discarding undecodable event")
			d.finish(record, model.EventStatusFailed)
			continue
		}
		if err := d.enqueue(job{record: record, event: &evt}); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- j:
	default:
		// 队列满时不阻塞调用方,事件保持 pending 等待 Redeliver
		metrics.RecordEventDelivery("dropped")
		d.logger.WithFields(logrus.Fields{
			"event_id": j.record.ID,
			"type":     j.record.Type,
			"card_id":  j.record.CardID,
		}).Warn("Event queue full, delivery deferred")
	}
	return nil
}

// worker 事件投递 worker
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver 投递事件,失败时指数退避重试
func (d *Dispatcher) deliver(j job) {
	backoff := d.opts.Backoff
	log := d.logger.WithFields(logrus.Fields{
		"event_id": j.record.ID,
		"type":     j.record.Type,
		"card_id":  j.record.CardID,
	})

	for i := 0; i < d.opts.MaxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sink.Send(ctx, j.event)
		cancel()
		if err == nil {
			d.finish(j.record, model.EventStatusSuccess)
			metrics.RecordEventDelivery(model.EventStatusSuccess)
			return
		}

		log.WithError(err).WithField("attempt", i+1).Warn("Event delivery failed")
		j.record.RetryCount++
		j.record.UpdatedAt = time.Now()
		if err := d.eventRepo.Save(context.Background(), j.record); err != nil {
			log.WithError(err).Warn("Failed to persist event retry count")
		}

		if i < d.opts.MaxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2 // 指数退避
			case <-d.done:
				// 停止时放弃重试,事件保持 pending
				return
			}
		}
	}

	d.finish(j.record, model.EventStatusFailed)
	metrics.RecordEventDelivery(model.EventStatusFailed)
	log.Error("Event delivery failed after retries")
}

// finish 更新事件最终状态
func (d *Dispatcher) finish(record *model.EventModel, status string) {
	record.Status = status
	record.UpdatedAt = time.Now()
	if err := d.eventRepo.Save(context.Background(), record); err != nil {
		d.logger.WithError(err).WithField("event_id", record.ID).Warn("Failed to update event status")
	}
}

// Stop 停止分发器,等待队列中的事件投递完成
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()

	if err := d.sink.Close(); err != nil {
		d.logger.WithError(err).Warn("Failed to close event sink")
	}
}
