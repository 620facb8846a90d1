package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/sirupsen/logrus"
)

// KafkaSink 投递到 Kafka 主题,以 card_id 作为消息键保证同一收获卡事件有序
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink 创建 Kafka 投递目标
func NewKafkaSink(cfg config.EventsConfig) (*KafkaSink, error) {
	brokers := ParseBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Transport:              newTransport(cfg),
	}
	return &KafkaSink{writer: writer}, nil
}

// newTransport 创建带 SASL/PLAIN 认证的传输层
func newTransport(cfg config.EventsConfig) *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}
	if cfg.Username != "" && cfg.Password != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return transport
}

// Send 发送事件
func (s *KafkaSink) Send(ctx context.Context, evt *Event) error {
	msg, err := newMessage(evt)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Close 关闭 writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// newMessage 将事件转换为 Kafka 消息
func newMessage(evt *Event) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.CardID),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}, nil
}

// ParseBrokers 解析 broker 列表,支持逗号分隔的单个元素
func ParseBrokers(brokers []string) []string {
	var result []string
	for _, item := range brokers {
		for _, broker := range strings.Split(item, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				result = append(result, broker)
			}
		}
	}
	return result
}

// LogSink 将事件写入日志
type LogSink struct {
	logger logrus.FieldLogger
}

// NewLogSink 创建日志投递目标
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

// Send 记录事件
func (s *LogSink) Send(_ context.Context, evt *Event) error {
	s.logger.WithFields(logrus.Fields{
		"event_id": evt.ID,
		"type":     evt.Type,
		"card_id":  evt.CardID,
		"owner_id": evt.OwnerID,
	}).Info("Harvest card event")
	return nil
}

// Close 无需释放资源
func (s *LogSink) Close() error {
	return nil
}

// NewSink 根据配置选择投递目标
// 启用且配置了 broker 时使用 Kafka,否则写日志
func NewSink(cfg config.EventsConfig, logger logrus.FieldLogger) Sink {
	if !cfg.Enabled {
		return NewLogSink(logger)
	}
	sink, err := NewKafkaSink(cfg)
	if err != nil {
		logger.WithError(err).Warn("Kafka sink unavailable, events will be logged only")
		return NewLogSink(logger)
	}
	logger.WithFields(logrus.Fields{
		"brokers": ParseBrokers(cfg.Brokers),
		"topic":   cfg.Topic,
	}).Info("Kafka event sink configured")
	return sink
}
