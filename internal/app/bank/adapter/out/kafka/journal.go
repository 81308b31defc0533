package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// Config Kafka 發佈設定
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	// BatchTimeout 送出未滿批次前最多等待的時間；Record 在交易流程內同步呼叫，預設 10ms
	BatchTimeout time.Duration `yaml:"batchTimeout"`
}

// messageWriter kafka.Writer 的子集，測試時替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Journal 將已提交的帳務異動發佈到 Kafka，以帳戶 ID 為 key，同一帳戶的異動落在同一個 partition
type Journal struct {
	writer messageWriter
}

// NewJournal 建立 Kafka 發佈者
func NewJournal(cfg Config) (*Journal, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka journal requires brokers and topic")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &Journal{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
			BatchTimeout: cfg.BatchTimeout,
		},
	}, nil
}

func (j *Journal) Record(ctx context.Context, entries ...domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, entry := range entries {
		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode journal entry: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(entry.AccountID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(entry.Type)},
			},
		})
	}
	if err := j.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish journal entries: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.writer.Close()
}

var _ usecase.Journal = (*Journal)(nil)
