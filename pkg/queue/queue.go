// Package queue feeds report job ids to the worker from kafka. Deployments
// that split generation out of the API process publish job ids on a topic;
// single-process deployments skip the queue and rely on in-process dispatch.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type jobReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// JobConsumer reads report job ids, one per message value.
type JobConsumer struct {
	reader jobReader
}

func NewJobConsumer(cfg Config) (*JobConsumer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        500 * time.Millisecond,
	})
	return &JobConsumer{reader: r}, nil
}

// Next blocks for the next job id. Blank messages are the producer's
// problem; they surface as empty strings and the caller skips them.
func (c *JobConsumer) Next(ctx context.Context) (string, error) {
	if c == nil || c.reader == nil {
		return "", fmt.Errorf("job consumer not initialized")
	}
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(msg.Value)), nil
}

func (c *JobConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run pumps job ids into handle until the context ends.
func (c *JobConsumer) Run(ctx context.Context, handle func(ctx context.Context, jobID string) error) {
	for {
		jobID, err := c.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("queue: read: %v", err)
			continue
		}
		if jobID == "" {
			continue
		}
		if err := handle(ctx, jobID); err != nil {
			log.Printf("queue: handle %s: %v", jobID, err)
		}
	}
}
