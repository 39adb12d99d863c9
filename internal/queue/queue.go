package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TopicWaves carries dispatch wave jobs from the scheduler to the worker.
const TopicWaves = "campaign_waves"

// WaveJob is one slice of a campaign's recipient set.
type WaveJob struct {
	CampaignID string   `json:"campaign_id"`
	UserIDs    []string `json:"user_ids"`
}

func (j WaveJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

func DecodeWaveJob(body []byte) (WaveJob, error) {
	var j WaveJob
	err := json.Unmarshal(body, &j)
	return j, err
}

// Queue interface
type Queue interface {
	Publish(topic string, body []byte) error
	Subscribe(topic string, handler func(body []byte) error) error
}

// InMemoryQueue backs tests and single-process dev runs. Handlers run on
// their own goroutine with bounded retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	log      *zap.SugaredLogger
}

func NewInMemoryQueue(log *zap.SugaredLogger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
		log:      log,
	}
}

const maxDeliveries = 3

// Publish sends a message to all subscribers.
func (q *InMemoryQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	for _, handler := range handlers {
		go q.processJob(topic, handler, body)
	}
	return nil
}

// processJob handles retries and errors.
func (q *InMemoryQueue) processJob(topic string, handler func(body []byte) error, body []byte) {
	for attempt := 1; attempt <= maxDeliveries; attempt++ {
		err := handler(body)
		if err == nil {
			return
		}
		if q.log != nil {
			q.log.Warnw("⚠️ job failed", "topic", topic, "attempt", attempt, "err", err)
		}
		if attempt == maxDeliveries {
			if q.log != nil {
				q.log.Errorw("job permanently failed", "topic", topic, "attempts", attempt)
			}
			return
		}
		time.Sleep(time.Duration(attempt*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
