package queue

import (
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPQueue carries jobs across processes (API/scheduler -> worker) on
// durable queues with manual acks.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.SugaredLogger
}

func DialAMQP(url string, log *zap.SugaredLogger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, body []byte) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe consumes the topic on a background goroutine. A failed handler
// gets the delivery republished with a bumped x-retry-count header, up to
// maxDeliveries, then the message is dropped with an error log.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		queue.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			err := handler(d.Body)
			if err == nil {
				d.Ack(false)
				continue
			}

			retries := int32(0)
			if v, ok := d.Headers["x-retry-count"].(int32); ok {
				retries = v
			}
			if retries+1 >= maxDeliveries {
				if q.log != nil {
					q.log.Errorw("job permanently failed", "topic", topic, "attempts", retries+1, "err", err)
				}
				d.Ack(false)
				continue
			}

			pubErr := q.ch.Publish("", queue.Name, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         d.Body,
				Headers:      amqp.Table{"x-retry-count": retries + 1},
			})
			if pubErr != nil && q.log != nil {
				q.log.Errorw("failed to requeue job", "topic", topic, "err", pubErr)
			}
			d.Ack(false)
		}
	}()
	return nil
}
