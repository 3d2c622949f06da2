package event

import (
	"encoding/json"
	"log"
	"time"

	"github.com/streadway/amqp"
)

// Routing keys published by the flow engine.
const (
	SessionStarted   = "chat.session.started"
	SessionPaused    = "chat.session.paused"
	SessionResumed   = "chat.session.resumed"
	SessionCompleted = "chat.session.completed"
	SessionAbandoned = "chat.session.abandoned"
	ModuleBegun      = "chat.module.begun"
	SegmentServed    = "chat.segment.served"
	ExerciseServed   = "chat.exercise.served"
	AnswerSubmitted  = "chat.exercise.answered"
	ModuleCompleted  = "chat.module.completed"
	VocabularyAppend = "vocabulary.append"
)

type EventPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewEventPublisher(amqpURL, exchange string) (*EventPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return &EventPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends a JSON event using the routing key as the topic. Errors are
// returned but callers treat publishing as best-effort.
func (p *EventPublisher) Publish(routingKey string, payload interface{}) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"type":      routingKey,
		"payload":   payload,
		"timestamp": time.Now(),
	})
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Printf("[EVENT] publish %s failed: %v", routingKey, err)
	}
	return err
}

func (p *EventPublisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
