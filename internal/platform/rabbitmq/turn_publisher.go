package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"increm-coach/internal/model"
)

// TurnPublisher hands finished exchanges to the persist worker. It satisfies
// the same Append contract as the direct repository writer.
type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *TurnPublisher) Append(ctx context.Context, userID, userText, assistantText string, sources *string) error {
	return p.Publish(ctx, model.TurnPair{
		UserID:        userID,
		UserText:      userText,
		AssistantText: assistantText,
		Sources:       sources,
		CreatedAt:     time.Now().UTC(),
	})
}

func (p *TurnPublisher) Publish(ctx context.Context, pair model.TurnPair) error {
	payload, err := EncodeTurnPair(pair)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		Timestamp:    pair.CreatedAt,
	})
	if err != nil {
		// drop the channel so the next publish reopens it
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish turn pair failed: %w", err)
	}
	return nil
}

func (p *TurnPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func (p *TurnPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func EncodeTurnPair(pair model.TurnPair) ([]byte, error) {
	if pair.UserID == "" {
		return nil, fmt.Errorf("encode turn pair failed: empty user id")
	}
	payload, err := json.Marshal(pair)
	if err != nil {
		return nil, fmt.Errorf("marshal turn pair failed: %w", err)
	}
	return payload, nil
}

func DecodeTurnPair(body []byte) (model.TurnPair, error) {
	var pair model.TurnPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return model.TurnPair{}, fmt.Errorf("unmarshal turn pair failed: %w", err)
	}
	if pair.UserID == "" {
		return model.TurnPair{}, fmt.Errorf("decode turn pair failed: empty user id")
	}
	return pair, nil
}
