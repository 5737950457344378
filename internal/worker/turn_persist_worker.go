package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"increm-coach/internal/model"
	"increm-coach/internal/platform/rabbitmq"
)

type TurnAppender interface {
	AppendPair(ctx context.Context, pair model.TurnPair) error
}

type HistoryInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// TurnPersistWorker drains the turn queue into the conversation store.
type TurnPersistWorker struct {
	conn        *amqp.Connection
	repo        TurnAppender
	invalidator HistoryInvalidator
	queueName   string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, repo TurnAppender, invalidator HistoryInvalidator, queueName string) *TurnPersistWorker {
	return &TurnPersistWorker{
		conn:        conn,
		repo:        repo,
		invalidator: invalidator,
		queueName:   queueName,
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "turn-persist-worker", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Printf("turn persist worker: delivery channel closed")
					return
				}
				w.settle(d, w.Handle(workerCtx, d.Body))
			}
		}
	}()

	return nil
}

// Handle persists one queued exchange. A malformed payload is reported with
// errMalformed so it is dropped instead of requeued.
func (w *TurnPersistWorker) Handle(ctx context.Context, body []byte) error {
	pair, err := rabbitmq.DecodeTurnPair(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := w.repo.AppendPair(ctx, pair); err != nil {
		return err
	}
	if w.invalidator != nil {
		if err := w.invalidator.Invalidate(ctx, pair.UserID); err != nil {
			log.Printf("invalidate history cache failed: %v", err)
		}
	}
	return nil
}

func (w *TurnPersistWorker) settle(d amqp.Delivery, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}
	log.Printf("worker persist turn pair failed: %v", err)
	// storage errors get one redelivery
	requeue := !isMalformed(err) && !d.Redelivered
	_ = d.Nack(false, requeue)
}

func (w *TurnPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
