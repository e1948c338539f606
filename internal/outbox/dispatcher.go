package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

type pendingEvent struct {
	id           int64
	topic        string
	eventType    string
	partitionKey string
	payload      []byte
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// SKIP LOCKED so multiple instances can drain concurrently without
	// double-delivering within one polling round.
	const query = `SELECT id, topic, event_type, partition_key, payload FROM outbox
        WHERE dispatched_at IS NULL
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return err
	}

	events := make([]pendingEvent, 0, d.batchSize)
	for rows.Next() {
		var event pendingEvent
		if err := rows.Scan(&event.id, &event.topic, &event.eventType, &event.partitionKey, &event.payload); err != nil {
			rows.Close()
			return err
		}
		events = append(events, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return tx.Commit(ctx)
	}

	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.partitionKey),
			Value: event.payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.eventType)},
			},
		}
		if err := d.producer.WriteMessages(ctx, event.topic, msg); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET dispatched_at = now() WHERE id = $1`, event.id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
