//go:build integration

package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/engage/internal/domain"
	"example.com/engage/internal/persistence/postgres"
)

type capturingProducer struct {
	mu       sync.Mutex
	messages map[string][]kafka.Message
}

func (p *capturingProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][]kafka.Message)
	}
	p.messages[topic] = append(p.messages[topic], msgs...)
	return nil
}

func (p *capturingProducer) byTopic(topic string) []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.messages[topic]...)
}

func startPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("engage"),
		postgrescontainer.WithUsername("engage"),
		postgrescontainer.WithPassword("engage"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, poolErr := pgxpool.New(ctx, connStr)
		if poolErr == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				t.Cleanup(func() { pool.Close() })
				require.NoError(t, postgres.Migrate(ctx, pool))
				return pool
			}
			pool.Close()
		}
		require.False(t, time.Now().After(deadline), "database never became ready")
		time.Sleep(time.Second)
	}
}

func TestDispatcherDrainsOutbox(t *testing.T) {
	ctx := context.Background()
	pool := startPool(t, ctx)
	repo := postgres.NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	activity := domain.Activity{
		ID:        uuid.NewString(),
		SessionID: uuid.NewString(),
		Type:      "poll",
		Title:     "Outbox poll",
		State:     domain.StateDraft,
		Config:    map[string]any{"question": "?"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateActivity(ctx, activity))
	require.NoError(t, repo.InsertResponse(ctx, domain.Response{
		ID:            uuid.NewString(),
		SessionID:     activity.SessionID,
		ActivityID:    activity.ID,
		ParticipantID: "p1",
		Payload:       map[string]any{"selected_options": []any{"A"}},
		SubmittedAt:   now,
	}))

	producer := &capturingProducer{}
	dispatcher := NewDispatcher(pool, producer, 50*time.Millisecond, 10)

	dispatchCtx, cancel := context.WithCancel(ctx)
	go dispatcher.Start(dispatchCtx)

	require.Eventually(t, func() bool {
		return len(producer.byTopic("activity_events")) == 1 && len(producer.byTopic("response_events")) == 1
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	dispatcher.Wait()

	msg := producer.byTopic("activity_events")[0]
	assert.Equal(t, activity.ID, string(msg.Key), "partition key is the aggregate id")
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "activity.created", string(msg.Headers[0].Value))

	// Dispatched rows never redeliver.
	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE dispatched_at IS NULL`).Scan(&pending))
	assert.Zero(t, pending)
}
