package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/config"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// IntegrityWorker drains the integrity event queue into PostgreSQL in
// batches. The events are an audit trail only; session termination already
// happened by the time an event reaches this queue.
type IntegrityWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewIntegrityWorker creates a new IntegrityWorker.
func NewIntegrityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "integrity_worker").Logger(),
	}
}

type integrityPayload struct {
	StudentID  int    `json:"student_id"`
	TestID     string `json:"test_id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	OccurredAt string `json:"occurred_at"`
}

// Start runs the drain loop until ctx is cancelled.
func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	buffer := make([]*integrityPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		// BLPop blocks for 1 second. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.IntegrityEventsQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			// Real Redis error (e.g., connection lost)
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var payload integrityPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// If JSON is malformed, we CANNOT retry it. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*integrityPayload) {
	// Try Fast Path: Bulk Insert
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

		// Fallback Path: Insert one by one
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []*integrityPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		testID, err := uuid.Parse(p.TestID)
		if err != nil {
			// Return error to trigger fallback, which will handle the bad UUID individually
			return err
		}
		rows = append(rows, []interface{}{
			testID, p.StudentID, p.Kind, p.Detail, parseOccurredAt(p.OccurredAt),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"integrity_events"},
		[]string{"test_id", "student_id", "kind", "detail", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []*integrityPayload) {
	requeueList := make([]*integrityPayload, 0)

	for _, p := range batch {
		testID, err := uuid.Parse(p.TestID)
		if err != nil {
			w.log.Error().Str("test_id", p.TestID).Msg("Dropping integrity event with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO integrity_events (test_id, student_id, kind, detail, occurred_at)
             VALUES ($1, $2, $3, $4, $5)`,
			testID, p.StudentID, p.Kind, p.Detail, parseOccurredAt(p.OccurredAt),
		)

		if err != nil {
			w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	// If we have items to requeue (DB was down), push them back to Redis
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IntegrityWorker) requeue(ctx context.Context, items []*integrityPayload) {
	// Use a pipeline to push everything back quickly
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.IntegrityEventsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *IntegrityWorker) shutdown(buffer []*integrityPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	// Give it 5 seconds to flush to DB
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func parseOccurredAt(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
