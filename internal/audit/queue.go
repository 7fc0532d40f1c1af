// queue.go
//
// Redis-backed async audit queue. QueuedLog satisfies auth.AuditLog and enqueues
// entries instead of writing synchronously; StartWorker drains the queue in a
// background goroutine and hands each entry to the inner sink (Postgres).
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list used as the audit queue.
const QueueKey = "styx:audit:queue"

// DefaultMaxQueueSize caps the queue when Postgres is unreachable. 0 = unlimited.
const DefaultMaxQueueSize int64 = 10000

// insertTimeout bounds each drained write, including the last one during shutdown.
const insertTimeout = 5 * time.Second

// ErrQueueFull is returned by InsertAuditLog when the queue has reached its size cap.
var ErrQueueFull = errors.New("audit queue full")

// Sink is where drained entries end up. Satisfied by *store.PostgresStore.
type Sink interface {
	InsertAuditLog(ctx context.Context, entry store.AuditEntry) error
	CheckHealth(ctx context.Context) error
}

// job is the serialized queue payload.
type job struct {
	UserID     *string   `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	IPAddress  *string   `json:"ip_address,omitempty"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	Metadata   []byte    `json:"metadata,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueuedLog lets login and logout return without waiting on Postgres.
type QueuedLog struct {
	inner        Sink
	rdb          *redis.Client
	maxQueueSize int64
}

// NewQueuedLog wraps inner with a Redis-backed queue on rdb.
// maxSize caps the queue length (0 = unlimited); use DefaultMaxQueueSize for production.
func NewQueuedLog(inner Sink, rdb *redis.Client, maxSize int64) *QueuedLog {
	return &QueuedLog{inner: inner, rdb: rdb, maxQueueSize: maxSize}
}

// enqueueScript atomically checks the queue length and pushes only if under the cap.
// Returns 1 if enqueued, 0 if rejected.
// KEYS[1] = queue key, ARGV[1] = max size (0 = skip check), ARGV[2] = payload.
var enqueueScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// InsertAuditLog enqueues entry. Returns ErrQueueFull if the queue is at its cap.
func (q *QueuedLog) InsertAuditLog(ctx context.Context, entry store.AuditEntry) error {
	data, err := json.Marshal(job{
		UserID:     entry.UserID,
		Action:     entry.Action,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Metadata:   entry.Metadata,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	ok, err := enqueueScript.Run(ctx, q.rdb, []string{QueueKey}, q.maxQueueSize, data).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing audit entry: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// CheckHealth reports the sink's health; the queue shares Redis with sessions,
// which /health already checks.
func (q *QueuedLog) CheckHealth(ctx context.Context) error {
	return q.inner.CheckHealth(ctx)
}

// StartWorker drains the queue until ctx is cancelled. Call in a goroutine.
func (q *QueuedLog) StartWorker(ctx context.Context) {
	for {
		// BLPop blocks up to 2s then returns redis.Nil, so ctx is rechecked regularly.
		res, err := q.rdb.BLPop(ctx, 2*time.Second, QueueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			slog.Error("audit worker: queue pop failed", "error", err)
			// Back off so a Redis outage doesn't spin.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		// res[0] = key name, res[1] = payload
		var j job
		if err := json.Unmarshal([]byte(res[1]), &j); err != nil {
			slog.Error("audit worker: bad payload", "error", err)
			continue
		}
		q.dispatch(ctx, j)
	}
}

// dispatch writes one entry. Failures are logged and dropped.
func (q *QueuedLog) dispatch(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()

	err := q.inner.InsertAuditLog(ctx, store.AuditEntry{
		UserID:    j.UserID,
		Action:    j.Action,
		IPAddress: j.IPAddress,
		UserAgent: j.UserAgent,
		Metadata:  j.Metadata,
	})
	if err != nil {
		slog.Error("audit worker: insert failed", "action", j.Action, "queued_for", time.Since(j.EnqueuedAt), "error", err)
	}
}
