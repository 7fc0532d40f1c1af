// queue_test.go
//
// QueuedLog enqueue and worker tests against miniredis.
package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
	"github.com/MGallo-Code/styx/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, maxSize int64) (*QueuedLog, *testutil.MockAuditLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	inner := &testutil.MockAuditLog{}
	return NewQueuedLog(inner, rdb, maxSize), inner, mr
}

func strPtr(s string) *string { return &s }

// waitForEntries polls until inner has n entries or the deadline passes.
func waitForEntries(t *testing.T, inner *testutil.MockAuditLog, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(inner.Actions()) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit entries, got %d", n, len(inner.Actions()))
}

func TestInsertAuditLog_Enqueues(t *testing.T) {
	q, inner, mr := newTestQueue(t, 0)

	err := q.InsertAuditLog(context.Background(), store.AuditEntry{Action: "user.login", UserID: strPtr("u1")})
	if err != nil {
		t.Fatalf("InsertAuditLog: %v", err)
	}
	items, err := mr.List(QueueKey)
	if err != nil {
		t.Fatalf("reading queue: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("queue length: expected 1, got %d", len(items))
	}
	if len(inner.Entries) != 0 {
		t.Error("entry should not reach the sink before the worker runs")
	}
}

func TestInsertAuditLog_QueueFull(t *testing.T) {
	q, _, _ := newTestQueue(t, 2)
	ctx := context.Background()

	for i := range 2 {
		if err := q.InsertAuditLog(ctx, store.AuditEntry{Action: "user.login"}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := q.InsertAuditLog(ctx, store.AuditEntry{Action: "user.login"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestStartWorker_DrainsInOrder(t *testing.T) {
	q, inner, _ := newTestQueue(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.StartWorker(ctx)
		close(done)
	}()

	meta := []byte(`{"record_id":"r1"}`)
	for _, action := range []string{"user.login", "login.failed", "user.logout"} {
		if err := q.InsertAuditLog(context.Background(), store.AuditEntry{
			Action:    action,
			UserID:    strPtr("u1"),
			IPAddress: strPtr("192.0.2.1"),
			Metadata:  meta,
		}); err != nil {
			t.Fatalf("InsertAuditLog: %v", err)
		}
	}
	waitForEntries(t, inner, 3)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	got := inner.Actions()
	want := []string{"user.login", "login.failed", "user.logout"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	e := inner.Entries[0]
	if e.UserID == nil || *e.UserID != "u1" || e.IPAddress == nil || *e.IPAddress != "192.0.2.1" {
		t.Errorf("entry fields lost in transit: %+v", e)
	}
	if string(e.Metadata) != string(meta) {
		t.Errorf("metadata: expected %s, got %s", meta, e.Metadata)
	}
}

func TestStartWorker_SkipsBadPayload(t *testing.T) {
	q, inner, mr := newTestQueue(t, 0)
	mr.RPush(QueueKey, "not json")
	q.InsertAuditLog(context.Background(), store.AuditEntry{Action: "user.logout"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.StartWorker(ctx)

	waitForEntries(t, inner, 1)
	if got := inner.Actions(); got[0] != "user.logout" {
		t.Errorf("expected user.logout, got %v", got)
	}
}

func TestDispatch_InsertErrorLogged(t *testing.T) {
	q, inner, _ := newTestQueue(t, 0)
	inner.InsertErr = errors.New("postgres down")

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	q.dispatch(context.Background(), job{Action: "user.login", EnqueuedAt: time.Now()})

	if out := buf.String(); !strings.Contains(out, `error="postgres down"`) {
		t.Errorf("expected cause under the error key, got %q", out)
	}
}

func TestCheckHealth_Delegates(t *testing.T) {
	q, inner, _ := newTestQueue(t, 0)
	inner.HealthErr = store.ErrAuditDisabled

	if err := q.CheckHealth(context.Background()); !errors.Is(err, store.ErrAuditDisabled) {
		t.Errorf("expected sink error, got %v", err)
	}
}
