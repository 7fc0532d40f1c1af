// guard_test.go -- unit tests for Guard.Check.
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MGallo-Code/styx/internal/store"
	"github.com/MGallo-Code/styx/internal/testutil"
)

// seedSession stores a session for id expiring at exp.
func seedSession(ss *testutil.MockSessionStore, id string, exp time.Time) string {
	key := sessionKeys{testSecret}.key(id)
	ss.Sessions[key] = store.Session{UserID: "u1", Email: "u1@example.com", CreatedAt: time.Now(), ExpiresAt: exp}
	return key
}

func TestCheck_Valid(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	seedSession(ss, "sid", time.Now().Add(time.Hour))
	g := NewGuard(ss, testSecret, GuardOptions{})

	sess, err := g.Check(context.Background(), "sid")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sess.UserID != "u1" || sess.ID != "sid" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if ss.UpdateCalls != 0 {
		t.Error("non-sliding guard should never write")
	}
}

func TestCheck_Denied(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	seedSession(ss, "expired", time.Now().Add(-time.Second))
	g := NewGuard(ss, testSecret, GuardOptions{})

	for _, id := range []string{"", "unknown", "expired"} {
		if _, err := g.Check(context.Background(), id); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Check(%q): expected ErrUnauthenticated, got %v", id, err)
		}
	}
}

func TestCheck_ExpiresAtBoundary(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	exp := time.Now().Add(time.Hour)
	seedSession(ss, "sid", exp)
	g := NewGuard(ss, testSecret, GuardOptions{})
	g.now = func() time.Time { return exp }

	if _, err := g.Check(context.Background(), "sid"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated at expires_at, got %v", err)
	}
}

func TestCheck_StoreErrorDenies(t *testing.T) {
	storeErr := errors.New("redis down")
	ss := &testutil.MockSessionStore{GetErr: storeErr}
	g := NewGuard(ss, testSecret, GuardOptions{})

	_, err := g.Check(context.Background(), "sid")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
	if !errors.Is(err, errSessionLookup) || !errors.Is(err, storeErr) {
		t.Error("store failure should be distinguishable for logging")
	}
}

func TestCheck_SlidingExtends(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	key := seedSession(ss, "sid", time.Now().Add(10*time.Minute))
	g := NewGuard(ss, testSecret, GuardOptions{Sliding: true, TTL: time.Hour})

	sess, err := g.Check(context.Background(), "sid")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if time.Until(sess.ExpiresAt) < 50*time.Minute {
		t.Errorf("expected expiry about an hour out, got %v", time.Until(sess.ExpiresAt))
	}
	if ss.UpdateCalls != 1 {
		t.Errorf("expected 1 update, got %d", ss.UpdateCalls)
	}
	if !ss.Sessions[key].ExpiresAt.Equal(sess.ExpiresAt) {
		t.Error("stored expiry should match returned expiry")
	}
	if !sess.Extended {
		t.Error("extended session should be flagged for a cookie refresh")
	}
}

func TestCheck_SlidingRaceWithLogout(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	seedSession(ss, "sid", time.Now().Add(10*time.Minute))
	ss.UpdateErr = store.ErrNotFound
	g := NewGuard(ss, testSecret, GuardOptions{Sliding: true, TTL: time.Hour})

	if _, err := g.Check(context.Background(), "sid"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCheck_SlidingWriteFailureKeepsSession(t *testing.T) {
	ss := testutil.NewMockSessionStore()
	exp := time.Now().Add(10 * time.Minute)
	seedSession(ss, "sid", exp)
	ss.UpdateErr = errors.New("redis readonly")
	g := NewGuard(ss, testSecret, GuardOptions{Sliding: true, TTL: time.Hour})

	sess, err := g.Check(context.Background(), "sid")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !sess.ExpiresAt.Equal(exp) || sess.Extended {
		t.Error("session should be returned unextended")
	}
}
