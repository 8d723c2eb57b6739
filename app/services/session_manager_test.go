package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"OrderDesk/app/apperrors"
	"OrderDesk/app/models"
)

func TestSessionManager_ReusesWithinIdleWindow(t *testing.T) {
	clock := newFakeClock(baseTime)
	m := NewSessionManager(nil, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	first, err := m.CurrentSessionID(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(first, "SES-") {
		t.Errorf("session id = %q, want SES- prefix", first)
	}

	// each order extends the window
	clock.Advance(50 * time.Minute)
	again, _ := m.CurrentSessionID(ctx, "user-1")
	clock.Advance(50 * time.Minute)
	third, _ := m.CurrentSessionID(ctx, "user-1")
	if again != first || third != first {
		t.Errorf("sessions = %s, %s, %s; want one session", first, again, third)
	}

	other, _ := m.CurrentSessionID(ctx, "user-2")
	if other == first {
		t.Error("different users share a session")
	}
	if n := m.ActiveSessions(); n != 2 {
		t.Errorf("ActiveSessions() = %d, want 2", n)
	}
}

func TestSessionManager_ExpiresAfterIdle(t *testing.T) {
	clock := newFakeClock(baseTime)
	m := NewSessionManager(nil, time.Hour).WithClock(clock.Now)
	ctx := context.Background()

	first, _ := m.CurrentSessionID(ctx, "user-1")
	clock.Advance(time.Hour)
	second, _ := m.CurrentSessionID(ctx, "user-1")
	if second == first {
		t.Error("session survived the idle timeout")
	}
	if n := m.ActiveSessions(); n != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", n)
	}

	clock.Advance(time.Hour)
	if n := m.ActiveSessions(); n != 0 {
		t.Errorf("idle session still counted, ActiveSessions() = %d", n)
	}
}

func TestSessionManager_RecoversFromStore(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(baseTime)
	ctx := context.Background()

	o := models.Order{OrderID: "ORD-20260210-0001", UserID: "user-1", SessionID: "SES-from-db", CreatedAt: baseTime.Add(-30 * time.Minute)}
	if err := db.Create(&o).Error; err != nil {
		t.Fatal(err)
	}

	m := NewSessionManager(db, 0).WithClock(clock.Now)
	id, err := m.CurrentSessionID(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "SES-from-db" {
		t.Errorf("session id = %q, want SES-from-db", id)
	}

	// outside the window the stored order no longer counts
	fresh := NewSessionManager(db, 0).WithClock(clock.Now)
	clock.Advance(DefaultSessionIdleTimeout)
	id, err = fresh.CurrentSessionID(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if id == "SES-from-db" {
		t.Error("stale session reused from store")
	}
}

func TestSessionManager_RequiresUser(t *testing.T) {
	m := NewSessionManager(nil, 0)
	if _, err := m.CurrentSessionID(context.Background(), ""); !apperrors.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
