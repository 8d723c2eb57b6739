package services

import (
	"context"
	"testing"
	"time"

	"OrderDesk/app/models"
)

func insertOrderWithID(t *testing.T, seq *OrderIDSequencer, createdAt time.Time) string {
	t.Helper()
	id, err := seq.NextFor(context.Background(), createdAt)
	if err != nil {
		t.Fatalf("NextFor() error = %v", err)
	}
	o := models.Order{OrderID: id, UserID: "u1", SessionID: "s1", CreatedAt: createdAt.UTC()}
	if err := seq.db.Create(&o).Error; err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return id
}

func TestOrderIDSequencer_DailySequence(t *testing.T) {
	db := newTestDB(t)
	seq := NewOrderIDSequencer(db, time.UTC)

	day1 := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 11, 0, 5, 0, 0, time.UTC)

	steps := []struct {
		at   time.Time
		want string
	}{
		{day1, "ORD-20260210-0001"},
		{day1.Add(time.Minute), "ORD-20260210-0002"},
		{day1.Add(14 * time.Hour), "ORD-20260210-0003"},
		{day2, "ORD-20260211-0001"},
		{day2.Add(time.Hour), "ORD-20260211-0002"},
	}

	for _, step := range steps {
		if got := insertOrderWithID(t, seq, step.at); got != step.want {
			t.Errorf("NextFor(%v) = %q, want %q", step.at, got, step.want)
		}
	}
}

func TestOrderIDSequencer_NextUsesClock(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	seq := NewOrderIDSequencer(db, time.UTC).WithClock(clock.Now)

	got, err := seq.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "ORD-20260210-0001" {
		t.Errorf("Next() = %q, want ORD-20260210-0001", got)
	}
}

func TestOrderIDSequencer_LocalDayWindow(t *testing.T) {
	db := newTestDB(t)
	loc := time.FixedZone("IST", 5*3600+1800)
	seq := NewOrderIDSequencer(db, loc)

	// 20:00 UTC on the 10th is already the 11th in IST
	late := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	if got := insertOrderWithID(t, seq, late); got != "ORD-20260211-0001" {
		t.Errorf("got %q, want ORD-20260211-0001", got)
	}

	// Earlier UTC the same UTC day but the 10th locally
	early := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	if got := insertOrderWithID(t, seq, early); got != "ORD-20260210-0001" {
		t.Errorf("got %q, want ORD-20260210-0001", got)
	}
}

func TestOrderIDSequencer_Exhausted(t *testing.T) {
	db := newTestDB(t)
	seq := NewOrderIDSequencer(db, time.UTC)
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	o := models.Order{OrderID: "ORD-20260210-9999", UserID: "u1", SessionID: "s1", CreatedAt: at}
	if err := db.Create(&o).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := seq.NextFor(context.Background(), at); err == nil {
		t.Error("NextFor() after 9999 should fail")
	}
}

func TestIsValidOrderID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"ORD-20260210-0001", true},
		{"ORD-20260210-001", false},
		{"ORD-2026021-0001", false},
		{"ord-20260210-0001", false},
		{"ORD-20260210-0001x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidOrderID(tt.id); got != tt.want {
			t.Errorf("IsValidOrderID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
