package services

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"OrderDesk/app/config"
	"OrderDesk/app/database"
	"OrderDesk/app/models"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

func quietLogger() *LoggerService {
	return NewLoggerServiceWithWriter(io.Discard)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSink keeps every published event
type recordingSink struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Name    string
	Payload interface{}
}

func (r *recordingSink) Publish(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Name: event, Payload: payload})
}

func (r *recordingSink) Events() []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]publishedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Name)
	}
	return names
}

func floatPtr(f float64) *float64 {
	return &f
}

func testOrder(status models.OrderStatus, total float64, createdAt time.Time) models.Order {
	return models.Order{
		OrderID:     "ORD-20260210-0001",
		UserID:      "user-1",
		SessionID:   "SES-1",
		Status:      status,
		TotalAmount: total,
		OrderType:   models.OrderTypeTakeaway,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}
