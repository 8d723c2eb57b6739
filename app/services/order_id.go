package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"OrderDesk/app/models"

	"gorm.io/gorm"
)

const (
	orderIDPrefix  = "ORD"
	maxDailyOrders = 9999
)

var orderIDPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// IsValidOrderID reports whether s looks like ORD-YYYYMMDD-NNNN
func IsValidOrderID(s string) bool {
	return orderIDPattern.MatchString(s)
}

// OrderIDSequencer hands out human readable, per-day sequential order ids.
//
// It reads the highest id of the day and adds one. Two concurrent callers can
// read the same maximum; the unique index on order_id rejects the second
// insert, which then surfaces as apperrors.ErrOrderIDCollision.
type OrderIDSequencer struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewOrderIDSequencer creates a sequencer whose days start at midnight in loc
func NewOrderIDSequencer(db *gorm.DB, loc *time.Location) *OrderIDSequencer {
	if loc == nil {
		loc = time.Local
	}
	return &OrderIDSequencer{db: db, loc: loc, now: time.Now}
}

// WithClock replaces the time source, for tests
func (s *OrderIDSequencer) WithClock(now func() time.Time) *OrderIDSequencer {
	s.now = now
	return s
}

// Now returns the sequencer's current time
func (s *OrderIDSequencer) Now() time.Time {
	return s.now()
}

// Next returns the next id for today
func (s *OrderIDSequencer) Next(ctx context.Context) (string, error) {
	return s.NextFor(ctx, s.now())
}

// NextFor returns the next id for the calendar day containing t
func (s *OrderIDSequencer) NextFor(ctx context.Context, t time.Time) (string, error) {
	start, end := s.dayWindow(t)
	datePart := start.Format("20060102")

	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Where("order_id LIKE ?", fmt.Sprintf("%s-%s-%%", orderIDPrefix, datePart)).
		Order("order_id DESC").
		Limit(1).
		Pluck("order_id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("failed to read last order id: %w", err)
	}

	next := 1
	if len(ids) > 0 {
		last, err := parseOrderSequence(ids[0])
		if err != nil {
			return "", err
		}
		next = last + 1
	}
	if next > maxDailyOrders {
		return "", fmt.Errorf("order id sequence exhausted for %s", datePart)
	}

	return fmt.Sprintf("%s-%s-%04d", orderIDPrefix, datePart, next), nil
}

// dayWindow returns [midnight, next midnight) of t's day in the sequencer location
func (s *OrderIDSequencer) dayWindow(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func parseOrderSequence(orderID string) (int, error) {
	if !IsValidOrderID(orderID) {
		return 0, fmt.Errorf("malformed order id %q", orderID)
	}
	n, err := strconv.Atoi(orderID[len(orderID)-4:])
	if err != nil {
		return 0, fmt.Errorf("malformed order id %q: %w", orderID, err)
	}
	return n, nil
}
