package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"OrderDesk/app/models"

	"gorm.io/gorm"
)

func seedAnalyticsOrder(t *testing.T, db *gorm.DB, n int, user string, at time.Time, total float64, items ...models.OrderItem) {
	t.Helper()
	o := models.Order{
		OrderID:     fmt.Sprintf("ORD-%s-%04d", at.Format("20060102"), n),
		UserID:      user,
		SessionID:   "SES-" + user,
		TotalAmount: total,
		Status:      models.OrderStatusCompleted,
		Items:       items,
		CreatedAt:   at.UTC(),
	}
	if err := db.Create(&o).Error; err != nil {
		t.Fatal(err)
	}
}

func TestRangeStart(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 4, 0, 0, time.UTC)
	tests := []struct {
		in      string
		wantKey string
		want    time.Time
	}{
		{"1d", "1d", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		{"7d", "7d", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"30d", "30d", time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
		{"", "30d", time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
		{"90d", "30d", time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		key, got := RangeStart(tt.in, now)
		if key != tt.wantKey || !got.Equal(tt.want) {
			t.Errorf("RangeStart(%q) = %s %v, want %s %v", tt.in, key, got, tt.wantKey, tt.want)
		}
	}
}

func TestGetAnalytics(t *testing.T) {
	db := newTestDB(t)
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 2, 10, 21, 0, 0, 0, ist)

	dosa := func(q int) models.OrderItem { return models.OrderItem{Name: "Masala Dosa", Quantity: q, Price: 90} }
	coffee := func(q int) models.OrderItem { return models.OrderItem{Name: "Filter Coffee", Quantity: q, Price: 40} }

	seedAnalyticsOrder(t, db, 1, "u1", time.Date(2026, 2, 10, 9, 15, 0, 0, ist), 220, dosa(2), coffee(1))
	seedAnalyticsOrder(t, db, 2, "u1", time.Date(2026, 2, 10, 9, 45, 0, 0, ist), 80, coffee(2))
	seedAnalyticsOrder(t, db, 3, "u2", time.Date(2026, 2, 10, 13, 5, 0, 0, ist), 90, dosa(1))
	// IST 00:30 on the 8th is still the 7th in UTC
	seedAnalyticsOrder(t, db, 1, "u3", time.Date(2026, 2, 8, 0, 30, 0, 0, ist), 130, dosa(1), coffee(1))
	// outside 7 days
	seedAnalyticsOrder(t, db, 1, "u4", time.Date(2026, 1, 20, 12, 0, 0, 0, ist), 500, coffee(10))

	svc := NewAnalyticsService(db, ist).WithClock(func() time.Time { return now })

	today, err := svc.GetAnalytics(context.Background(), "1d")
	if err != nil {
		t.Fatal(err)
	}
	if today.Stats.TotalOrders != 3 || today.Stats.TotalRevenue != 390 || today.Stats.AvgOrderValue != 130 {
		t.Errorf("today stats = %+v", today.Stats)
	}
	// 3 orders by 2 users
	if today.Stats.RetentionRate != 33.3 {
		t.Errorf("RetentionRate = %v, want 33.3", today.Stats.RetentionRate)
	}
	if len(today.PeakTimes) != 2 || today.PeakTimes[0].Hour != 9 || today.PeakTimes[0].Orders != 2 || today.PeakTimes[1].Time != "13:00" {
		t.Errorf("PeakTimes = %+v", today.PeakTimes)
	}

	week, err := svc.GetAnalytics(context.Background(), "7d")
	if err != nil {
		t.Fatal(err)
	}
	if week.Stats.TotalOrders != 4 {
		t.Errorf("week orders = %d, want 4", week.Stats.TotalOrders)
	}
	if len(week.RevenueTrend) != 2 || week.RevenueTrend[0].Date != "2026-02-08" || week.RevenueTrend[0].Label != "Feb 8" || week.RevenueTrend[1].Revenue != 390 {
		t.Errorf("RevenueTrend = %+v", week.RevenueTrend)
	}
	if len(week.TopItems) != 2 || week.TopItems[0].Name != "Filter Coffee" || week.TopItems[0].Value != 4 || week.TopItems[1].Revenue != 360 {
		t.Errorf("TopItems = %+v", week.TopItems)
	}

	month, _ := svc.GetAnalytics(context.Background(), "bogus")
	if month.Range != "30d" || month.Stats.TotalOrders != 5 {
		t.Errorf("default range = %s with %d orders", month.Range, month.Stats.TotalOrders)
	}
}

func TestGetAnalytics_Empty(t *testing.T) {
	svc := NewAnalyticsService(newTestDB(t), time.UTC)
	got, err := svc.GetAnalytics(context.Background(), "1d")
	if err != nil {
		t.Fatal(err)
	}
	if got.Stats.TotalOrders != 0 || got.Stats.RetentionRate != 0 || got.RevenueTrend == nil || got.TopItems == nil {
		t.Errorf("empty analytics = %+v", got)
	}
}
