package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"OrderDesk/app/models"

	"gorm.io/gorm"
)

// AnalyticsService computes sales statistics for the admin dashboard
type AnalyticsService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewAnalyticsService creates a new analytics service. Days and hours are
// bucketed in loc.
func NewAnalyticsService(db *gorm.DB, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsService{db: db, loc: loc, now: time.Now}
}

// WithClock replaces the time source, for tests
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

// AnalyticsStats is the headline block of the dashboard
type AnalyticsStats struct {
	TotalRevenue  float64 `json:"total_revenue"`
	TotalOrders   int     `json:"total_orders"`
	AvgOrderValue int     `json:"avg_order_value"`
	// RetentionRate is the share of orders placed by returning users, in percent
	RetentionRate float64 `json:"retention_rate"`
}

// RevenuePoint is one day of the revenue trend
type RevenuePoint struct {
	Date    string  `json:"date"`  // 2006-01-02
	Label   string  `json:"month"` // Jan 2
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
}

// TopItem is a best selling item by quantity
type TopItem struct {
	Name    string  `json:"name"`
	Value   int     `json:"value"`
	Revenue float64 `json:"revenue"`
}

// PeakTime is the number of orders placed in one hour of the day
type PeakTime struct {
	Time   string `json:"time"`
	Hour   int    `json:"hour"`
	Orders int    `json:"orders"`
}

// Analytics is the full dashboard payload
type Analytics struct {
	Range        string         `json:"range"`
	Since        time.Time      `json:"since"`
	Stats        AnalyticsStats `json:"stats"`
	RevenueTrend []RevenuePoint `json:"revenue_trend"`
	TopItems     []TopItem      `json:"top_items"`
	PeakTimes    []PeakTime     `json:"peak_times"`
}

// RangeStart returns the first instant covered by rangeKey: midnight today
// for "1d", midnight seven days ago for "7d", and thirty days otherwise
func RangeStart(rangeKey string, now time.Time) (string, time.Time) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch rangeKey {
	case "1d":
		return "1d", midnight
	case "7d":
		return "7d", midnight.AddDate(0, 0, -7)
	default:
		return "30d", midnight.AddDate(0, 0, -30)
	}
}

// GetAnalytics aggregates every order created since the start of rangeKey
func (s *AnalyticsService) GetAnalytics(ctx context.Context, rangeKey string) (*Analytics, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	key, since := RangeStart(rangeKey, s.now().In(s.loc))
	db := s.db.WithContext(ctx)

	var totals struct {
		Revenue float64
		Orders  int64
		Users   int64
	}
	err := db.Model(&models.Order{}).
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS orders, COUNT(DISTINCT user_id) AS users").
		Where("created_at >= ?", since.UTC()).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate orders: %w", err)
	}

	result := &Analytics{
		Range: key,
		Since: since,
		Stats: AnalyticsStats{
			TotalRevenue: totals.Revenue,
			TotalOrders:  int(totals.Orders),
		},
		RevenueTrend: []RevenuePoint{},
		TopItems:     []TopItem{},
		PeakTimes:    []PeakTime{},
	}
	if totals.Orders > 0 {
		result.Stats.AvgOrderValue = int(math.Round(totals.Revenue / float64(totals.Orders)))
		retention := float64(totals.Orders-totals.Users) / float64(totals.Orders) * 100
		result.Stats.RetentionRate = math.Round(retention*10) / 10
	}

	err = db.Table("order_items").
		Select("order_items.name AS name, SUM(order_items.quantity) AS value, SUM(order_items.price * order_items.quantity) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.created_at >= ?", since.UTC()).
		Group("order_items.name").
		Order("value DESC, name ASC").
		Limit(5).
		Scan(&result.TopItems).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank items: %w", err)
	}

	// Day and hour buckets depend on the business time zone, which the
	// database does not know, so they are computed here
	var rows []struct {
		CreatedAt   time.Time
		TotalAmount float64
	}
	err = db.Model(&models.Order{}).
		Select("created_at, total_amount").
		Where("created_at >= ?", since.UTC()).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load order times: %w", err)
	}

	days := map[string]*RevenuePoint{}
	hours := map[int]int{}
	for _, r := range rows {
		local := r.CreatedAt.In(s.loc)
		date := local.Format("2006-01-02")
		p, ok := days[date]
		if !ok {
			p = &RevenuePoint{Date: date, Label: local.Format("Jan 2")}
			days[date] = p
		}
		p.Revenue += r.TotalAmount
		p.Orders++
		hours[local.Hour()]++
	}

	for _, p := range days {
		result.RevenueTrend = append(result.RevenueTrend, *p)
	}
	sort.Slice(result.RevenueTrend, func(i, j int) bool {
		return result.RevenueTrend[i].Date < result.RevenueTrend[j].Date
	})
	for hour, n := range hours {
		result.PeakTimes = append(result.PeakTimes, PeakTime{Time: fmt.Sprintf("%d:00", hour), Hour: hour, Orders: n})
	}
	sort.Slice(result.PeakTimes, func(i, j int) bool {
		return result.PeakTimes[i].Hour < result.PeakTimes[j].Hour
	})

	return result, nil
}
