package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"OrderDesk/app/models"

	"gorm.io/gorm"
)

// legacyStatusMap rewrites statuses from the earlier order workflow. The
// kitchen states collapse to ACCEPTED because they were never order states.
var legacyStatusMap = map[string]models.OrderStatus{
	"Pending":         models.OrderStatusPlaced,
	"Accepted":        models.OrderStatusAccepted,
	"Preparing":       models.OrderStatusAccepted,
	"Ready":           models.OrderStatusAccepted,
	"ChangeRequested": models.OrderStatusChanged,
	"Updated":         models.OrderStatusChanged,
	"Cancelled":       models.OrderStatusCancelled,
	"Completed":       models.OrderStatusCompleted,
}

// MigrationSummary reports the outcome of a migration run
type MigrationSummary struct {
	Processed      int `json:"processed"`
	Migrated       int `json:"migrated"`
	Errors         int `json:"errors"`
	StatusRewrites int `json:"status_rewrites"`
	IDsAssigned    int `json:"ids_assigned"`
}

// MigrationService upgrades orders stored by earlier versions
type MigrationService struct {
	db        *gorm.DB
	sequencer *OrderIDSequencer
}

func NewMigrationService(db *gorm.DB, sequencer *OrderIDSequencer) *MigrationService {
	return &MigrationService{db: db, sequencer: sequencer}
}

type legacyOrderRow struct {
	ID        uint
	OrderID   *string
	Status    string
	CreatedAt time.Time
}

// MigrateOrders rewrites legacy statuses and assigns order ids to orders
// that have none, using each order's own creation day. Orders are handled
// oldest first; a failing order is counted and skipped.
func (s *MigrationService) MigrateOrders(ctx context.Context) (*MigrationSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	legacy := make([]string, 0, len(legacyStatusMap))
	for status := range legacyStatusMap {
		legacy = append(legacy, status)
	}

	// Raw columns: reading through models.Order would canonicalize the status
	var rows []legacyOrderRow
	err := s.db.WithContext(ctx).
		Table("orders").
		Select("id, order_id, status, created_at").
		Where("order_id IS NULL OR order_id = '' OR status IN ?", legacy).
		Order("created_at ASC, id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load orders to migrate: %w", err)
	}

	summary := &MigrationSummary{Processed: len(rows)}
	log.Printf("MigrationService: Found %d orders to migrate", len(rows))

	for _, row := range rows {
		updates := map[string]interface{}{}

		if row.OrderID == nil || *row.OrderID == "" {
			id, err := s.sequencer.NextFor(ctx, row.CreatedAt)
			if err != nil {
				log.Printf("MigrationService: Error assigning order id to %d: %v", row.ID, err)
				summary.Errors++
				continue
			}
			updates["order_id"] = id
		}
		if next, ok := legacyStatusMap[row.Status]; ok {
			updates["status"] = string(next)
		}

		err := s.db.WithContext(ctx).Table("orders").Where("id = ?", row.ID).Updates(updates).Error
		if err != nil {
			log.Printf("MigrationService: Error migrating order %d: %v", row.ID, err)
			summary.Errors++
			continue
		}

		if _, ok := updates["order_id"]; ok {
			summary.IDsAssigned++
		}
		if next, ok := updates["status"]; ok {
			log.Printf("MigrationService: Order %d: %s -> %s", row.ID, row.Status, next)
			summary.StatusRewrites++
		}
		summary.Migrated++
	}

	log.Printf("MigrationService: Migrated %d of %d orders (%d errors)", summary.Migrated, summary.Processed, summary.Errors)
	return summary, nil
}
