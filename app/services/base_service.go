package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// BaseService provides common functionality for database backed services
type BaseService struct {
	db *gorm.DB
}

// NewBaseService creates a new base service instance
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{db: db}
}

// GetDB returns the database connection
func (b *BaseService) GetDB() *gorm.DB {
	return b.db
}

// EnsureDB checks if database is initialized and returns an error if not
func (b *BaseService) EnsureDB() error {
	if b.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return nil
}

// WithTransaction executes fn within a database transaction bound to ctx.
// fn must only use tx; the local store allows a single connection.
func (b *BaseService) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := b.EnsureDB(); err != nil {
		return err
	}
	return b.db.WithContext(ctx).Transaction(fn)
}
