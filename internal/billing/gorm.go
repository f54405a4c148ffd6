package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taoyao-code/isp-ops/internal/phone"
)

// GormStore is the billing store for deployments that keep customers in Postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to dsn and migrates the customers table.
func OpenGorm(ctx context.Context, dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("billing: postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("billing: open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&Customer{}); err != nil {
		return nil, fmt.Errorf("billing: migrate: %w", err)
	}
	return NewGormStore(db), nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetCustomerByPhone(ctx context.Context, raw string) (*Customer, error) {
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		return nil, nil
	}
	return s.first(ctx, "phone IN ?", variants)
}

func (s *GormStore) GetCustomerByPPPoE(ctx context.Context, username string) (*Customer, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	return s.first(ctx, "pppoe_username = ?", username)
}

func (s *GormStore) GetCustomerBySerialNumber(ctx context.Context, serial string) (*Customer, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, nil
	}
	return s.first(ctx, "UPPER(serial_number) = UPPER(?)", serial)
}

func (s *GormStore) first(ctx context.Context, query string, args ...any) (*Customer, error) {
	var c Customer
	err := s.db.WithContext(ctx).Where(query, args...).Order("id").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: query customer: %w", err)
	}
	return &c, nil
}

// UpsertCustomer inserts or updates by primary key.
func (s *GormStore) UpsertCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.New("billing: nil customer")
	}
	if n := phone.Normalize(c.Phone); n != "" {
		c.Phone = n
	}
	if c.Status == "" {
		c.Status = "active"
	}
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("billing: save customer: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
