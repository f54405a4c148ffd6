// Package billing is the read-mostly view of subscriber records used to
// correlate a customer with a managed device.
package billing

import (
	"context"
	"fmt"
	"time"

	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
)

// Customer maps the customers table. Optional identifiers are empty when unknown.
type Customer struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"column:name;type:text;not null;default:''" json:"name"`
	Phone         string    `gorm:"column:phone;type:text;not null;default:'';index" json:"phone"`
	PPPoEUsername string    `gorm:"column:pppoe_username;type:text;index" json:"pppoe_username,omitempty"`
	SerialNumber  string    `gorm:"column:serial_number;type:text;index" json:"serial_number,omitempty"`
	Address       string    `gorm:"column:address;type:text;not null;default:''" json:"address,omitempty"`
	Package       string    `gorm:"column:package;type:text;not null;default:''" json:"package,omitempty"`
	Status        string    `gorm:"column:status;type:text;not null;default:'active'" json:"status"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// Store is the billing collaborator. A lookup with no match returns (nil, nil).
type Store interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	GetCustomerByPPPoE(ctx context.Context, username string) (*Customer, error)
	GetCustomerBySerialNumber(ctx context.Context, serial string) (*Customer, error)
	UpsertCustomer(ctx context.Context, c *Customer) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg cfgpkg.BillingConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenGorm(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("billing: unknown driver %q", cfg.Driver)
	}
}
