package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/taoyao-code/isp-ops/internal/phone"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS customers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  pppoe_username TEXT NOT NULL DEFAULT '',
  serial_number TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  package TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);
CREATE INDEX IF NOT EXISTS idx_customers_pppoe ON customers(pppoe_username);
CREATE INDEX IF NOT EXISTS idx_customers_serial ON customers(serial_number);
`

const customerColumns = `id, name, phone, pppoe_username, serial_number, address, package, status, created_at, updated_at`

// SQLiteStore keeps separate pools: one writer connection, several readers (WAL).
type SQLiteStore struct {
	reader *sql.DB
	writer *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("billing: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("billing: create dir: %w", err)
	}

	writer, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(time.Hour)

	if _, err := writer.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		writer.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	reader, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(2)
	reader.SetConnMaxLifetime(time.Hour)

	return &SQLiteStore{reader: reader, writer: writer}, nil
}

func (s *SQLiteStore) Close() error {
	rerr := s.reader.Close()
	werr := s.writer.Close()
	if rerr != nil {
		return fmt.Errorf("close reader: %w", rerr)
	}
	if werr != nil {
		return fmt.Errorf("close writer: %w", werr)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.reader.PingContext(ctx)
}

// GetCustomerByPhone matches any stored spelling of the number.
func (s *SQLiteStore) GetCustomerByPhone(ctx context.Context, raw string) (*Customer, error) {
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(variants)), ",")
	args := make([]any, len(variants))
	for i, v := range variants {
		args[i] = v
	}
	return s.queryOne(ctx, "phone IN ("+placeholders+")", args...)
}

func (s *SQLiteStore) GetCustomerByPPPoE(ctx context.Context, username string) (*Customer, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	return s.queryOne(ctx, "pppoe_username = ?", username)
}

func (s *SQLiteStore) GetCustomerBySerialNumber(ctx context.Context, serial string) (*Customer, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, nil
	}
	return s.queryOne(ctx, "serial_number = ? COLLATE NOCASE", serial)
}

func (s *SQLiteStore) queryOne(ctx context.Context, where string, args ...any) (*Customer, error) {
	row := s.reader.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE "+where+" ORDER BY id LIMIT 1", args...)

	var c Customer
	var created, updated string
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.PPPoEUsername, &c.SerialNumber,
		&c.Address, &c.Package, &c.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: query customer: %w", err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// UpsertCustomer inserts c when c.ID is zero, otherwise updates the row.
// The phone is stored in its normalised local form.
func (s *SQLiteStore) UpsertCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.New("billing: nil customer")
	}
	if n := phone.Normalize(c.Phone); n != "" {
		c.Phone = n
	}
	if c.Status == "" {
		c.Status = "active"
	}

	if c.ID == 0 {
		res, err := s.writer.ExecContext(ctx, `
			INSERT INTO customers (name, phone, pppoe_username, serial_number, address, package, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Name, c.Phone, c.PPPoEUsername, c.SerialNumber, c.Address, c.Package, c.Status)
		if err != nil {
			return fmt.Errorf("billing: insert customer: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("billing: insert id: %w", err)
		}
		c.ID = id
		return nil
	}

	res, err := s.writer.ExecContext(ctx, `
		UPDATE customers SET name = ?, phone = ?, pppoe_username = ?, serial_number = ?,
		  address = ?, package = ?, status = ?, updated_at = datetime('now')
		WHERE id = ?`,
		c.Name, c.Phone, c.PPPoEUsername, c.SerialNumber, c.Address, c.Package, c.Status, c.ID)
	if err != nil {
		return fmt.Errorf("billing: update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("billing: customer %d not found", c.ID)
	}
	return nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
