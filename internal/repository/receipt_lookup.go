package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"estate-access-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

const paidReceiptQuery = `
	SELECT
		p.receipt_code,
		p.id AS payment_id,
		t.id AS tenant_id,
		t.first_name,
		t.last_name,
		t.unit,
		t.phone,
		p.period,
		p.paid_at,
		(SELECT COUNT(*) FROM household_members m WHERE m.tenant_id = t.id) AS household_count
	FROM payment_records p
	JOIN tenants t ON t.id = p.tenant_id
	WHERE p.receipt_code = ? AND p.status = 'paid'`

// ReceiptLookup is the read-only view the gate verification runs against.
// It shares the connection pool with gorm but never writes.
type ReceiptLookup struct {
	db    *sqlx.DB
	query string
}

func NewReceiptLookup(db *sqlx.DB) *ReceiptLookup {
	return &ReceiptLookup{db: db, query: db.Rebind(paidReceiptQuery)}
}

// NewReceiptLookupFromGorm wraps the *sql.DB underneath a gorm handle.
func NewReceiptLookupFromGorm(gdb *gorm.DB) (*ReceiptLookup, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	return NewReceiptLookup(sqlx.NewDb(sqlDB, driverName(gdb))), nil
}

func driverName(gdb *gorm.DB) string {
	switch gdb.Dialector.Name() {
	case "postgres":
		return "pgx"
	case "sqlite":
		return "sqlite3"
	default:
		return gdb.Dialector.Name()
	}
}

// FindPaidReceipt returns ErrNotFound when no paid record carries the code.
// The code must already be normalized.
func (l *ReceiptLookup) FindPaidReceipt(ctx context.Context, code string) (*models.ReceiptView, error) {
	var v models.ReceiptView
	err := l.db.GetContext(ctx, &v, l.query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup receipt: %w", err)
	}
	return &v, nil
}
