package db

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the ledger tables from the bun models. Production deployments run
// the SQL migrations instead; this is used by cmd/migrate and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Event)(nil), (*models.Booking)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_event_id_idx").
		Column("event_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create bookings index: %w", err)
	}
	return nil
}

// DropSchema drops the ledger tables in reverse dependency order.
func DropSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Booking)(nil), (*models.Event)(nil)}
	for _, m := range tables {
		if _, err := db.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", m, err)
		}
	}
	return nil
}
