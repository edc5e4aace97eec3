package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// seedScheduleDefaults inserts the disabled settlement schedule singleton so
// a fresh deployment never sweeps before an operator configures it.
func seedScheduleDefaults(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("schedule seed requires database handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	const stmt = `
		INSERT INTO cron_settings (id, schedule_hour, schedule_minute, timezone, is_enabled, updated_at)
		VALUES (1, 2, 0, 'UTC', false, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("seed cron settings: %w", err)
	}
	return nil
}
