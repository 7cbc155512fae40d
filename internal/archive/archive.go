package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/railtracker-live/internal/common/db"
	"github.com/railtracker-live/internal/common/logger"
	"github.com/railtracker-live/internal/network"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS railtracker;
CREATE TABLE IF NOT EXISTS railtracker.passenger_events (
	event_id    BIGSERIAL PRIMARY KEY,
	station_id  TEXT NOT NULL,
	event_kind  TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS passenger_events_recorded_at_idx
	ON railtracker.passenger_events (recorded_at);
`

const cleanupInterval = time.Hour

// Archive exports applied passenger events to postgres for offline
// analysis. It is write-only: the monitor never reads archived rows back,
// so the live graph stays the single source of truth.
type Archive struct {
	database  *db.DB
	logger    logger.Logger
	retention time.Duration
}

// New connects the archive and ensures its schema exists.
func New(database *db.DB, retention time.Duration, log logger.Logger) (*Archive, error) {
	if _, err := database.DB().Exec(schema); err != nil {
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}
	return &Archive{
		database:  database,
		logger:    log,
		retention: retention,
	}, nil
}

// RecordEvent inserts one applied passenger event.
func (a *Archive) RecordEvent(ctx context.Context, event network.PassengerEvent) error {
	kind := "in"
	if event.Type == network.EventOut {
		kind = "out"
	}
	_, err := a.database.DB().ExecContext(ctx, `
		INSERT INTO railtracker.passenger_events (station_id, event_kind)
		VALUES ($1, $2)
	`, string(event.StationID), kind)
	if err != nil {
		return fmt.Errorf("archiving passenger event: %w", err)
	}
	return nil
}

// RunCleanup deletes events older than the retention window on an hourly
// cadence until ctx is cancelled.
func (a *Archive) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.cleanupOldEvents(ctx)
			if err != nil {
				a.logger.Error("Archive cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				a.logger.Info("Archive cleanup completed", "records_deleted", deleted)
			}
		}
	}
}

func (a *Archive) cleanupOldEvents(ctx context.Context) (int64, error) {
	res, err := a.database.DB().ExecContext(ctx, `
		DELETE FROM railtracker.passenger_events
		WHERE recorded_at < now() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(a.retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("deleting expired events: %w", err)
	}
	return res.RowsAffected()
}
