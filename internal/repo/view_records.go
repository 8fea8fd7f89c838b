package repo

import (
	"context"
	"database/sql"
	"time"

	"practiceflow/internal/domain"
	"practiceflow/internal/radar"
)

// ViewStore persists radar interaction history in SQLite. It satisfies
// radar.HistoryStore.
type ViewStore struct {
	DB *sql.DB
}

var _ radar.HistoryStore = ViewStore{}

func (s ViewStore) LastViewed(ctx context.Context, viewerID, itemID string) (*time.Time, error) {
	var last sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT last_viewed_at FROM view_records WHERE viewer_id=? AND item_id=?`, viewerID, itemID).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !last.Valid || last.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, last.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s ViewStore) RecordView(ctx context.Context, viewerID, itemID string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	_, err := s.DB.ExecContext(ctx, `INSERT INTO view_records(viewer_id,item_id,last_viewed_at,drift,updated_at) VALUES (?,?,?,0,?)
ON CONFLICT(viewer_id,item_id) DO UPDATE SET last_viewed_at=excluded.last_viewed_at, updated_at=excluded.updated_at`,
		viewerID, itemID, ts, ts)
	return err
}

func (s ViewStore) Drift(ctx context.Context, viewerID, itemID string) (int, error) {
	var drift int
	err := s.DB.QueryRowContext(ctx, `SELECT drift FROM view_records WHERE viewer_id=? AND item_id=?`, viewerID, itemID).Scan(&drift)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return radar.ClampDrift(drift), nil
}

func (s ViewStore) IncrementDrift(ctx context.Context, viewerID, itemID string) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	_, err := s.DB.ExecContext(ctx, `INSERT INTO view_records(viewer_id,item_id,last_viewed_at,drift,updated_at) VALUES (?,?,NULL,1,?)
ON CONFLICT(viewer_id,item_id) DO UPDATE SET drift=MIN(view_records.drift+1,?), updated_at=excluded.updated_at`,
		viewerID, itemID, ts, radar.DriftCap)
	return err
}

// GetViewRecord returns the raw row, mostly for inspection endpoints.
func (s ViewStore) GetViewRecord(ctx context.Context, viewerID, itemID string) (domain.ViewRecord, error) {
	var rec domain.ViewRecord
	var last sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT viewer_id,item_id,last_viewed_at,drift,updated_at FROM view_records WHERE viewer_id=? AND item_id=?`, viewerID, itemID).
		Scan(&rec.ViewerID, &rec.ItemID, &last, &rec.Drift, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if last.Valid {
		rec.LastViewedAt = &last.String
	}
	return rec, nil
}
