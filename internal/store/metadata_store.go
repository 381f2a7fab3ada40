package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetSyncMetadata stores value under key, replacing any previous value.
func (s *SQLiteStore) SetSyncMetadata(ctx context.Context, key, value string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, formatTime(time.Now()),
	)
	if err != nil {
		return storageErr(fmt.Sprintf("setting sync metadata %s", key), err)
	}
	return nil
}

// GetSyncMetadata returns the value stored under key.
func (s *SQLiteStore) GetSyncMetadata(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.GetContext(ctx, &value, `SELECT value FROM sync_metadata WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr(fmt.Sprintf("getting sync metadata %s", key), err)
	}
	return value, true, nil
}
