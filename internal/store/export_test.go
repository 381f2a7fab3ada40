package store

import "context"

// Exec runs raw SQL against the cache so tests can corrupt rows or add triggers.
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}
