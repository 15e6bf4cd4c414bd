package postgres

import (
	"context"

	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, "timestamp", tag, data) VALUES ($1, $2, $3, $4)`,
		event.ID, event.Timestamp, event.Tag, event.Data)
	return dbErr(err)
}

func (s *Store) ListEvents(ctx context.Context, page model.Paginate) ([]model.Event, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, "timestamp", tag, data FROM events ORDER BY "timestamp" DESC LIMIT $1 OFFSET $2`,
		limit, page.Offset)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Tag, &e.Data); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, e)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, dbErr(err)
}
