package postgres

import (
	"context"
	"database/sql"

	"github.com/resalt-bridge/resalt/internal/apperr"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) CreateMinionPreset(ctx context.Context, preset *model.MinionPreset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minion_presets (id, name, filter) VALUES ($1, $2, $3)`,
		preset.ID, preset.Name, nullOrEmptyJSON(preset.Filter))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.CodeInvalidRequest, "preset name already taken")
		}
		return dbErr(err)
	}
	return nil
}

func (s *Store) GetMinionPreset(ctx context.Context, id string) (*model.MinionPreset, error) {
	var p model.MinionPreset
	err := s.db.QueryRowContext(ctx, `SELECT id, name, filter FROM minion_presets WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Filter)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return &p, nil
}

func (s *Store) ListMinionPresets(ctx context.Context) ([]model.MinionPreset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, filter FROM minion_presets ORDER BY name ASC`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.MinionPreset
	for rows.Next() {
		var p model.MinionPreset
		if err := rows.Scan(&p.ID, &p.Name, &p.Filter); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, p)
	}
	return out, dbErr(rows.Err())
}

func (s *Store) UpdateMinionPreset(ctx context.Context, id, name, filterJSON string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE minion_presets SET name = $1, filter = $2 WHERE id = $3`, name, nullOrEmptyJSON(filterJSON), id)
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return apperr.NotFound("minion preset")
	}
	return nil
}

func (s *Store) DeleteMinionPreset(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM minion_presets WHERE id = $1`, id)
	return dbErr(err)
}
