package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/resalt-bridge/resalt/internal/filter"
	"github.com/resalt-bridge/resalt/internal/model"
)

func (s *Store) UpsertMinionSeen(ctx context.Context, id string, lastSeen time.Time, osType *string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minions (id, last_seen, os_type) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen,
			os_type = COALESCE(EXCLUDED.os_type, minions.os_type)`,
		id, lastSeen, osType)
	return dbErr(err)
}

func scanMinion(row interface {
	Scan(dest ...interface{}) error
}) (*model.Minion, error) {
	var m model.Minion
	var grains, pillars, pkgs, conformity sql.NullString
	err := row.Scan(&m.ID, &m.LastSeen, &m.OSType, &grains, &pillars, &pkgs, &conformity,
		&m.ConformitySuccess, &m.ConformityIncorrect, &m.ConformityError,
		&m.LastUpdatedGrains, &m.LastUpdatedPillars, &m.LastUpdatedPkgs, &m.LastUpdatedConformity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if grains.Valid {
		m.Grains = &grains.String
	}
	if pillars.Valid {
		m.Pillars = &pillars.String
	}
	if pkgs.Valid {
		m.Pkgs = &pkgs.String
	}
	if conformity.Valid {
		m.Conformity = &conformity.String
	}
	return &m, nil
}

const minionColumns = `id, last_seen, os_type, grains, pillars, pkgs, conformity,
	conformity_success, conformity_incorrect, conformity_error,
	last_updated_grains, last_updated_pillars, last_updated_pkgs, last_updated_conformity`

func (s *Store) GetMinion(ctx context.Context, id string) (*model.Minion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+minionColumns+` FROM minions WHERE id = $1`, id)
	return scanMinion(row)
}

// ListMinions and CountMinions load the whole minion set and apply the same
// Go-level filter.Matches logic the memory backend uses, rather than
// translating grain/package filters into SQL: those operate over JSON
// documents whose shape is defined by the filter package, not the schema.
func (s *Store) allMinions(ctx context.Context) ([]model.Minion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+minionColumns+` FROM minions`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []model.Minion
	for rows.Next() {
		m, err := scanMinion(rows)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, dbErr(rows.Err())
}

func (s *Store) ListMinions(ctx context.Context, filters []model.Filter, sortKey model.Sort, page model.Paginate) ([]model.Minion, error) {
	all, err := s.allMinions(ctx)
	if err != nil {
		return nil, err
	}
	matched := filter.FilterMinions(all, filters)
	sortMinionsSlice(matched, sortKey)
	return paginateMinions(matched, page), nil
}

func (s *Store) CountMinions(ctx context.Context, filters []model.Filter) (int64, error) {
	all, err := s.allMinions(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(filter.FilterMinions(all, filters))), nil
}

func (s *Store) DeleteMinion(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM minions WHERE id = $1`, id)
	return dbErr(err)
}

func (s *Store) PruneMinions(ctx context.Context, knownIDs []string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM minions WHERE id != ALL($1)`, pq.Array(knownIDs))
	return dbErr(err)
}

func (s *Store) UpdateMinionGrains(ctx context.Context, id string, grains string, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minions (id, last_seen, grains, last_updated_grains) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET grains = EXCLUDED.grains, last_updated_grains = EXCLUDED.last_updated_grains
		 WHERE minions.last_updated_grains IS NULL OR minions.last_updated_grains <= EXCLUDED.last_updated_grains`,
		id, observedAt, grains, observedAt)
	return dbErr(err)
}

func (s *Store) UpdateMinionPillars(ctx context.Context, id string, pillars string, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minions (id, last_seen, pillars, last_updated_pillars) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET pillars = EXCLUDED.pillars, last_updated_pillars = EXCLUDED.last_updated_pillars
		 WHERE minions.last_updated_pillars IS NULL OR minions.last_updated_pillars <= EXCLUDED.last_updated_pillars`,
		id, observedAt, pillars, observedAt)
	return dbErr(err)
}

func (s *Store) UpdateMinionPkgs(ctx context.Context, id string, pkgs string, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minions (id, last_seen, pkgs, last_updated_pkgs) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET pkgs = EXCLUDED.pkgs, last_updated_pkgs = EXCLUDED.last_updated_pkgs
		 WHERE minions.last_updated_pkgs IS NULL OR minions.last_updated_pkgs <= EXCLUDED.last_updated_pkgs`,
		id, observedAt, pkgs, observedAt)
	return dbErr(err)
}

func (s *Store) UpdateMinionConformity(ctx context.Context, id string, conformity string, success, incorrect, errorCount int32, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO minions (id, last_seen, conformity, conformity_success, conformity_incorrect, conformity_error, last_updated_conformity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET conformity = EXCLUDED.conformity,
			conformity_success = EXCLUDED.conformity_success,
			conformity_incorrect = EXCLUDED.conformity_incorrect,
			conformity_error = EXCLUDED.conformity_error,
			last_updated_conformity = EXCLUDED.last_updated_conformity
		 WHERE minions.last_updated_conformity IS NULL OR minions.last_updated_conformity <= EXCLUDED.last_updated_conformity`,
		id, observedAt, conformity, success, incorrect, errorCount, observedAt)
	return dbErr(err)
}
