package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// ListOpportunities lists catalog items, most recently created first.
func (d *DB) ListOpportunities(ctx context.Context, find *store.FindOpportunity) ([]*store.Opportunity, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Category != nil {
		where, args = append(where, "category = ?"), append(args, *find.Category)
	}

	query := `
		SELECT id, title, summary, category, provider, location, requirements, benefits,
			deadline_ts, created_ts, updated_ts
		FROM opportunity
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list opportunities")
	}
	defer rows.Close()

	list := []*store.Opportunity{}
	for rows.Next() {
		var opportunity store.Opportunity
		var deadlineTs sql.NullInt64
		err := rows.Scan(
			&opportunity.ID,
			&opportunity.Title,
			&opportunity.Summary,
			&opportunity.Category,
			&opportunity.Provider,
			&opportunity.Location,
			&opportunity.Requirements,
			&opportunity.Benefits,
			&deadlineTs,
			&opportunity.CreatedTs,
			&opportunity.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan opportunity")
		}
		if deadlineTs.Valid {
			t := time.Unix(deadlineTs.Int64, 0)
			opportunity.Deadline = &t
		}
		list = append(list, &opportunity)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func nullDeadlineTs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
