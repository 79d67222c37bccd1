package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// CreateFeedbackEvent appends a feedback event.
func (d *DB) CreateFeedbackEvent(ctx context.Context, create *store.FeedbackEvent) (*store.FeedbackEvent, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO feedback_event (user_id, opportunity_id, signal, created_ts, processed)
		VALUES (` + placeholders(5) + `)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.OpportunityID,
		string(create.Signal),
		create.CreatedTs,
		create.Processed,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create feedback event")
	}

	return create, nil
}

// ListFeedbackEvents lists feedback events, oldest first.
func (d *DB) ListFeedbackEvents(ctx context.Context, find *store.FindFeedbackEvent) ([]*store.FeedbackEvent, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Processed != nil {
		where, args = append(where, "processed = "+placeholder(len(args)+1)), append(args, *find.Processed)
	}

	query := `
		SELECT id, user_id, opportunity_id, signal, created_ts, processed
		FROM feedback_event
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list feedback events")
	}
	defer rows.Close()

	list := []*store.FeedbackEvent{}
	for rows.Next() {
		var event store.FeedbackEvent
		var signal string
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.OpportunityID,
			&signal,
			&event.CreatedTs,
			&event.Processed,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan feedback event")
		}
		event.Signal = store.FeedbackSignal(signal)
		list = append(list, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// MarkFeedbackEventsProcessed flips processed for the given ids inside one
// transaction, so a partial failure marks nothing.
func (d *DB) MarkFeedbackEventsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `UPDATE feedback_event SET processed = TRUE WHERE id = ANY(` + placeholder(1) + `)`
	if _, err := tx.ExecContext(ctx, stmt, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "failed to mark feedback events processed")
	}

	return tx.Commit()
}

// CountExplicitFeedback counts processed explicit ratings created at or after
// sinceTs.
func (d *DB) CountExplicitFeedback(ctx context.Context, sinceTs int64) (int64, int64, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE signal IN ('helpful', 'somewhat_helpful')),
			COUNT(*)
		FROM feedback_event
		WHERE processed = TRUE
			AND created_ts >= ` + placeholder(1) + `
			AND signal IN ('helpful', 'somewhat_helpful', 'not_helpful')
	`
	var helpful, total int64
	if err := d.db.QueryRowContext(ctx, query, sinceTs).Scan(&helpful, &total); err != nil {
		return 0, 0, errors.Wrap(err, "failed to count explicit feedback")
	}
	return helpful, total, nil
}
