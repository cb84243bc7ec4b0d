package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/store"
)

func (d *DB) CreateMatchRecord(ctx context.Context, create *store.MatchRecord) (*store.MatchRecord, error) {
	stmt := `
		INSERT INTO match_record (tenant_id, user_input, intent_code, confidence, method, user_confirmed, created_ts)
		VALUES (` + placeholders(7) + `)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.TenantID,
		create.UserInput,
		create.IntentCode,
		create.Confidence,
		string(create.Method),
		create.UserConfirmed,
		create.CreatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create match record")
	}
	return create, nil
}

func (d *DB) ListMatchRecords(ctx context.Context, find *store.FindMatchRecord) ([]*store.MatchRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.TenantID != nil {
		where, args = append(where, "tenant_id = ?"), append(args, *find.TenantID)
	}
	if find.IntentCode != nil {
		where, args = append(where, "intent_code = ?"), append(args, *find.IntentCode)
	}
	if find.UserConfirmed != nil {
		where, args = append(where, "user_confirmed = ?"), append(args, *find.UserConfirmed)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_ts >= ?"), append(args, *find.CreatedAfter)
	}

	query := `
		SELECT id, tenant_id, user_input, intent_code, confidence, method, user_confirmed, created_ts
		FROM match_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list match records")
	}
	defer rows.Close()

	list := []*store.MatchRecord{}
	for rows.Next() {
		var record store.MatchRecord
		var method string
		if err := rows.Scan(
			&record.ID,
			&record.TenantID,
			&record.UserInput,
			&record.IntentCode,
			&record.Confidence,
			&method,
			&record.UserConfirmed,
			&record.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan match record")
		}
		record.Method = store.MatchMethod(method)
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) ConfirmMatchRecord(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE match_record SET user_confirmed = 1 WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to confirm match record")
	}
	return nil
}
