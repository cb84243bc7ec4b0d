package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/store"
)

func (d *DB) CreateIntentDefinition(ctx context.Context, create *store.IntentDefinition) (*store.IntentDefinition, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	create.UpdatedTs = now
	if create.Sensitivity == "" {
		create.Sensitivity = store.SensitivityNormal
	}

	stmt := `
		INSERT INTO intent_definition (
			tenant_id, code, name, category, description, pattern, keywords,
			priority, required_roles, sensitivity, quota_cost, cache_ttl_sec,
			active, created_ts, updated_ts
		)
		VALUES (` + placeholders(15) + `)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.TenantID,
		create.Code,
		create.Name,
		create.Category,
		create.Description,
		create.Pattern,
		marshalStringList(create.Keywords),
		create.Priority,
		marshalStringList(create.RequiredRoles),
		string(create.Sensitivity),
		create.QuotaCost,
		create.CacheTTLSec,
		create.Active,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create intent definition")
	}
	return create, nil
}

func (d *DB) ListIntentDefinitions(ctx context.Context, find *store.FindIntentDefinition) ([]*store.IntentDefinition, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.TenantID != nil {
		if find.IncludeGlobal && *find.TenantID != 0 {
			where, args = append(where, "(tenant_id = ? OR tenant_id = 0)"), append(args, *find.TenantID)
		} else {
			where, args = append(where, "tenant_id = ?"), append(args, *find.TenantID)
		}
	}
	if find.Code != nil {
		where, args = append(where, "code = ?"), append(args, *find.Code)
	}
	if find.Category != nil {
		where, args = append(where, "category = ?"), append(args, *find.Category)
	}
	if find.Active != nil {
		where, args = append(where, "active = ?"), append(args, *find.Active)
	}

	query := `
		SELECT id, tenant_id, code, name, category, description, pattern, keywords,
			priority, required_roles, sensitivity, quota_cost, cache_ttl_sec,
			active, created_ts, updated_ts
		FROM intent_definition
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY priority DESC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent definitions")
	}
	defer rows.Close()

	list := []*store.IntentDefinition{}
	for rows.Next() {
		var def store.IntentDefinition
		var keywords, roles, sensitivity string
		if err := rows.Scan(
			&def.ID,
			&def.TenantID,
			&def.Code,
			&def.Name,
			&def.Category,
			&def.Description,
			&def.Pattern,
			&keywords,
			&def.Priority,
			&roles,
			&sensitivity,
			&def.QuotaCost,
			&def.CacheTTLSec,
			&def.Active,
			&def.CreatedTs,
			&def.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent definition")
		}
		def.Keywords = unmarshalStringList(keywords)
		def.RequiredRoles = unmarshalStringList(roles)
		def.Sensitivity = store.SensitivityLevel(sensitivity)
		list = append(list, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateIntentKeywords(ctx context.Context, update *store.UpdateIntentKeywords) error {
	stmt := `UPDATE intent_definition SET keywords = ?, updated_ts = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, marshalStringList(update.Keywords), time.Now().Unix(), update.ID); err != nil {
		return errors.Wrap(err, "failed to update intent keywords")
	}
	return nil
}

func (d *DB) DeleteIntentDefinition(ctx context.Context, id int32) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM intent_definition WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete intent definition")
	}
	return nil
}
