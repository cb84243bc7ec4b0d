package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/store"
)

func (d *DB) UpsertKeywordEffectiveness(ctx context.Context, upsert *store.KeywordEffectivenessRecord) (*store.KeywordEffectivenessRecord, error) {
	stmt := `
		INSERT INTO keyword_effectiveness (tenant_id, intent_code, keyword, source, weight, created_ts, updated_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (tenant_id, intent_code, keyword)
		DO UPDATE SET
			weight = EXCLUDED.weight,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.TenantID,
		upsert.IntentCode,
		upsert.Keyword,
		string(upsert.Source),
		upsert.Weight,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.ID, &upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert keyword effectiveness")
	}
	return upsert, nil
}

func (d *DB) ListKeywordEffectiveness(ctx context.Context, find *store.FindKeywordEffectiveness) ([]*store.KeywordEffectivenessRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.TenantID != nil {
		where, args = append(where, "tenant_id = "+placeholder(len(args)+1)), append(args, *find.TenantID)
	}
	if find.IntentCode != nil {
		where, args = append(where, "intent_code = "+placeholder(len(args)+1)), append(args, *find.IntentCode)
	}
	if find.Source != nil {
		where, args = append(where, "source = "+placeholder(len(args)+1)), append(args, string(*find.Source))
	}

	query := `
		SELECT id, tenant_id, intent_code, keyword, source, weight, created_ts, updated_ts
		FROM keyword_effectiveness
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY weight DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keyword effectiveness")
	}
	defer rows.Close()

	list := []*store.KeywordEffectivenessRecord{}
	for rows.Next() {
		var record store.KeywordEffectivenessRecord
		var source string
		if err := rows.Scan(
			&record.ID,
			&record.TenantID,
			&record.IntentCode,
			&record.Keyword,
			&source,
			&record.Weight,
			&record.CreatedTs,
			&record.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan keyword effectiveness")
		}
		record.Source = store.KeywordSource(source)
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) GetTenantConfig(ctx context.Context, tenantID int64) (*store.TenantConfig, error) {
	query := `
		SELECT tenant_id, auto_learn_enabled, max_keywords_per_intent, initial_keyword_weight, updated_ts
		FROM tenant_config
		WHERE tenant_id = $1
	`
	var cfg store.TenantConfig
	err := d.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cfg.TenantID,
		&cfg.AutoLearnEnabled,
		&cfg.MaxKeywordsPerIntent,
		&cfg.InitialKeywordWeight,
		&cfg.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get tenant config")
	}
	return &cfg, nil
}

func (d *DB) UpsertTenantConfig(ctx context.Context, upsert *store.TenantConfig) (*store.TenantConfig, error) {
	stmt := `
		INSERT INTO tenant_config (tenant_id, auto_learn_enabled, max_keywords_per_intent, initial_keyword_weight, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (tenant_id)
		DO UPDATE SET
			auto_learn_enabled = EXCLUDED.auto_learn_enabled,
			max_keywords_per_intent = EXCLUDED.max_keywords_per_intent,
			initial_keyword_weight = EXCLUDED.initial_keyword_weight,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.TenantID,
		upsert.AutoLearnEnabled,
		upsert.MaxKeywordsPerIntent,
		upsert.InitialKeywordWeight,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert tenant config")
	}
	return upsert, nil
}
