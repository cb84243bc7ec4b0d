package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/store"
)

func (d *DB) UpsertLearnedExpression(ctx context.Context, upsert *store.LearnedExpression) (*store.LearnedExpression, error) {
	stmt := `
		INSERT INTO learned_expression (tenant_id, intent_code, phrase, weight, verified, hit_count, embedding, created_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (tenant_id, intent_code, phrase)
		DO UPDATE SET
			hit_count = learned_expression.hit_count + 1,
			weight = GREATEST(learned_expression.weight, EXCLUDED.weight),
			verified = learned_expression.verified OR EXCLUDED.verified,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, weight, verified, hit_count, created_ts, updated_ts
	`
	hitCount := upsert.HitCount
	if hitCount < 1 {
		hitCount = 1
	}
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.TenantID,
		upsert.IntentCode,
		upsert.Phrase,
		upsert.Weight,
		upsert.Verified,
		hitCount,
		pgvector.NewVector(upsert.Embedding),
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.ID, &upsert.Weight, &upsert.Verified, &upsert.HitCount, &upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert learned expression")
	}
	return upsert, nil
}

func (d *DB) ListLearnedExpressions(ctx context.Context, find *store.FindLearnedExpression) ([]*store.LearnedExpression, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.TenantID != nil {
		where, args = append(where, "tenant_id = "+placeholder(len(args)+1)), append(args, *find.TenantID)
	}
	if find.IntentCode != nil {
		where, args = append(where, "intent_code = "+placeholder(len(args)+1)), append(args, *find.IntentCode)
	}
	if find.Verified != nil {
		where, args = append(where, "verified = "+placeholder(len(args)+1)), append(args, *find.Verified)
	}

	query := `
		SELECT id, tenant_id, intent_code, phrase, weight, verified, hit_count, embedding, created_ts, updated_ts
		FROM learned_expression
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY weight DESC, hit_count DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list learned expressions")
	}
	defer rows.Close()

	list := []*store.LearnedExpression{}
	for rows.Next() {
		var expr store.LearnedExpression
		var vector pgvector.Vector
		if err := rows.Scan(
			&expr.ID,
			&expr.TenantID,
			&expr.IntentCode,
			&expr.Phrase,
			&expr.Weight,
			&expr.Verified,
			&expr.HitCount,
			&vector,
			&expr.CreatedTs,
			&expr.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan learned expression")
		}
		expr.Embedding = vector.Slice()
		list = append(list, &expr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchLearnedExpressionsByVector ranks the tenant's expressions by cosine
// similarity inside the database. The <=> operator is pgvector's cosine
// distance; similarity = 1 - distance.
func (d *DB) SearchLearnedExpressionsByVector(ctx context.Context, tenantID int64, vector []float32, limit int) ([]*store.LearnedExpressionWithScore, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `
		SELECT id, tenant_id, intent_code, phrase, weight, verified, hit_count, embedding, created_ts, updated_ts,
			1 - (embedding <=> $2) AS similarity
		FROM learned_expression
		WHERE tenant_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := d.db.QueryContext(ctx, query, tenantID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search learned expressions by vector")
	}
	defer rows.Close()

	list := []*store.LearnedExpressionWithScore{}
	for rows.Next() {
		var expr store.LearnedExpression
		var vec pgvector.Vector
		var similarity float64
		if err := rows.Scan(
			&expr.ID,
			&expr.TenantID,
			&expr.IntentCode,
			&expr.Phrase,
			&expr.Weight,
			&expr.Verified,
			&expr.HitCount,
			&vec,
			&expr.CreatedTs,
			&expr.UpdatedTs,
			&similarity,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan learned expression")
		}
		expr.Embedding = vec.Slice()
		list = append(list, &store.LearnedExpressionWithScore{
			Expression: &expr,
			Score:      float32(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
