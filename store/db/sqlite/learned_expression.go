package sqlite

import (
	"context"
	"math"
	"sort"
	"strings"

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
			weight = MAX(learned_expression.weight, excluded.weight),
			verified = learned_expression.verified OR excluded.verified,
			updated_ts = excluded.updated_ts
		RETURNING id, weight, verified, hit_count, created_ts, updated_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.TenantID,
		upsert.IntentCode,
		upsert.Phrase,
		upsert.Weight,
		upsert.Verified,
		max(upsert.HitCount, 1),
		marshalVector(upsert.Embedding),
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
		where, args = append(where, "tenant_id = ?"), append(args, *find.TenantID)
	}
	if find.IntentCode != nil {
		where, args = append(where, "intent_code = ?"), append(args, *find.IntentCode)
	}
	if find.Verified != nil {
		where, args = append(where, "verified = ?"), append(args, *find.Verified)
	}

	query := `
		SELECT id, tenant_id, intent_code, phrase, weight, verified, hit_count, embedding, created_ts, updated_ts
		FROM learned_expression
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY weight DESC, hit_count DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list learned expressions")
	}
	defer rows.Close()

	list := []*store.LearnedExpression{}
	for rows.Next() {
		expr, err := scanLearnedExpression(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, expr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchLearnedExpressionsByVector scans the tenant's expressions in
// process and ranks them by cosine similarity. SQLite has no vector index;
// this is acceptable at the row counts a single tenant accumulates.
func (d *DB) SearchLearnedExpressionsByVector(ctx context.Context, tenantID int64, vector []float32, limit int) ([]*store.LearnedExpressionWithScore, error) {
	list, err := d.ListLearnedExpressions(ctx, &store.FindLearnedExpression{TenantID: &tenantID})
	if err != nil {
		return nil, err
	}

	scored := make([]*store.LearnedExpressionWithScore, 0, len(list))
	for _, expr := range list {
		if len(expr.Embedding) == 0 {
			continue
		}
		scored = append(scored, &store.LearnedExpressionWithScore{
			Expression: expr,
			Score:      cosineSimilarity(vector, expr.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func scanLearnedExpression(scan func(dest ...any) error) (*store.LearnedExpression, error) {
	var expr store.LearnedExpression
	var embedding string
	if err := scan(
		&expr.ID,
		&expr.TenantID,
		&expr.IntentCode,
		&expr.Phrase,
		&expr.Weight,
		&expr.Verified,
		&expr.HitCount,
		&embedding,
		&expr.CreatedTs,
		&expr.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan learned expression")
	}
	expr.Embedding = unmarshalVector(embedding)
	return &expr, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
