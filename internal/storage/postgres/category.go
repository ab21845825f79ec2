package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
)

var _ discount.CategoryResolver = (*CategoryResolver)(nil)

// CategoryResolver resolves a purchasable's related category/entry ids from
// the relations table. Callers memoize per evaluation session; this type
// holds no cache of its own.
type CategoryResolver struct {
	pool *pgxpool.Pool
}

// NewCategoryResolver returns a CategoryResolver that uses the given pool.
func NewCategoryResolver(pool *pgxpool.Pool) *CategoryResolver {
	return &CategoryResolver{pool: pool}
}

const relatedIDsSQL = `SELECT category_id FROM purchasable_relations
	WHERE relation_type = $1 AND purchasable_id = $2`

// RelatedIDs returns the category/entry ids related to the purchasable for
// the given relationship direction.
func (r *CategoryResolver) RelatedIDs(ctx context.Context, rel discount.CategoryRelation, purchasableID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, relatedIDsSQL, string(rel), purchasableID)
	if err != nil {
		return nil, fmt.Errorf("resolving relations for purchasable %d: %w", purchasableID, err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning relations for purchasable %d: %w", purchasableID, err)
	}

	return ids, nil
}
