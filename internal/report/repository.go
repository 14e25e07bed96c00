package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const topProductsQuery = `
	SELECT p.product_id, p.name, SUM(sod.order_qty) AS total_sold
	FROM sales_order_detail sod
	INNER JOIN product p ON sod.product_id = p.product_id
	GROUP BY p.product_id, p.name
	ORDER BY total_sold DESC
	LIMIT $1`

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads sales aggregates from Postgres.
type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// TopProducts returns the limit best-selling products, most sold first.
func (r *Repository) TopProducts(ctx context.Context, limit int) ([]ProductSale, error) {
	rows, err := r.db.Query(ctx, topProductsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	var list []ProductSale
	for rows.Next() {
		var p ProductSale
		if err := rows.Scan(&p.ProductID, &p.Name, &p.TotalSold); err != nil {
			return nil, fmt.Errorf("scan top products: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read top products: %w", err)
	}
	return list, nil
}
