package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores products in the products table.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const productColumns = `id, sku, name, category, metal, stones, gender, price_cents, description, in_stock, created_at`

// ListAvailable returns in-stock products ordered by id.
func (r *PostgresRepository) ListAvailable(ctx context.Context) ([]Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE in_stock = true
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate products: %w", err)
	}
	return out, nil
}

// GetByID fetches one product.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`
	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("catalog: select product: %w", err)
	}
	return p, nil
}

// Upsert inserts or replaces a product keyed by id.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stones := p.Stones
	if stones == nil {
		stones = []string{}
	}

	query := `
		INSERT INTO products (id, sku, name, category, metal, stones, gender, price_cents, description, in_stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			metal = EXCLUDED.metal,
			stones = EXCLUDED.stones,
			gender = EXCLUDED.gender,
			price_cents = EXCLUDED.price_cents,
			description = EXCLUDED.description,
			in_stock = EXCLUDED.in_stock,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query,
		p.ID,
		p.SKU,
		p.Name,
		p.Category,
		p.Metal,
		stones,
		p.Gender,
		p.PriceCents,
		p.Description,
		p.InStock,
		p.CreatedAt,
	); err != nil {
		return fmt.Errorf("catalog: upsert product: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Category,
		&p.Metal,
		&p.Stones,
		&p.Gender,
		&p.PriceCents,
		&p.Description,
		&p.InStock,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
