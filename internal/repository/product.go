package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/panel-commerce/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, type, price, stock, sale_count, limit_rules, content
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, type, price, stock, sale_count, limit_rules, content
		FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Limit rules are decoded from their JSONB column once per scan, so the
// checks downstream never re-parse them.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		price      decimal.Decimal
		limitRules []byte
		content    []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Type, &price, &p.Stock, &p.SaleCount, &limitRules, &content)
	if err != nil {
		return p, err
	}
	p.Price = price
	p.Content = content

	if len(limitRules) > 0 {
		if err := json.Unmarshal(limitRules, &p.Limit); err != nil {
			return p, fmt.Errorf("decoding limit rules for product %d: %w", p.ID, err)
		}
	}
	return p, nil
}
