package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"

	"github.com/jackc/pgx/v5"
)

// ProductRepository is the catalog reader and the stock ledger.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository { return &ProductRepository{db: db} }

// Seed inserts products that do not exist yet; existing stock is left alone.
func (r *ProductRepository) Seed(ctx context.Context, products ...catalog.Product) error {
	for _, p := range products {
		_, err := r.db.pool.Exec(ctx, `
			INSERT INTO products (id, name, unit_price, stock)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Name, p.UnitPrice, p.Stock)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, name, unit_price, stock FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*catalog.Product, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id, name, unit_price, stock FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Reserve decrements in a single conditional UPDATE, so the check and the
// write are one atomic statement.
func (r *ProductRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	if err := dominv.ValidateQuantity(quantity); err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", productID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = r.db.pool.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return dominv.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reserve %s: %w", productID, err)
	}
	return &dominv.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   quantity,
		Available:   stock,
	}
}

func (r *ProductRepository) Restock(ctx context.Context, productID string, quantity int) error {
	if err := dominv.ValidateQuantity(quantity); err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, quantity)
	if err != nil {
		return fmt.Errorf("restock %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return dominv.ErrNotFound
	}
	return nil
}
