package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/order"

	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository { return &OrderRepository{db: db} }

type addressDoc struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	District   string `json:"district,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func encodeAddress(a *domain.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(addressDoc(*a))
}

func decodeAddress(raw []byte) (*domain.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc addressDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	a := domain.Address(doc)
	return &a, nil
}

const orderColumns = `id, user_id, idempotency_key, status, total, shipping_address, created_at, updated_at`

type orderRow struct {
	id, userID, status   string
	key                  *string
	total                int64
	addr                 []byte
	createdAt, updatedAt time.Time
}

func scanOrder(row pgx.Row) (*orderRow, error) {
	var r orderRow
	if err := row.Scan(&r.id, &r.userID, &r.key, &r.status, &r.total, &r.addr, &r.createdAt, &r.updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *orderRow) restore(lines []domain.Line) (*domain.Order, error) {
	addr, err := decodeAddress(r.addr)
	if err != nil {
		return nil, err
	}
	var key string
	if r.key != nil {
		key = *r.key
	}
	return domain.Restore(r.id, r.userID, key, domain.Status(r.status), lines, r.total, addr, r.createdAt, r.updatedAt), nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	addr, err := encodeAddress(o.ShippingAddr)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, o.ID, o.UserID, nullable(o.IdempotencyKey), string(o.Status), o.TotalPrice(), addr, o.CreatedAt, o.UpdatedAt); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, l := range o.Lines() {
			batch.Queue(`
				INSERT INTO order_lines (order_id, position, product_id, product_name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) lines(ctx context.Context, q querier, ids ...string) (map[string][]domain.Line, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Line, len(ids))
	for rows.Next() {
		var (
			orderID string
			l       domain.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

func (r *OrderRepository) one(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	row, err := scanOrder(r.db.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := r.lines(ctx, r.db.pool, row.id)
	if err != nil {
		return nil, err
	}
	return row.restore(lines[row.id])
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var (
		heads []*orderRow
		ids   []string
	)
	for rows.Next() {
		row, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		heads = append(heads, row)
		ids = append(ids, row.id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Order{}, nil
	}

	lines, err := r.lines(ctx, r.db.pool, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(heads))
	for _, h := range heads {
		o, err := h.restore(lines[h.id])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Transition locks the order row for the duration of fn. Only status and
// updated_at are written back; lines and totals are immutable.
func (r *OrderRepository) Transition(ctx context.Context, id string, fn domain.MutateFunc) (*domain.Order, error) {
	var result *domain.Order
	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		row, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		lines, err := r.lines(ctx, tx, id)
		if err != nil {
			return err
		}
		draft, err := row.restore(lines[id])
		if err != nil {
			return err
		}
		if err := fn(draft); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(draft.Status), draft.UpdatedAt,
		); err != nil {
			return err
		}
		result = draft
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
