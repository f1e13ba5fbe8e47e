package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"

	"github.com/jackc/pgx/v5"
)

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository { return &PaymentRepository{db: db} }

const paymentColumns = `id, order_id, user_id, amount, currency, method, status, transaction_ref,
	client_secret, failure_reason, paid_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p              domain.Payment
		method, status string
		ref            *string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Currency, &method, &status, &ref,
		&p.ClientSecret, &p.FailureReason, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Method = domain.Method(method)
	p.Status = domain.Status(status)
	if ref != nil {
		p.TransactionRef = *ref
	}
	return &p, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.OrderID, p.UserID, p.Amount, p.Currency, string(p.Method), string(p.Status), nullable(p.TransactionRef),
		p.ClientSecret, p.FailureReason, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}

func (r *PaymentRepository) one(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	p, err := scanPayment(r.db.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by %s: %w", where, err)
	}
	return p, nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.one(ctx, "id", id)
}

func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.one(ctx, "order_id", orderID)
}

func (r *PaymentRepository) GetByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	if ref == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, "transaction_ref", ref)
}

func (r *PaymentRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Transition locks the payment row; concurrent signals for one payment queue
// behind each other and each sees the status the previous one committed.
func (r *PaymentRepository) Transition(ctx context.Context, id string, fn domain.MutateFunc) (*domain.Payment, error) {
	var result *domain.Payment
	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		draft, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(draft); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = $2, failure_reason = $3, paid_at = $4, updated_at = $5
			WHERE id = $1
		`, id, string(draft.Status), draft.FailureReason, draft.PaidAt, draft.UpdatedAt); err != nil {
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
