package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/panel-commerce/internal/domain/coupon"
	"github.com/xenking/panel-commerce/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, product_id, product_type, product_name,
			product_content, coupon_code, price, status, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	insertInvoiceSQL = `INSERT INTO invoices (user_id, order_id, content, price, status, type,
			create_time, update_time, pay_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	// The stock condition lives in the statement itself so the database, not
	// the application, serializes concurrent purchases of the last unit.
	// Zero rows affected means the race was lost (or the product vanished).
	decrementStockSQL = `UPDATE products SET stock = stock - 1, sale_count = sale_count + 1
		WHERE id = $1 AND stock > 0`

	incrementSalesSQL = `UPDATE products SET sale_count = sale_count + 1 WHERE id = $1`

	// Guarded increment: zero rows affected means the total limit was hit by
	// a concurrent purchase after validation read the counter.
	incrementCouponUseSQL = `UPDATE coupons SET use_count = use_count + 1
		WHERE code = $1 AND (total_limit = 0 OR use_count < total_limit)`

	listOrdersByUserSQL = `SELECT id, user_id, product_id, product_type, product_name,
			product_content, coupon_code, price, status, create_time, update_time
		FROM orders WHERE user_id = $1 ORDER BY id DESC`

	getOrderByIDSQL = `SELECT id, user_id, product_id, product_type, product_name,
			product_content, coupon_code, price, status, create_time, update_time
		FROM orders WHERE user_id = $1 AND id = $2`

	getInvoiceByOrderSQL = `SELECT id, user_id, order_id, content, price, status, type,
			create_time, update_time, pay_time
		FROM invoices WHERE order_id = $1`

	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	countOrdersByUserCouponSQL = `SELECT count(*) FROM orders WHERE user_id = $1 AND coupon_code = $2`
)

var _ order.Repository = (*OrderRepository)(nil)
var _ coupon.UsageCounter = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreatePurchase commits the order, its invoice, and every counter mutation
// in a single transaction. On success it fills in o.ID, inv.ID and
// inv.OrderID and returns the invoice ID. On any failure the transaction is
// rolled back whole; no partial writes are ever visible to readers.
func (r *OrderRepository) CreatePurchase(ctx context.Context, o *order.Order, inv *order.Invoice, eff order.PurchaseEffects) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning purchase transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if eff.CouponCode != "" {
		// The guarded increment comes first: it takes the coupon row lock,
		// so purchases contending on the same code serialize here and the
		// per-user count below sees every order committed by an earlier
		// holder of the lock. A later failure rolls the increment back.
		ct, err := tx.Exec(ctx, incrementCouponUseSQL, eff.CouponCode)
		if err != nil {
			return 0, fmt.Errorf("incrementing uses for coupon %q: %w", eff.CouponCode, err)
		}
		if ct.RowsAffected() == 0 {
			return 0, coupon.ErrTotalLimit
		}

		// Re-check the per-user limit against committed orders: the
		// validation pass read it outside the transaction and could have
		// raced another purchase by the same user.
		if eff.CouponPerUserLimit > 0 {
			var used int64
			if err := tx.QueryRow(ctx, countOrdersByUserCouponSQL, o.UserID, eff.CouponCode).Scan(&used); err != nil {
				return 0, fmt.Errorf("rechecking per-user coupon uses: %w", err)
			}
			if used >= int64(eff.CouponPerUserLimit) {
				return 0, coupon.ErrPerUserLimit
			}
		}
	}

	if err := tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.ProductID, o.ProductType, o.ProductName, rawOrEmptyObject(o.ProductContent),
		o.CouponCode, o.Price, string(o.Status), o.CreateTime, o.UpdateTime,
	).Scan(&o.ID); err != nil {
		return 0, fmt.Errorf("inserting order: %w", err)
	}

	inv.OrderID = o.ID
	invoiceID, err := insertInvoice(ctx, tx, inv)
	if err != nil {
		return 0, err
	}

	if eff.DecrementStock {
		ct, err := tx.Exec(ctx, decrementStockSQL, eff.ProductID)
		if err != nil {
			return 0, fmt.Errorf("decrementing stock for product %d: %w", eff.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			return 0, order.ErrUnavailable
		}
	} else {
		if _, err := tx.Exec(ctx, incrementSalesSQL, eff.ProductID); err != nil {
			return 0, fmt.Errorf("incrementing sale count for product %d: %w", eff.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing purchase: %w", err)
	}
	return invoiceID, nil
}

// CreateTopup commits the top-up order and its invoice in one transaction
// and returns the invoice ID. Top-ups touch no counters.
func (r *OrderRepository) CreateTopup(ctx context.Context, o *order.Order, inv *order.Invoice) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning topup transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.ProductID, o.ProductType, o.ProductName, rawOrEmptyObject(o.ProductContent),
		o.CouponCode, o.Price, string(o.Status), o.CreateTime, o.UpdateTime,
	).Scan(&o.ID); err != nil {
		return 0, fmt.Errorf("inserting topup order: %w", err)
	}

	inv.OrderID = o.ID
	invoiceID, err := insertInvoice(ctx, tx, inv)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing topup: %w", err)
	}
	return invoiceID, nil
}

func insertInvoice(ctx context.Context, tx pgx.Tx, inv *order.Invoice) (int64, error) {
	content, err := json.Marshal(inv.Items)
	if err != nil {
		return 0, fmt.Errorf("marshaling invoice items: %w", err)
	}

	if err := tx.QueryRow(ctx, insertInvoiceSQL,
		inv.UserID, inv.OrderID, content, inv.Price, string(inv.Status), inv.Type,
		inv.CreateTime, inv.UpdateTime, inv.PayTime,
	).Scan(&inv.ID); err != nil {
		return 0, fmt.Errorf("inserting invoice for order %d: %w", inv.OrderID, err)
	}
	return inv.ID, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// GetByID returns the user's order, or order.ErrOrderNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, userID, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// GetInvoiceByOrderID returns the invoice created with the given order.
func (r *OrderRepository) GetInvoiceByOrderID(ctx context.Context, orderID int64) (*order.Invoice, error) {
	rows, err := r.pool.Query(ctx, getInvoiceByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice for order %d: %w", orderID, err)
	}

	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting invoice for order %d: %w", orderID, err)
	}
	return &inv, nil
}

// CountByUser counts the user's orders across all statuses. Unpaid and
// abandoned orders count too.
func (r *OrderRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders for user %d: %w", userID, err)
	}
	return n, nil
}

// CountByUserAndCoupon counts the user's orders carrying the given code.
func (r *OrderRepository) CountByUserAndCoupon(ctx context.Context, userID int64, code string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersByUserCouponSQL, userID, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting coupon uses for user %d: %w", userID, err)
	}
	return n, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		content []byte
		price   decimal.Decimal
		status  string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.ProductType, &o.ProductName,
		&content, &o.CouponCode, &price, &status, &o.CreateTime, &o.UpdateTime)
	o.ProductContent = content
	o.Price = price
	o.Status = order.Status(status)
	return o, err
}

func scanInvoice(row pgx.CollectableRow) (order.Invoice, error) {
	var (
		inv     order.Invoice
		content []byte
		price   decimal.Decimal
		status  string
	)
	err := row.Scan(&inv.ID, &inv.UserID, &inv.OrderID, &content, &price, &status,
		&inv.Type, &inv.CreateTime, &inv.UpdateTime, &inv.PayTime)
	if err != nil {
		return inv, err
	}
	inv.Price = price
	inv.Status = order.InvoiceStatus(status)

	if len(content) > 0 {
		if err := json.Unmarshal(content, &inv.Items); err != nil {
			return inv, fmt.Errorf("decoding invoice %d items: %w", inv.ID, err)
		}
	}
	return inv, nil
}

// rawOrEmptyObject substitutes an empty JSON object for nil payloads so the
// JSONB column never sees a SQL NULL.
func rawOrEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
