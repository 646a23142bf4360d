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
)

const getCouponByCodeSQL = `SELECT id, code, expire_time, disabled, allowed_product_ids,
		new_user_only, per_user_limit, total_limit, discount_type, discount_value, use_count
	FROM coupons WHERE code = $1`

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. It is
// read-only: use counts move exclusively inside the purchase transaction in
// OrderRepository.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its exact code.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		allowedIDs  []byte
		discountVal decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.ExpireTime, &c.Limit.Disabled, &allowedIDs,
		&c.Limit.NewUserOnly, &c.Limit.PerUserLimit, &c.Limit.TotalLimit,
		&c.Discount.Type, &discountVal, &c.UseCount,
	)
	if err != nil {
		return c, err
	}
	c.Discount.Value = discountVal

	if len(allowedIDs) > 0 {
		if err := json.Unmarshal(allowedIDs, &c.Limit.AllowedProductIDs); err != nil {
			return c, fmt.Errorf("decoding allowed products for coupon %q: %w", c.Code, err)
		}
	}
	return c, nil
}
