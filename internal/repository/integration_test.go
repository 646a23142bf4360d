//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/panel-commerce/internal/domain/coupon"
	"github.com/xenking/panel-commerce/internal/domain/order"
	"github.com/xenking/panel-commerce/internal/domain/product"
)

func setupTestDB(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("panel_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))

	return &testDB{pool: pool}
}

// testDB bundles the pool with fixture helpers.
type testDB struct {
	pool *pgxpool.Pool
}

func TestProductRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewProductRepository(db.pool)

	id := db.insertProduct(t, "Monthly Access", decimal.NewFromInt(10), 5, `{"class_required": 1}`)

	t.Run("get by id", func(t *testing.T) {
		p, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Monthly Access", p.Name)
		assert.True(t, p.Price.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, int32(5), p.Stock)
		assert.Equal(t, 1, p.Limit.ClassRequired)
	})

	t.Run("list", func(t *testing.T) {
		products, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, id, products[0].ID)
	})

	t.Run("missing product", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, product.ErrNotFound)
	})
}

func TestCouponRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewCouponRepository(db.pool)

	db.insertCoupon(t, couponFixture{
		code:          "SAVE20",
		discountType:  "percentage",
		discountValue: decimal.NewFromInt(20),
		perUserLimit:  3,
		totalLimit:    100,
		allowedIDs:    `["1","2"]`,
	})

	t.Run("find by code", func(t *testing.T) {
		c, err := repo.FindByCode(ctx, "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, "SAVE20", c.Code)
		assert.Equal(t, coupon.DiscountPercentage, c.Discount.Type)
		assert.True(t, c.Discount.Value.Equal(decimal.NewFromInt(20)))
		assert.Equal(t, []string{"1", "2"}, c.Limit.AllowedProductIDs)
		assert.Equal(t, 3, c.Limit.PerUserLimit)
		assert.Equal(t, 100, c.Limit.TotalLimit)
	})

	t.Run("case sensitive lookup", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "save20")
		assert.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, coupon.ErrNotFound)
	})
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db.pool)

	db.insertUser(t, "Alice", "hash-alice", false)

	u, err := repo.FindByKeyHash(ctx, "hash-alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.False(t, u.IsShadowBanned)

	_, err = repo.FindByKeyHash(ctx, "hash-unknown")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestOrderRepository_PurchaseRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	userID := db.insertUser(t, "Bob", "hash-bob", false)
	productID := db.insertProduct(t, "Quarterly Access", decimal.NewFromInt(27), 10, `{}`)

	now := time.Now().Unix()
	o := &order.Order{
		UserID:      userID,
		ProductID:   productID,
		ProductType: "time_limited",
		ProductName: "Quarterly Access",
		Price:       decimal.NewFromInt(27),
		Status:      order.StatusPendingPayment,
		CreateTime:  now,
		UpdateTime:  now,
	}
	inv := &order.Invoice{
		UserID:     userID,
		Items:      []order.LineItem{{Name: "Quarterly Access", Price: decimal.NewFromInt(27)}},
		Price:      decimal.NewFromInt(27),
		Status:     order.InvoiceUnpaid,
		Type:       "product",
		CreateTime: now,
		UpdateTime: now,
	}

	invoiceID, err := repo.CreatePurchase(ctx, o, inv, order.PurchaseEffects{
		ProductID:      productID,
		DecrementStock: true,
	})
	require.NoError(t, err)
	require.NotZero(t, invoiceID)
	require.NotZero(t, o.ID)

	got, err := repo.GetByID(ctx, userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPendingPayment, got.Status)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(27)))

	gotInv, err := repo.GetInvoiceByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, invoiceID, gotInv.ID)
	assert.Equal(t, order.InvoiceUnpaid, gotInv.Status)
	assert.Equal(t, int64(0), gotInv.PayTime)
	require.Len(t, gotInv.Items, 1)
	assert.Equal(t, "Quarterly Access", gotInv.Items[0].Name)

	// Stock moved down, sale count up.
	stock, sales := db.productCounters(t, productID)
	assert.Equal(t, int32(9), stock)
	assert.Equal(t, int64(1), sales)

	n, err := repo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Wrong user cannot see the order.
	_, err = repo.GetByID(ctx, userID+1, o.ID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderRepository_ConcurrentLastUnit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	userID := db.insertUser(t, "Carol", "hash-carol", false)
	productID := db.insertProduct(t, "Limited Drop", decimal.NewFromInt(5), 1, `{}`)

	const buyers = 8
	results := make([]error, buyers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range buyers {
		g.Go(func() error {
			now := time.Now().Unix()
			o := &order.Order{
				UserID:      userID,
				ProductID:   productID,
				ProductType: "time_limited",
				ProductName: "Limited Drop",
				Price:       decimal.NewFromInt(5),
				Status:      order.StatusPendingPayment,
				CreateTime:  now,
				UpdateTime:  now,
			}
			inv := &order.Invoice{
				UserID:     userID,
				Items:      []order.LineItem{{Name: "Limited Drop", Price: decimal.NewFromInt(5)}},
				Price:      decimal.NewFromInt(5),
				Status:     order.InvoiceUnpaid,
				Type:       "product",
				CreateTime: now,
				UpdateTime: now,
			}
			_, results[i] = repo.CreatePurchase(gctx, o, inv, order.PurchaseEffects{
				ProductID:      productID,
				DecrementStock: true,
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, order.ErrUnavailable)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one buyer gets the last unit")
	assert.Equal(t, buyers-1, losses)

	stock, sales := db.productCounters(t, productID)
	assert.Equal(t, int32(0), stock)
	assert.Equal(t, int64(1), sales)

	// Losing transactions left no orders behind.
	n, err := repo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOrderRepository_ConcurrentCouponTotalLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	productID := db.insertProduct(t, "Monthly Access", decimal.NewFromInt(10), -1, `{}`)
	db.insertCoupon(t, couponFixture{
		code:          "LIMITED3",
		discountType:  "fixed",
		discountValue: decimal.NewFromInt(2),
		totalLimit:    3,
	})

	const buyers = 8
	results := make([]error, buyers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range buyers {
		// Each buyer is a distinct user so per-user limits stay out of the way.
		userID := db.insertUser(t, "user", "hash-limit-"+string(rune('a'+i)), false)
		g.Go(func() error {
			now := time.Now().Unix()
			o := &order.Order{
				UserID:      userID,
				ProductID:   productID,
				ProductType: "time_limited",
				ProductName: "Monthly Access",
				CouponCode:  "LIMITED3",
				Price:       decimal.NewFromInt(8),
				Status:      order.StatusPendingPayment,
				CreateTime:  now,
				UpdateTime:  now,
			}
			inv := &order.Invoice{
				UserID: userID,
				Items: []order.LineItem{
					{Name: "Monthly Access", Price: decimal.NewFromInt(10)},
					{Name: "Coupon LIMITED3", Price: decimal.NewFromInt(-2)},
				},
				Price:      decimal.NewFromInt(8),
				Status:     order.InvoiceUnpaid,
				Type:       "product",
				CreateTime: now,
				UpdateTime: now,
			}
			_, results[i] = repo.CreatePurchase(gctx, o, inv, order.PurchaseEffects{
				ProductID:  productID,
				CouponCode: "LIMITED3",
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, coupon.ErrTotalLimit)
			losses++
		}
	}
	assert.Equal(t, 3, wins, "total limit caps winners at exactly 3")
	assert.Equal(t, buyers-3, losses)

	assert.Equal(t, int64(3), db.couponUseCount(t, "LIMITED3"))
}

func TestOrderRepository_ConcurrentPerUserLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	userID := db.insertUser(t, "Frank", "hash-frank", false)
	productID := db.insertProduct(t, "Monthly Access", decimal.NewFromInt(10), -1, `{}`)
	db.insertCoupon(t, couponFixture{
		code:          "ONEPERUSER",
		discountType:  "percentage",
		discountValue: decimal.NewFromInt(10),
		perUserLimit:  1,
	})

	// All buyers are the same user, all validated before any commit, so the
	// per-user limit holds only if the recheck inside the transaction sees
	// concurrent committed orders.
	const attempts = 8
	results := make([]error, attempts)

	g, gctx := errgroup.WithContext(ctx)
	for i := range attempts {
		g.Go(func() error {
			now := time.Now().Unix()
			o := &order.Order{
				UserID:      userID,
				ProductID:   productID,
				ProductType: "time_limited",
				ProductName: "Monthly Access",
				CouponCode:  "ONEPERUSER",
				Price:       decimal.NewFromInt(9),
				Status:      order.StatusPendingPayment,
				CreateTime:  now,
				UpdateTime:  now,
			}
			inv := &order.Invoice{
				UserID: userID,
				Items: []order.LineItem{
					{Name: "Monthly Access", Price: decimal.NewFromInt(10)},
					{Name: "Coupon ONEPERUSER", Price: decimal.NewFromInt(-1)},
				},
				Price:      decimal.NewFromInt(9),
				Status:     order.InvoiceUnpaid,
				Type:       "product",
				CreateTime: now,
				UpdateTime: now,
			}
			_, results[i] = repo.CreatePurchase(gctx, o, inv, order.PurchaseEffects{
				ProductID:          productID,
				CouponCode:         "ONEPERUSER",
				CouponPerUserLimit: 1,
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, coupon.ErrPerUserLimit)
			losses++
		}
	}
	assert.Equal(t, 1, wins, "the per-user limit admits exactly one purchase")
	assert.Equal(t, attempts-1, losses)

	// Rejected transactions rolled their use_count increment back.
	assert.Equal(t, int64(1), db.couponUseCount(t, "ONEPERUSER"))

	n, err := repo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOrderRepository_PerUserLimitRecheck(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	userID := db.insertUser(t, "Dave", "hash-dave", false)
	productID := db.insertProduct(t, "Monthly Access", decimal.NewFromInt(10), -1, `{}`)
	db.insertCoupon(t, couponFixture{
		code:          "ONCE",
		discountType:  "percentage",
		discountValue: decimal.NewFromInt(10),
		perUserLimit:  1,
	})

	buy := func() error {
		now := time.Now().Unix()
		o := &order.Order{
			UserID:      userID,
			ProductID:   productID,
			ProductType: "time_limited",
			ProductName: "Monthly Access",
			CouponCode:  "ONCE",
			Price:       decimal.NewFromInt(9),
			Status:      order.StatusPendingPayment,
			CreateTime:  now,
			UpdateTime:  now,
		}
		inv := &order.Invoice{
			UserID:     userID,
			Items:      []order.LineItem{{Name: "Monthly Access", Price: decimal.NewFromInt(10)}},
			Price:      decimal.NewFromInt(9),
			Status:     order.InvoiceUnpaid,
			Type:       "product",
			CreateTime: now,
			UpdateTime: now,
		}
		_, err := repo.CreatePurchase(ctx, o, inv, order.PurchaseEffects{
			ProductID:          productID,
			CouponCode:         "ONCE",
			CouponPerUserLimit: 1,
		})
		return err
	}

	require.NoError(t, buy())
	assert.ErrorIs(t, buy(), coupon.ErrPerUserLimit)

	// The rejected purchase wrote nothing.
	n, err := repo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), db.couponUseCount(t, "ONCE"))
}

func TestOrderRepository_Topup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db.pool)

	userID := db.insertUser(t, "Eve", "hash-eve", false)

	now := time.Now().Unix()
	o := &order.Order{
		UserID:         userID,
		ProductType:    "topup",
		ProductName:    "Balance top-up",
		ProductContent: []byte(`{"amount":"25.00"}`),
		Price:          decimal.NewFromInt(25),
		Status:         order.StatusPendingPayment,
		CreateTime:     now,
		UpdateTime:     now,
	}
	inv := &order.Invoice{
		UserID:     userID,
		Items:      []order.LineItem{{Name: "Balance top-up", Price: decimal.NewFromInt(25)}},
		Price:      decimal.NewFromInt(25),
		Status:     order.InvoiceUnpaid,
		Type:       "topup",
		CreateTime: now,
		UpdateTime: now,
	}

	invoiceID, err := repo.CreateTopup(ctx, o, inv)
	require.NoError(t, err)

	gotInv, err := repo.GetInvoiceByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, invoiceID, gotInv.ID)
	assert.Equal(t, "topup", gotInv.Type)
	assert.True(t, gotInv.Price.Equal(decimal.NewFromInt(25)))
}

type couponFixture struct {
	code          string
	discountType  string
	discountValue decimal.Decimal
	expireTime    int64
	disabled      bool
	newUserOnly   bool
	perUserLimit  int32
	totalLimit    int32
	allowedIDs    string
}

func (db *testDB) insertUser(t *testing.T, name, keyHash string, shadowBanned bool) int64 {
	t.Helper()
	var id int64
	err := db.pool.QueryRow(context.Background(),
		`INSERT INTO users (name, is_shadow_banned, api_key_hash) VALUES ($1, $2, $3) RETURNING id`,
		name, shadowBanned, keyHash,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func (db *testDB) insertProduct(t *testing.T, name string, price decimal.Decimal, stock int32, limitRules string) int64 {
	t.Helper()
	var id int64
	err := db.pool.QueryRow(context.Background(),
		`INSERT INTO products (name, type, price, stock, limit_rules) VALUES ($1, 'time_limited', $2, $3, $4) RETURNING id`,
		name, price, stock, limitRules,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func (db *testDB) insertCoupon(t *testing.T, f couponFixture) {
	t.Helper()
	allowed := f.allowedIDs
	if allowed == "" {
		allowed = `[]`
	}
	_, err := db.pool.Exec(context.Background(),
		`INSERT INTO coupons (code, expire_time, disabled, allowed_product_ids, new_user_only,
			per_user_limit, total_limit, discount_type, discount_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.code, f.expireTime, f.disabled, allowed, f.newUserOnly,
		f.perUserLimit, f.totalLimit, f.discountType, f.discountValue,
	)
	require.NoError(t, err)
}

func (db *testDB) productCounters(t *testing.T, id int64) (stock int32, sales int64) {
	t.Helper()
	err := db.pool.QueryRow(context.Background(),
		`SELECT stock, sale_count FROM products WHERE id = $1`, id,
	).Scan(&stock, &sales)
	require.NoError(t, err)
	return stock, sales
}

func (db *testDB) couponUseCount(t *testing.T, code string) int64 {
	t.Helper()
	var n int64
	err := db.pool.QueryRow(context.Background(),
		`SELECT use_count FROM coupons WHERE code = $1`, code,
	).Scan(&n)
	require.NoError(t, err)
	return n
}
