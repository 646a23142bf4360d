// Command seed-db prepares a development database: it runs migrations and
// upserts sample products, coupons, and a test user with a known API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/panel-commerce/internal/repository"
)

type productSeed struct {
	name       string
	typ        string
	price      decimal.Decimal
	stock      int32
	limitRules string
	content    string
}

type couponSeed struct {
	code          string
	expireTime    int64
	discountType  string
	discountValue decimal.Decimal
	newUserOnly   bool
	perUserLimit  int32
	totalLimit    int32
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PANEL_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PANEL_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PANEL_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PANEL_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PANEL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedUser(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed user")
	}

	return nil
}

// Products have no natural key, so the seed only inserts names it has not
// inserted before.
const upsertProductSQL = `
INSERT INTO products (name, type, price, stock, limit_rules, content)
SELECT $1, $2, $3, $4, $5, $6
WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	products := []productSeed{
		{
			name:       "Monthly Access",
			typ:        "time_limited",
			price:      decimal.NewFromInt(10),
			stock:      -1,
			limitRules: `{}`,
			content:    `{"duration_days": 30, "traffic_gb": 100, "class": 1}`,
		},
		{
			name:       "Quarterly Access",
			typ:        "time_limited",
			price:      decimal.NewFromInt(27),
			stock:      -1,
			limitRules: `{}`,
			content:    `{"duration_days": 90, "traffic_gb": 100, "class": 1}`,
		},
		{
			name:       "Premium Yearly",
			typ:        "time_limited",
			price:      decimal.NewFromInt(96),
			stock:      50,
			limitRules: `{"class_required": 1}`,
			content:    `{"duration_days": 365, "traffic_gb": 500, "class": 2}`,
		},
		{
			name:       "Starter Pack",
			typ:        "time_limited",
			price:      decimal.NewFromInt(1),
			stock:      -1,
			limitRules: `{"new_user_required": true}`,
			content:    `{"duration_days": 7, "traffic_gb": 10, "class": 1}`,
		},
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.name, p.typ, p.price, p.stock, p.limitRules, p.content,
		); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.name)
		}
		slog.Info("upserted product", slog.String("name", p.name))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (code, expire_time, new_user_only, per_user_limit, total_limit, discount_type, discount_value)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE SET
    expire_time    = EXCLUDED.expire_time,
    new_user_only  = EXCLUDED.new_user_only,
    per_user_limit = EXCLUDED.per_user_limit,
    total_limit    = EXCLUDED.total_limit,
    discount_type  = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	coupons := []couponSeed{
		{
			code:          "WELCOME20",
			discountType:  "percentage",
			discountValue: decimal.NewFromInt(20),
			newUserOnly:   true,
			perUserLimit:  1,
		},
		{
			code:          "SAVE5",
			discountType:  "fixed",
			discountValue: decimal.NewFromInt(5),
			perUserLimit:  3,
			totalLimit:    1000,
		},
		{
			code:          "LAUNCH50",
			discountType:  "percentage",
			discountValue: decimal.NewFromInt(50),
			totalLimit:    100,
		},
	}

	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.expireTime, c.newUserOnly, c.perUserLimit, c.totalLimit,
			c.discountType, c.discountValue,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		slog.Info("upserted coupon", slog.String("code", c.code))
	}

	return nil
}

const upsertUserSQL = `
INSERT INTO users (name, class, node_group, api_key_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (api_key_hash) DO UPDATE SET name = EXCLUDED.name`

func seedUser(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding test user")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertUserSQL, "Test User", 0, 0, keyHash); err != nil {
		return errors.Wrap(err, "upsert test user")
	}

	slog.Info("upserted test user", slog.String("name", "Test User"))
	return nil
}
