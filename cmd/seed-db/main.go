// Command seed-db loads demo catalog data, promotions, a demo customer, and
// API keys into the database. It is idempotent: reruns upsert rather than
// duplicate.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brambleberry/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Thumbnail string          `json:"thumbnail"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "customer API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, adminKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	customerID, err := seedCustomer(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "seed customer")
	}

	if err := seedAPIKey(ctx, pool, "demo-customer", apiKey, pepper, customerID, []string{"orders"}); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, "demo-admin", adminKey, pepper, customerID, []string{"orders", "admin"}); err != nil {
			return errors.Wrap(err, "seed admin key")
		}
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, slug, price, stock, active, image_thumbnail)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	slug = EXCLUDED.slug,
	price = EXCLUDED.price,
	stock = EXCLUDED.stock,
	active = TRUE,
	image_thumbnail = EXCLUDED.image_thumbnail,
	updated_at = now()`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Slug, p.Price, p.Stock, p.Thumbnail,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertPromoSQL = `
INSERT INTO promo_codes (id, code, percent_off, amount_off, min_order_amount, expires_at, max_uses, active, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
ON CONFLICT (code) DO UPDATE SET
	percent_off = EXCLUDED.percent_off,
	amount_off = EXCLUDED.amount_off,
	min_order_amount = EXCLUDED.min_order_amount,
	expires_at = EXCLUDED.expires_at,
	max_uses = EXCLUDED.max_uses,
	active = TRUE,
	description = EXCLUDED.description`

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promotions")

	ten := decimal.NewFromInt(10)
	five := decimal.NewFromInt(5)
	twenty := decimal.NewFromInt(20)
	half := decimal.NewFromInt(50)
	nextMonth := time.Now().AddDate(0, 1, 0)
	hundred := 100

	promos := []struct {
		code        string
		percentOff  *decimal.Decimal
		amountOff   *decimal.Decimal
		minAmount   *decimal.Decimal
		expiresAt   *time.Time
		maxUses     *int
		description string
	}{
		{code: "SAVE10", percentOff: &ten, description: "10% off the entire order"},
		{code: "WELCOME5", amountOff: &five, minAmount: &twenty, description: "5.00 off orders of 20.00 or more"},
		{code: "FLASH50", percentOff: &half, expiresAt: &nextMonth, maxUses: &hundred, description: "50% off, first 100 orders"},
	}

	for _, p := range promos {
		if _, err := pool.Exec(ctx, upsertPromoSQL,
			uuid.NewString(), p.code, p.percentOff, p.amountOff, p.minAmount, p.expiresAt, p.maxUses, p.description,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.code)
		}

		slog.Info("upserted promotion", slog.String("code", p.code), slog.String("description", p.description))
	}

	return nil
}

const upsertCustomerSQL = `
INSERT INTO customers (id, email, name, loyalty_balance)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

func seedCustomer(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	slog.Info("seeding demo customer")

	var id string
	err := pool.QueryRow(ctx, upsertCustomerSQL,
		uuid.NewString(), "demo@example.com", "Demo Customer", 100,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, "upsert demo customer")
	}

	slog.Info("upserted customer", slog.String("id", id), slog.String("email", "demo@example.com"))

	return id, nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, customer_id, name, scopes, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (id) DO UPDATE SET
	key_hash = EXCLUDED.key_hash,
	customer_id = EXCLUDED.customer_id,
	scopes = EXCLUDED.scopes,
	active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, id, key, pepper, customerID string, scopes []string) error {
	slog.Info("seeding API key", slog.String("id", id))

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, id, keyHash, customerID, id, scopes); err != nil {
		return errors.Wrapf(err, "upsert API key %s", id)
	}

	return nil
}
