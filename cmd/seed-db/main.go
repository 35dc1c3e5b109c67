package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
	"github.com/xenking/zaya-storefront/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	OldPrice decimal.Decimal `json:"oldPrice"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Sizes    []string        `json:"sizes"`
}

type options struct {
	databaseURL  string
	productsFile string
	adminID      string
	adminEmail   string
	adminToken   string
	tokenPepper  string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped (.gz)")
	flag.StringVar(&opts.adminID, "admin-id", "admin", "user id of the seeded admin")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@zaya.com", "email of the seeded admin")
	flag.StringVar(&opts.adminToken, "admin-token", "", "access token of the seeded admin (or ZAYA_SEED_ADMIN_TOKEN env)")
	flag.StringVar(&opts.tokenPepper, "token-pepper", "", "HMAC pepper for token hashing (or ZAYA_TOKEN_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.adminToken == "" {
		opts.adminToken = os.Getenv("ZAYA_SEED_ADMIN_TOKEN")
	}
	if opts.tokenPepper == "" {
		opts.tokenPepper = os.Getenv("ZAYA_TOKEN_PEPPER")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if opts.adminToken == "" {
		lg.Info("No admin token given, skipping admin user")
		return nil
	}
	admin := auth.Identity{
		UserID:      opts.adminID,
		Email:       opts.adminEmail,
		DisplayName: "Admin",
		IsAdmin:     true,
		TokenHash:   auth.HashToken([]byte(opts.tokenPepper), opts.adminToken),
	}
	if err := postgres.NewUserRepository(pool).Upsert(ctx, admin); err != nil {
		return errors.Wrap(err, "seed admin")
	}
	lg.Info("Upserted admin", zap.String("id", admin.UserID), zap.String("email", admin.Email))
	return nil
}

// readProducts decodes a JSON product list, gunzipping files ending in .gz.
func readProducts(path string) ([]productJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var products []productJSON
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return products, nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string) error {
	lg.Info("Reading products file", zap.String("path", path))
	products, err := readProducts(path)
	if err != nil {
		return err
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	for _, p := range products {
		if p.ID == "" || p.Price.IsNegative() {
			return errors.Errorf("invalid product %q", p.ID)
		}
		if err := repo.Upsert(ctx, catalog.Product{
			ID:            p.ID,
			Name:          p.Name,
			Price:         p.Price,
			OriginalPrice: p.OldPrice,
			Category:      p.Category,
			Image:         p.Image,
			Sizes:         p.Sizes,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}
