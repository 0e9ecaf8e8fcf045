//go:build integration

// Package testenv starts throwaway MySQL and Kafka containers for
// integration tests. Run with: go test -tags integration ./...
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CNRP/ecommerce-storefront-sub001/migrations"
)

const startTimeout = 3 * time.Minute

// MySQL starts MySQL 8, applies the migrations and returns a gorm handle.
func MySQL(t *testing.T) *gorm.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	c, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("storefront"),
		tcmysql.WithUsername("storefront"),
		tcmysql.WithPassword("storefront"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)

	sqlDB, err := migrations.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, migrations.Up(sqlDB))
	_ = sqlDB.Close()

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db
}

// Kafka starts a single-node broker and returns its bootstrap addresses.
func Kafka(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	c, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0", kafka.WithClusterID("storefront-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	return brokers
}

// SeedVariant inserts an active product with one variant and returns the
// variant id.
func SeedVariant(t *testing.T, db *gorm.DB, id, name, sku string, priceMinor int64, currency string) string {
	t.Helper()
	productID := id + "-p"
	require.NoError(t, db.Exec(
		`INSERT INTO products (id, name, slug, is_active) VALUES (?, ?, ?, 1)`,
		productID, name, sku,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO product_variants (id, product_id, sku, price_cents, currency, is_active) VALUES (?, ?, ?, ?, ?, 1)`,
		id, productID, sku, priceMinor, currency,
	).Error)
	return id
}
