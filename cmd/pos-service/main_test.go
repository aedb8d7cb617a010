package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/config"
	"github.com/matheusmosca/pos-transaction-engine/internal/events"
)

func memoryConfig(seed string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Backend: config.BackendMemory, SeedFile: seed},
		Catalog: config.CatalogConfig{Backend: config.BackendMemory},
		Sale:    config.SaleConfig{MinPrice: decimal.RequireFromString("0.01")},
	}
}

func TestInitBackend_MemoryWithSeed(t *testing.T) {
	seed := filepath.Join("..", "..", "configs", "catalog.yaml")

	be, err := initBackend(context.Background(), memoryConfig(seed), zap.NewNop())
	require.NoError(t, err)
	defer be.close()

	products, err := be.catalog.ListProducts(context.Background(), catalog.Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestInitBackend_BadSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("products:\n  - id: p-1\n    name: Free\n    prices:\n      - id: v\n        price: \"0\"\n"), 0o600))

	_, err := initBackend(context.Background(), memoryConfig(seed), zap.NewNop())

	assert.Error(t, err)
}

func TestInitBackend_HTTPCatalog(t *testing.T) {
	cfg := memoryConfig("")
	cfg.Catalog = config.CatalogConfig{Backend: config.BackendHTTP, URL: "http://catalog.local"}

	be, err := initBackend(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &catalog.HTTPAccessor{}, be.catalog)
}

func TestInitSnapshotStore_InProcess(t *testing.T) {
	store, closeFn, err := initSnapshotStore(context.Background(), memoryConfig(""), zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &cart.MemorySnapshotStore{}, store)
}

func TestInitPublisher(t *testing.T) {
	cfg := memoryConfig("")

	p, err := initPublisher(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, events.Noop{}, p)

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	p, err = initPublisher(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &events.KafkaPublisher{}, p)
	assert.NoError(t, p.Close())
}
