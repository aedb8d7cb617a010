package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
)

// CatalogRepository implementa catalog.Accessor usando PostgreSQL
type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository cria uma nova instância de CatalogRepository
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const productColumns = `
	p.id, p.name, COALESCE(p.category_id, ''), COALESCE(c.name, ''),
	p.stock, p.min_stock, p.is_active`

func scanProduct(row scanner) (*catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Stock, &p.MinStock, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProduct busca o produto com estoque e preços atuais
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	prices, err := r.loadPrices(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Prices = prices[p.ID]
	return p, nil
}

// buildProductsQuery monta a consulta de listagem a partir do filtro
func buildProductsQuery(f catalog.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("p.id = ANY($%d)", len(args)))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "p.is_active")
	}

	query := `SELECT ` + productColumns + ` FROM products p LEFT JOIN categories c ON c.id = p.category_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.name, p.id"
	return query, args
}

// ListProducts lista os produtos que passam pelo filtro
func (r *CatalogRepository) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	query, args := buildProductsQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var (
		products []catalog.Product
		ids      []string
	)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return []catalog.Product{}, nil
	}

	prices, err := r.loadPrices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Prices = prices[products[i].ID]
	}
	return products, nil
}

func (r *CatalogRepository) loadPrices(ctx context.Context, productIDs []string) (map[string][]catalog.PriceVariant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, label, price::text, is_default
		FROM product_prices
		WHERE product_id = ANY($1)
		ORDER BY product_id, sort_order, id
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]catalog.PriceVariant, len(productIDs))
	for rows.Next() {
		var (
			v     catalog.PriceVariant
			price string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &price, &v.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if v.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		out[v.ProductID] = append(out[v.ProductID], v)
	}
	return out, rows.Err()
}
