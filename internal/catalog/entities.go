package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("price variant not found")
	ErrInvalidPriceID  = errors.New("invalid price variant id")
)

// KeySeparator separa produto e variante na chave textual da linha do carrinho
const KeySeparator = "_"

// ValidatePriceID rejeita IDs vazios ou que contenham KeySeparator
func ValidatePriceID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, KeySeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidPriceID, id)
	}
	return nil
}

// DefaultLowStockThreshold é o limite usado quando o produto não define MinStock
const DefaultLowStockThreshold = 10

// PriceVariant representa um preço de um produto (ex.: "ซองละ", "แพ็คละ")
type PriceVariant struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Label     string          `json:"label"`
	Price     decimal.Decimal `json:"price"`
	IsDefault bool            `json:"is_default"`
}

// Product representa um produto do catálogo com seu estoque atual
type Product struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	CategoryID   string         `json:"category_id,omitempty"`
	CategoryName string         `json:"category_name,omitempty"`
	Stock        int            `json:"stock"`
	MinStock     int            `json:"min_stock"`
	IsActive     bool           `json:"is_active"`
	Prices       []PriceVariant `json:"prices"`
}

// IsLowStock reports whether stock is at or below the product's minimum.
func (p *Product) IsLowStock() bool {
	return p.IsLowStockAt(DefaultLowStockThreshold)
}

// IsLowStockAt usa fallback quando o produto não define MinStock
func (p *Product) IsLowStockAt(fallback int) bool {
	limit := p.MinStock
	if limit <= 0 {
		limit = fallback
	}
	return p.Stock <= limit
}

// DefaultPrice retorna a variante padrão, ou a primeira quando nenhuma é marcada
func (p *Product) DefaultPrice() (PriceVariant, bool) {
	if len(p.Prices) == 0 {
		return PriceVariant{}, false
	}
	for _, v := range p.Prices {
		if v.IsDefault {
			return v, true
		}
	}
	return p.Prices[0], true
}

// Variant busca uma variante de preço pelo ID
func (p *Product) Variant(priceID string) (PriceVariant, error) {
	for _, v := range p.Prices {
		if v.ID == priceID {
			return v, nil
		}
	}
	return PriceVariant{}, ErrVariantNotFound
}

// Filter restringe a listagem de produtos
type Filter struct {
	IDs        []string
	CategoryID string
	ActiveOnly bool
}

// Matches reports whether p passes the filter.
func (f Filter) Matches(p *Product) bool {
	if f.ActiveOnly && !p.IsActive {
		return false
	}
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if id == p.ID {
				return true
			}
		}
		return false
	}
	return true
}

// Accessor é a visão somente leitura do catálogo usada pelo carrinho e pelo checkout
type Accessor interface {
	// GetProduct retorna o produto com estoque e preços atuais; ErrProductNotFound se ausente
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// ListProducts lista os produtos que passam pelo filtro
	ListProducts(ctx context.Context, filter Filter) ([]Product, error)
}
