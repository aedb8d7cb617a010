package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInvalidProduct    = errors.New("product is required")
	ErrInvalidPrice      = errors.New("price variant must have a positive price")
	ErrInvalidLineKey    = errors.New("invalid cart line key")
)

// LineKey identifica uma linha do carrinho: produto + variante de preço
type LineKey struct {
	ProductID string
	PriceID   string
}

// String returns the textual form "<productID>_<priceID>".
func (k LineKey) String() string {
	return k.ProductID + catalog.KeySeparator + k.PriceID
}

// MarshalText implementa encoding.TextMarshaler
func (k LineKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implementa encoding.TextUnmarshaler
func (k *LineKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLineKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLineKey converte "<productID>_<priceID>" em LineKey.
// Price ids are checked by catalog.ValidatePriceID, so the last separator wins.
func ParseLineKey(s string) (LineKey, error) {
	i := strings.LastIndex(s, catalog.KeySeparator)
	if i <= 0 || i == len(s)-1 {
		return LineKey{}, fmt.Errorf("%w: %q", ErrInvalidLineKey, s)
	}
	return LineKey{ProductID: s[:i], PriceID: s[i+1:]}, nil
}

// Line é uma linha do carrinho com o preço capturado no momento da inclusão
type Line struct {
	ProductID    string          `json:"product_id"`
	PriceID      string          `json:"price_id"`
	Name         string          `json:"name"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	PriceLabel   string          `json:"price_label"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Stock        int             `json:"stock"`
	AddedAt      time.Time       `json:"added_at"`
}

// Key retorna a chave composta da linha
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, PriceID: l.PriceID}
}

func (l *Line) setQuantity(q int) {
	l.Quantity = q
	l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(q)))
}

// Totals são os agregados do carrinho, sempre recalculados a partir das linhas
type Totals struct {
	ItemCount   int             `json:"item_count"`
	UniqueLines int             `json:"unique_lines"`
	Amount      decimal.Decimal `json:"amount"`
}

// Summary estende Totals com categorias e preço médio por item
type Summary struct {
	Totals
	Categories       []string        `json:"categories"`
	AverageItemPrice decimal.Decimal `json:"average_item_price"`
}
