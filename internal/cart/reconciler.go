package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
)

// Tipos de discrepância encontrados na reconciliação
const (
	DiscrepancyRemoved    = "removed"
	DiscrepancyAdjusted   = "adjusted"
	DiscrepancyUnverified = "unverified"
)

// Motivos de remoção
const (
	ReasonUnavailable = "unavailable"
	ReasonOutOfStock  = "out of stock"
)

// Discrepancy descreve o que a reconciliação fez com uma linha
type Discrepancy struct {
	Key         LineKey `json:"key"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Reason      string  `json:"reason,omitempty"`
	OldQuantity int     `json:"old_quantity"`
	NewQuantity int     `json:"new_quantity"`
}

// Report é o resultado da reconciliação do carrinho com o estoque atual
type Report struct {
	IsValid       bool          `json:"is_valid"`
	Messages      []string      `json:"messages"`
	Removed       int           `json:"removed"`
	Adjusted      int           `json:"adjusted"`
	Unverified    int           `json:"unverified"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

func (r *Report) add(d Discrepancy, msg string) {
	r.Discrepancies = append(r.Discrepancies, d)
	r.Messages = append(r.Messages, msg)
	switch d.Kind {
	case DiscrepancyRemoved:
		r.Removed++
	case DiscrepancyAdjusted:
		r.Adjusted++
	case DiscrepancyUnverified:
		r.Unverified++
	}
	r.IsValid = false
}

// Reconcile valida cada linha contra o catálogo. Linhas indisponíveis ou sem estoque são removidas,
// quantidades acima do estoque são reduzidas, e o estoque capturado das demais é atualizado.
// O carrinho só é alterado pelas operações do Manager.
func Reconcile(ctx context.Context, m *Manager, accessor catalog.Accessor) (Report, error) {
	report := Report{IsValid: true, Messages: []string{}, Discrepancies: []Discrepancy{}}
	products := make(map[string]*catalog.Product)
	failures := make(map[string]error)

	for _, line := range m.Lines() {
		key := line.Key()

		product, fetchErr := lookup(ctx, accessor, line.ProductID, products, failures)
		switch {
		case errors.Is(fetchErr, catalog.ErrProductNotFound) || (fetchErr == nil && !product.IsActive):
			if err := ignoreMissing(m.RemoveLine(ctx, key)); err != nil {
				return report, err
			}
			report.add(Discrepancy{Key: key, Name: line.Name, Kind: DiscrepancyRemoved, Reason: ReasonUnavailable, OldQuantity: line.Quantity},
				fmt.Sprintf("%s (%s) is no longer available and was removed", line.Name, line.PriceLabel))

		case fetchErr != nil:
			report.add(Discrepancy{Key: key, Name: line.Name, Kind: DiscrepancyUnverified, OldQuantity: line.Quantity, NewQuantity: line.Quantity},
				fmt.Sprintf("could not verify stock for %s: %v", line.Name, fetchErr))

		case product.Stock <= 0:
			if err := ignoreMissing(m.RemoveLine(ctx, key)); err != nil {
				return report, err
			}
			report.add(Discrepancy{Key: key, Name: line.Name, Kind: DiscrepancyRemoved, Reason: ReasonOutOfStock, OldQuantity: line.Quantity},
				fmt.Sprintf("%s is out of stock and was removed", line.Name))

		case product.Stock < line.Quantity:
			if err := ignoreMissing(m.RefreshStock(ctx, key, product.Stock)); err != nil {
				return report, err
			}
			if err := ignoreMissing(m.SetQuantity(ctx, key, product.Stock)); err != nil {
				return report, err
			}
			report.add(Discrepancy{Key: key, Name: line.Name, Kind: DiscrepancyAdjusted, OldQuantity: line.Quantity, NewQuantity: product.Stock},
				fmt.Sprintf("%s quantity reduced from %d to %d (only %d left)", line.Name, line.Quantity, product.Stock, product.Stock))

		default:
			if err := ignoreMissing(m.RefreshStock(ctx, key, product.Stock)); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

// lookup busca cada produto uma única vez por reconciliação
func lookup(ctx context.Context, accessor catalog.Accessor, productID string, cache map[string]*catalog.Product, failures map[string]error) (*catalog.Product, error) {
	if p, ok := cache[productID]; ok {
		return p, nil
	}
	if err, ok := failures[productID]; ok {
		return nil, err
	}
	p, err := accessor.GetProduct(ctx, productID)
	if err != nil {
		failures[productID] = err
		return nil, err
	}
	cache[productID] = p
	return p, nil
}

// a linha pode ter sido removida por outra aba durante a reconciliação
func ignoreMissing(err error) error {
	if errors.Is(err, ErrLineNotFound) {
		return nil
	}
	return err
}
