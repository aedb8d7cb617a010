package memory

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
)

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	CategoryID   string      `yaml:"category_id"`
	CategoryName string      `yaml:"category_name"`
	Stock        int         `yaml:"stock"`
	MinStock     int         `yaml:"min_stock"`
	Inactive     bool        `yaml:"inactive"`
	Prices       []seedPrice `yaml:"prices"`
}

type seedPrice struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Price   string `yaml:"price"`
	Default bool   `yaml:"default"`
}

// LoadSeedFile lê um catálogo YAML e insere os produtos no store
func (s *Store) LoadSeedFile(path string, minPrice decimal.Decimal) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.LoadSeed(raw, minPrice)
}

// LoadSeed insere os produtos de um documento YAML. Preços abaixo de minPrice são rejeitados.
func (s *Store) LoadSeed(raw []byte, minPrice decimal.Decimal) (int, error) {
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse seed: %w", err)
	}

	products := make([]catalog.Product, 0, len(doc.Products))
	for _, sp := range doc.Products {
		if sp.ID == "" || sp.Name == "" {
			return 0, fmt.Errorf("seed product without id or name")
		}
		if sp.Stock < 0 {
			return 0, fmt.Errorf("seed product %s has negative stock", sp.ID)
		}

		p := catalog.Product{
			ID:           sp.ID,
			Name:         sp.Name,
			CategoryID:   sp.CategoryID,
			CategoryName: sp.CategoryName,
			Stock:        sp.Stock,
			MinStock:     sp.MinStock,
			IsActive:     !sp.Inactive,
		}
		defaults := 0
		for _, pr := range sp.Prices {
			if err := catalog.ValidatePriceID(pr.ID); err != nil {
				return 0, fmt.Errorf("seed product %s: %w", sp.ID, err)
			}
			price, err := decimal.NewFromString(pr.Price)
			if err != nil {
				return 0, fmt.Errorf("seed product %s price %s: %w", sp.ID, pr.ID, err)
			}
			if price.LessThan(minPrice) {
				return 0, fmt.Errorf("seed product %s price %s is below the minimum %s", sp.ID, pr.ID, minPrice)
			}
			if pr.Default {
				defaults++
			}
			p.Prices = append(p.Prices, catalog.PriceVariant{
				ID:        pr.ID,
				ProductID: sp.ID,
				Label:     pr.Label,
				Price:     price,
				IsDefault: pr.Default,
			})
		}
		if defaults > 1 {
			return 0, fmt.Errorf("seed product %s has more than one default price", sp.ID)
		}
		products = append(products, p)
	}

	for _, p := range products {
		s.PutProduct(p)
	}
	return len(products), nil
}
