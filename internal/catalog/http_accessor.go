package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPAccessor lê o catálogo de um serviço remoto
type HTTPAccessor struct {
	client *resty.Client
}

// NewHTTPAccessor cria uma nova instância de HTTPAccessor
func NewHTTPAccessor(baseURL string, timeout time.Duration) *HTTPAccessor {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPAccessor{client: client}
}

type productsResponse struct {
	Products []Product `json:"products"`
}

// GetProduct busca GET /api/products/{id}
func (a *HTTPAccessor) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", productID).
		SetResult(&product).
		Get("/api/products/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", productID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog returned status %d for product %s", resp.StatusCode(), productID)
	}
	return &product, nil
}

// ListProducts busca GET /api/products com o filtro como query string
func (a *HTTPAccessor) ListProducts(ctx context.Context, filter Filter) ([]Product, error) {
	params := url.Values{}
	if len(filter.IDs) > 0 {
		params.Set("ids", strings.Join(filter.IDs, ","))
	}
	if filter.CategoryID != "" {
		params.Set("category_id", filter.CategoryID)
	}
	if filter.ActiveOnly {
		params.Set("active", strconv.FormatBool(true))
	}

	var body productsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&body).
		Get("/api/products")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog returned status %d listing products", resp.StatusCode())
	}

	// o serviço remoto pode ignorar filtros; aplicamos de novo localmente
	out := make([]Product, 0, len(body.Products))
	for i := range body.Products {
		if filter.Matches(&body.Products[i]) {
			out = append(out, body.Products[i])
		}
	}
	return out, nil
}
