package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

// errorResponse é o corpo padrão de erro da API
type errorResponse struct {
	Error      string       `json:"error"`
	Code       string       `json:"code"`
	Step       string       `json:"step,omitempty"`
	SaleNumber string       `json:"sale_number,omitempty"`
	Report     *cart.Report `json:"report,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{ErrSessionRequired, http.StatusBadRequest, "session_required"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{sale.ErrStaleCart, http.StatusConflict, "stale_cart"},
	{sale.ErrStockFloor, http.StatusConflict, "stock_conflict"},
	{sale.ErrDuplicateSaleNumber, http.StatusConflict, "duplicate_sale_number"},
	{shift.ErrShiftAlreadyStarted, http.StatusConflict, "shift_already_started"},
	{shift.ErrShiftAlreadyEnded, http.StatusConflict, "shift_already_ended"},
	{sale.ErrCancellationWindowExpired, http.StatusConflict, "cancellation_window_expired"},

	{sale.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{cart.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},
	{cart.ErrInsufficientStock, http.StatusUnprocessableEntity, "insufficient_stock"},
	{cart.ErrInvalidProduct, http.StatusUnprocessableEntity, "invalid_product"},
	{cart.ErrInvalidPrice, http.StatusUnprocessableEntity, "invalid_price"},
	{cart.ErrInvalidLineKey, http.StatusUnprocessableEntity, "invalid_line_key"},
	{payment.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},
	{payment.ErrInvalidMethod, http.StatusUnprocessableEntity, "invalid_payment_method"},
	{sale.ErrEmployeeRequired, http.StatusUnprocessableEntity, "employee_required"},
	{shift.ErrInvalidEmployee, http.StatusUnprocessableEntity, "employee_required"},
	{shift.ErrInvalidShiftType, http.StatusUnprocessableEntity, "invalid_shift_type"},
	{sale.ErrTotalMismatch, http.StatusUnprocessableEntity, "total_mismatch"},

	{catalog.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{catalog.ErrVariantNotFound, http.StatusNotFound, "variant_not_found"},
	{cart.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{sale.ErrSaleNotFound, http.StatusNotFound, "sale_not_found"},
	{shift.ErrShiftNotFound, http.StatusNotFound, "shift_not_found"},

	{sale.ErrCatalogUnavailable, http.StatusBadGateway, "catalog_unavailable"},
}

var errBadRequest = errors.New("bad request")

// writeError traduz a taxonomia de erros do domínio em status HTTP.
// A ordem importa: StaleCart vence CheckoutFailed, e validações vencem not-found.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	resp := errorResponse{Error: err.Error(), Code: "internal_error"}
	status := http.StatusInternalServerError

	var stale *sale.StaleCartError
	if errors.As(err, &stale) {
		report := stale.Report
		resp.Report = &report
	}
	var checkoutErr *sale.CheckoutError
	if errors.As(err, &checkoutErr) {
		resp.Step = checkoutErr.Step
		resp.SaleNumber = checkoutErr.SaleNumber
		resp.Code = "checkout_failed"
	}

	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			status, resp.Code = e.status, e.code
			break
		}
	}

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
}
