package sale

import (
	"errors"
	"fmt"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
)

var (
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrStaleCart                 = errors.New("cart changed during reconciliation")
	ErrInsufficientPayment       = payment.ErrInsufficientPayment
	ErrCheckoutFailed            = errors.New("checkout failed")
	ErrStockFloor                = errors.New("stock would go negative")
	ErrSaleNotFound              = errors.New("sale not found")
	ErrDuplicateSaleNumber       = errors.New("sale number already exists")
	ErrCancellationWindowExpired = errors.New("sale can no longer be cancelled")
	ErrTotalMismatch             = errors.New("sale total does not match its lines")
	ErrEmployeeRequired          = errors.New("employee id is required")
	ErrCatalogUnavailable        = errors.New("catalog could not verify the cart")
)

// Etapas do checkout
const (
	StepReconcile = "reconcile"
	StepCommit    = "commit"
)

// CheckoutError identifica a etapa que falhou. Compara com ErrCheckoutFailed e com a causa.
type CheckoutError struct {
	Step       string
	SaleNumber string
	Err        error
}

func (e *CheckoutError) Error() string {
	if e.SaleNumber != "" {
		return fmt.Sprintf("checkout failed at %s (sale %s): %v", e.Step, e.SaleNumber, e.Err)
	}
	return fmt.Sprintf("checkout failed at %s: %v", e.Step, e.Err)
}

func (e *CheckoutError) Unwrap() []error {
	return []error{ErrCheckoutFailed, e.Err}
}

// StaleCartError carrega o relatório da reconciliação que bloqueou o checkout
type StaleCartError struct {
	Report cart.Report
}

func (e *StaleCartError) Error() string {
	return fmt.Sprintf("%s: %d removed, %d adjusted", ErrStaleCart, e.Report.Removed, e.Report.Adjusted)
}

func (e *StaleCartError) Is(target error) bool {
	return target == ErrStaleCart
}
