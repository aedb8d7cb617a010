package sale

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

// Tipos de movimentação de estoque
const (
	ChangeTypeSale         = "sale"
	ChangeTypeCancellation = "cancellation"
)

// Line é um item vendido com o preço capturado no carrinho
type Line struct {
	ProductID  string          `json:"product_id"`
	PriceID    string          `json:"price_id"`
	Name       string          `json:"name"`
	PriceLabel string          `json:"price_label"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// LineFromCart copia uma linha do carrinho para a venda
func LineFromCart(l cart.Line) Line {
	return Line{
		ProductID:  l.ProductID,
		PriceID:    l.PriceID,
		Name:       l.Name,
		PriceLabel: l.PriceLabel,
		UnitPrice:  l.UnitPrice,
		Quantity:   l.Quantity,
		Subtotal:   l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
	}
}

// Sale é o registro imutável de uma venda paga
type Sale struct {
	ID            string           `json:"id"`
	Number        string           `json:"sale_number"`
	EmployeeID    string           `json:"employee_id"`
	Lines         []Line           `json:"items"`
	Total         decimal.Decimal  `json:"total_amount"`
	PaymentMethod payment.Method   `json:"payment_method"`
	CashReceived  *decimal.Decimal `json:"cash_received,omitempty"`
	Change        decimal.Decimal  `json:"change_amount"`
	ShiftType     shift.Type       `json:"shift_type"`
	ShiftID       string           `json:"shift_id,omitempty"`
	SaleDate      string           `json:"sale_date"`
	CreatedAt     time.Time        `json:"created_at"`
	Notes         string           `json:"notes,omitempty"`
}

// Validate checks that the total is the sum of the lines and that cash covers the total.
func (s *Sale) Validate() error {
	if len(s.Lines) == 0 {
		return ErrEmptyCart
	}
	sum := decimal.Zero
	for _, l := range s.Lines {
		if l.Quantity <= 0 {
			return cart.ErrInvalidQuantity
		}
		sum = sum.Add(l.Subtotal)
	}
	if !sum.Equal(s.Total) {
		return ErrTotalMismatch
	}
	if s.PaymentMethod == payment.MethodCash && (s.CashReceived == nil || s.CashReceived.LessThan(s.Total)) {
		return ErrInsufficientPayment
	}
	return nil
}

// Delta é a contribuição da venda para os totais do turno
func (s *Sale) Delta() shift.Totals {
	return shift.SaleDelta(s.PaymentMethod, s.Total)
}

// ProductQuantities soma as quantidades por produto
func (s *Sale) ProductQuantities() map[string]int {
	out := make(map[string]int, len(s.Lines))
	for _, l := range s.Lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// StockMovement é uma entrada do histórico de estoque
type StockMovement struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	ChangeType     string    `json:"change_type"`
	QuantityChange int       `json:"quantity_change"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after"`
	EmployeeID     string    `json:"employee_id"`
	ReferenceID    string    `json:"reference_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Cancellation guarda o registro completo da venda antes de ser cancelada
type Cancellation struct {
	ID          string    `json:"id"`
	Sale        Sale      `json:"sale"`
	Reason      string    `json:"reason"`
	CancelledBy string    `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Commit é a escrita atômica de uma venda: cabeçalho, itens, baixa de estoque e totais do turno
type Commit struct {
	Sale *Sale
	// ShiftID vazio: venda sem turno atribuído
	ShiftID string
	// OpenShift é um turno aberto pela política de auto-início, gravado na mesma transação.
	// Se a tripla já existir, a venda usa o turno existente quando ele está aberto.
	OpenShift *shift.Shift
}

// Filter restringe a listagem de vendas
type Filter struct {
	EmployeeID    string
	From          time.Time
	To            time.Time
	ShiftType     shift.Type
	PaymentMethod payment.Method
	Limit         int
	Offset        int
}

// Matches reports whether s passes the filter (limit and offset are applied by the caller).
func (f Filter) Matches(s *Sale) bool {
	if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
		return false
	}
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.CreatedAt.Before(f.To) {
		return false
	}
	if f.ShiftType != "" && s.ShiftType != f.ShiftType {
		return false
	}
	if f.PaymentMethod != "" && s.PaymentMethod != f.PaymentMethod {
		return false
	}
	return true
}

// Store define a persistência de vendas e estoque
type Store interface {
	// CommitSale grava a venda, baixa o estoque de cada item com piso zero, registra o histórico
	// e soma a venda ao turno; tudo ou nada. Retorna ErrStockFloor se algum estoque ficaria negativo.
	CommitSale(ctx context.Context, c Commit) (*Sale, error)

	// GetSale busca uma venda pelo ID; ErrSaleNotFound se ausente
	GetSale(ctx context.Context, saleID string) (*Sale, error)

	// ListSales lista vendas mais recentes primeiro
	ListSales(ctx context.Context, f Filter) ([]Sale, error)

	// CancelSale grava o histórico, devolve o estoque, desconta do turno e apaga a venda; tudo ou nada
	CancelSale(ctx context.Context, c Cancellation) error

	// StockHistory lista as movimentações de um produto, mais recentes primeiro
	StockHistory(ctx context.Context, productID string, limit int) ([]StockMovement, error)
}

// Tipos de evento publicados
const (
	EventSaleCommitted = "sale.committed"
	EventSaleCancelled = "sale.cancelled"
)

// Event é publicado depois que a venda foi gravada ou cancelada
type Event struct {
	Type         string        `json:"type"`
	Sale         *Sale         `json:"sale"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// Key particiona os eventos pela venda
func (e Event) Key() string {
	if e.Sale == nil {
		return ""
	}
	return e.Sale.ID
}

// Publisher entrega eventos de venda para fora do processo
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
