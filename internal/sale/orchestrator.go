package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

// DefaultCancelWindow: vendas só podem ser canceladas nas primeiras 24 horas
const DefaultCancelWindow = 24 * time.Hour

// Request são os dados de pagamento do checkout
type Request struct {
	EmployeeID    string           `json:"employee_id"`
	PaymentMethod payment.Method   `json:"payment_method"`
	CashReceived  *decimal.Decimal `json:"cash_received,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// Orchestrator transforma um carrinho reconciliado e um pagamento em uma venda gravada
type Orchestrator struct {
	store        Store
	catalog      catalog.Accessor
	ledger       *shift.Ledger
	publisher    Publisher
	numbers      *NumberGenerator
	autoStart    shift.AutoStartPolicy
	cancelWindow time.Duration
	logger       *zap.Logger
	metrics      saleMetrics
}

// Option configura o Orchestrator
type Option func(*Orchestrator)

// WithPublisher define para onde vão os eventos de venda
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithAutoStart abre um turno junto com a venda quando não há turno aberto e a política permite.
// O turno só é gravado se o commit da venda for bem-sucedido.
func WithAutoStart(policy shift.AutoStartPolicy) Option {
	return func(o *Orchestrator) { o.autoStart = policy }
}

// WithCancelWindow define por quanto tempo uma venda pode ser cancelada
func WithCancelWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.cancelWindow = d }
}

// WithNumberGenerator substitui o gerador de números de venda
func WithNumberGenerator(g *NumberGenerator) Option {
	return func(o *Orchestrator) { o.numbers = g }
}

// WithLogger define o logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator cria uma nova instância de Orchestrator
func NewOrchestrator(store Store, accessor catalog.Accessor, ledger *shift.Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		catalog:      accessor,
		ledger:       ledger,
		numbers:      NewNumberGenerator(),
		cancelWindow: DefaultCancelWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newSaleMetrics(o.logger)
	return o
}

// Checkout valida o carrinho, liquida o pagamento e grava a venda em uma única transação.
// Falhas depois da geração do número retornam *CheckoutError e deixam o carrinho intacto;
// não há nova tentativa com o mesmo número.
func (o *Orchestrator) Checkout(ctx context.Context, m *cart.Manager, req Request) (*Sale, error) {
	ctx, span := startCheckoutSpan(ctx, "run", attribute.String("employee_id", req.EmployeeID))
	defer span.End()

	sale, err := o.checkout(ctx, m, req)
	if err != nil {
		failSpan(span, err, "checkout failed")
		o.metrics.recordCheckout(ctx, outcome(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("sale.number", sale.Number), attribute.String("sale.total", sale.Total.String()))
	span.SetStatus(codes.Ok, "sale committed")
	o.metrics.recordCheckout(ctx, "committed")
	o.metrics.recordAmount(ctx, sale.Total.InexactFloat64(), string(sale.PaymentMethod))
	return sale, nil
}

func (o *Orchestrator) checkout(ctx context.Context, m *cart.Manager, req Request) (*Sale, error) {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return nil, ErrEmployeeRequired
	}
	if !req.PaymentMethod.Valid() {
		return nil, payment.ErrInvalidMethod
	}
	if m.IsEmpty() {
		return nil, ErrEmptyCart
	}

	// 1. Reconciliação
	if err := o.reconcile(ctx, m); err != nil {
		return nil, err
	}
	lines := m.Lines()
	totals := m.Totals()

	// 2-3. Total e pagamento
	_, settleSpan := startCheckoutSpan(ctx, "settle", attribute.String("payment.method", string(req.PaymentMethod)))
	settlement, err := payment.Settle(req.PaymentMethod, totals.Amount, req.CashReceived)
	if err != nil {
		failSpan(settleSpan, err, "payment rejected")
		settleSpan.End()
		return nil, err
	}
	settleSpan.End()

	// 4-5. Número da venda e turno pelo instante do commit
	now := o.ledger.Now()
	number := o.numbers.Next(now)
	shiftType := shift.Classify(now)
	shiftID, openShift := o.attributeShift(ctx, req.EmployeeID, now)

	sale := &Sale{
		ID:            uuid.New().String(),
		Number:        number,
		EmployeeID:    req.EmployeeID,
		Lines:         make([]Line, 0, len(lines)),
		Total:         settlement.Total,
		PaymentMethod: settlement.Method,
		CashReceived:  settlement.CashReceived,
		Change:        settlement.Change,
		ShiftType:     shiftType,
		ShiftID:       shiftID,
		SaleDate:      now.Format(shift.DateLayout),
		CreatedAt:     now,
		Notes:         req.Notes,
	}
	for _, l := range lines {
		sale.Lines = append(sale.Lines, LineFromCart(l))
	}
	if err := sale.Validate(); err != nil {
		return nil, &CheckoutError{Step: StepCommit, SaleNumber: number, Err: err}
	}

	// 6-8. Cabeçalho, itens, estoque e turno em uma transação
	commitCtx, commitSpan := startCheckoutSpan(ctx, StepCommit, attribute.String("sale.number", number))
	saved, err := o.store.CommitSale(commitCtx, Commit{Sale: sale, ShiftID: shiftID, OpenShift: openShift})
	if err != nil {
		failSpan(commitSpan, err, "commit failed")
		commitSpan.End()
		o.logger.Error("❌ Sale commit failed",
			zap.String("sale_number", number),
			zap.String("employee_id", req.EmployeeID),
			zap.Error(err),
		)
		return nil, &CheckoutError{Step: StepCommit, SaleNumber: number, Err: err}
	}
	commitSpan.End()
	if openShift != nil && saved.ShiftID == openShift.ID {
		o.logger.Info("🚀 Shift auto-started with sale", zap.String("shift_id", openShift.ID), zap.String("employee_id", req.EmployeeID))
	}

	// 9. Sucesso: limpa o carrinho e publica
	if err := m.Clear(ctx); err != nil {
		o.logger.Warn("⚠️ Failed to clear cart after sale", zap.String("sale_number", number), zap.Error(err))
	}
	o.publish(ctx, Event{Type: EventSaleCommitted, Sale: saved, OccurredAt: now})

	o.logger.Info("✅ Sale committed",
		zap.String("sale_id", saved.ID),
		zap.String("sale_number", saved.Number),
		zap.String("employee_id", saved.EmployeeID),
		zap.String("total", saved.Total.String()),
		zap.String("payment_method", string(saved.PaymentMethod)),
		zap.String("shift_type", string(saved.ShiftType)),
	)
	return saved, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, m *cart.Manager) error {
	ctx, span := startCheckoutSpan(ctx, StepReconcile)
	defer span.End()

	report, err := cart.Reconcile(ctx, m, o.catalog)
	if err != nil {
		failSpan(span, err, "reconcile failed")
		return &CheckoutError{Step: StepReconcile, Err: err}
	}
	span.SetAttributes(
		attribute.Int("reconcile.removed", report.Removed),
		attribute.Int("reconcile.adjusted", report.Adjusted),
		attribute.Int("reconcile.unverified", report.Unverified),
	)
	if report.IsValid {
		return nil
	}
	if report.Removed+report.Adjusted == 0 {
		err := &CheckoutError{Step: StepReconcile, Err: fmt.Errorf("%w: %s", ErrCatalogUnavailable, strings.Join(report.Messages, "; "))}
		failSpan(span, err, "catalog unavailable")
		return err
	}
	o.logger.Info("ℹ️ Checkout blocked by stale cart",
		zap.String("session_id", m.SessionID()),
		zap.Int("removed", report.Removed),
		zap.Int("adjusted", report.Adjusted),
	)
	return &StaleCartError{Report: report}
}

// attributeShift encontra o turno da venda ou, pela política, prepara um novo que só é gravado
// junto com a venda. Falhas não bloqueiam o checkout.
func (o *Orchestrator) attributeShift(ctx context.Context, employeeID string, now time.Time) (string, *shift.Shift) {
	current, pending, err := o.ledger.PlanShift(ctx, employeeID, now, o.autoStart)
	if err != nil {
		o.logger.Warn("⚠️ Shift lookup failed, sale will not be attributed", zap.String("employee_id", employeeID), zap.Error(err))
		return "", nil
	}
	if pending != nil {
		return pending.ID, pending
	}
	if current == nil {
		return "", nil
	}
	return current.ID, nil
}

func (o *Orchestrator) publish(ctx context.Context, event Event) {
	if o.publisher == nil {
		return
	}
	ctx, span := startCheckoutSpan(ctx, "publish", attribute.String("event.type", event.Type))
	defer span.End()

	if err := o.publisher.Publish(ctx, event); err != nil {
		failSpan(span, err, "publish failed")
		o.logger.Warn("⚠️ Failed to publish sale event",
			zap.String("event_type", event.Type),
			zap.String("sale_id", event.Key()),
			zap.Error(err),
		)
	}
}

// GetSale busca uma venda pelo ID
func (o *Orchestrator) GetSale(ctx context.Context, saleID string) (*Sale, error) {
	return o.store.GetSale(ctx, saleID)
}

// ListSales lista vendas pelo filtro
func (o *Orchestrator) ListSales(ctx context.Context, f Filter) ([]Sale, error) {
	return o.store.ListSales(ctx, f)
}

// StockHistory lista as movimentações de estoque de um produto
func (o *Orchestrator) StockHistory(ctx context.Context, productID string, limit int) ([]StockMovement, error) {
	return o.store.StockHistory(ctx, productID, limit)
}

// CancelSale cancela uma venda dentro da janela permitida. O registro original vai para o
// histórico de cancelamentos, o estoque volta e os totais do turno são descontados.
func (o *Orchestrator) CancelSale(ctx context.Context, saleID, reason, employeeID string) (*Cancellation, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, ErrEmployeeRequired
	}

	s, err := o.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	now := o.ledger.Now()
	if now.Sub(s.CreatedAt) > o.cancelWindow {
		return nil, ErrCancellationWindowExpired
	}

	c := Cancellation{
		ID:          uuid.New().String(),
		Sale:        *s,
		Reason:      reason,
		CancelledBy: employeeID,
		CancelledAt: now,
	}
	if err := o.store.CancelSale(ctx, c); err != nil {
		o.logger.Error("❌ Sale cancellation failed", zap.String("sale_id", saleID), zap.Error(err))
		return nil, fmt.Errorf("failed to cancel sale: %w", err)
	}

	o.metrics.recordCancellation(ctx)
	o.publish(ctx, Event{Type: EventSaleCancelled, Sale: &c.Sale, Cancellation: &c, OccurredAt: now})
	o.logger.Info("↩️ Sale cancelled",
		zap.String("sale_id", s.ID),
		zap.String("sale_number", s.Number),
		zap.String("cancelled_by", employeeID),
		zap.String("reason", reason),
	)
	return &c, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrStaleCart):
		return "stale_cart"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrStockFloor):
		return "stock_floor"
	case errors.Is(err, ErrCheckoutFailed):
		return "failed"
	default:
		return "rejected"
	}
}
