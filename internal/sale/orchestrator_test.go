package sale_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
	"github.com/matheusmosca/pos-transaction-engine/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []sale.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e sale.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	ledger    *shift.Ledger
	orch      *sale.Orchestrator
	publisher *recordingPublisher
	clock     time.Time
	product   catalog.Product
}

func newFixture(t *testing.T, opts ...sale.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
		clock:     time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		product: catalog.Product{
			ID:       "p-1",
			Name:     "Widget",
			Stock:    10,
			IsActive: true,
			Prices: []catalog.PriceVariant{
				{ID: "v-1", ProductID: "p-1", Label: "ซองละ", Price: decimal.RequireFromString("40"), IsDefault: true},
			},
		},
	}
	f.store.PutProduct(f.product)
	f.store.SetClock(f.now)
	f.ledger = shift.NewLedger(f.store, shift.WithClock(f.now), shift.WithLocation(time.UTC))
	opts = append([]sale.Option{sale.WithPublisher(f.publisher)}, opts...)
	f.orch = sale.NewOrchestrator(f.store, f.store, f.ledger, opts...)
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) cartWith(t *testing.T, qty int) *cart.Manager {
	t.Helper()
	m := cart.NewManager("session-" + t.Name())
	p, err := f.store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	_, err = m.AddLine(context.Background(), p, p.Prices[0], qty)
	require.NoError(t, err)
	return m
}

func cash(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (f *fixture) stock(t *testing.T) int {
	p, err := f.store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	return p.Stock
}

func TestCheckout_CashWithChange(t *testing.T) {
	f := newFixture(t)
	m := f.cartWith(t, 2)

	s, err := f.orch.Checkout(context.Background(), m, sale.Request{
		EmployeeID:    "emp-1",
		PaymentMethod: payment.MethodCash,
		CashReceived:  cash("100"),
	})

	require.NoError(t, err)
	assert.Equal(t, "80", s.Total.String())
	assert.Equal(t, "20", s.Change.String())
	require.NotNil(t, s.CashReceived)
	assert.Equal(t, "100", s.CashReceived.String())
	assert.Equal(t, shift.TypeMorning, s.ShiftType)
	assert.Equal(t, "2026-03-14", s.SaleDate)
	assert.Regexp(t, `^S260314\d{6}$`, s.Number)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "ซองละ", s.Lines[0].PriceLabel)

	assert.Equal(t, 8, f.stock(t))
	assert.True(t, m.IsEmpty())

	history, err := f.orch.StockHistory(context.Background(), "p-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sale.ChangeTypeSale, history[0].ChangeType)
	assert.Equal(t, 10, history[0].QuantityBefore)
	assert.Equal(t, 8, history[0].QuantityAfter)
	assert.Equal(t, s.ID, history[0].ReferenceID)

	assert.Equal(t, []string{sale.EventSaleCommitted}, f.publisher.types())
}

func TestCheckout_TransferHasNoChange(t *testing.T) {
	f := newFixture(t)
	m := f.cartWith(t, 2)

	s, err := f.orch.Checkout(context.Background(), m, sale.Request{
		EmployeeID:    "emp-1",
		PaymentMethod: payment.MethodTransfer,
	})

	require.NoError(t, err)
	assert.True(t, s.Change.IsZero())
	assert.Nil(t, s.CashReceived)
	assert.Equal(t, "80", s.Total.String())
}

func TestCheckout_InsufficientPaymentLeavesCart(t *testing.T) {
	for name, received := range map[string]*decimal.Decimal{
		"short": cash("79.99"),
		"none":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			m := f.cartWith(t, 2)

			_, err := f.orch.Checkout(context.Background(), m, sale.Request{
				EmployeeID:    "emp-1",
				PaymentMethod: payment.MethodCash,
				CashReceived:  received,
			})

			assert.ErrorIs(t, err, sale.ErrInsufficientPayment)
			assert.Equal(t, 2, m.Totals().ItemCount)
			assert.Equal(t, 10, f.stock(t))
		})
	}
}

func TestCheckout_ExactCash(t *testing.T) {
	f := newFixture(t)
	m := f.cartWith(t, 2)

	s, err := f.orch.Checkout(context.Background(), m, sale.Request{
		EmployeeID:    "emp-1",
		PaymentMethod: payment.MethodCash,
		CashReceived:  cash("80.00"),
	})

	require.NoError(t, err)
	assert.True(t, s.Change.IsZero())
}

func TestCheckout_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Checkout(ctx, cart.NewManager("empty"), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	assert.ErrorIs(t, err, sale.ErrEmptyCart)

	_, err = f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{PaymentMethod: payment.MethodTransfer})
	assert.ErrorIs(t, err, sale.ErrEmployeeRequired)

	_, err = f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: "card"})
	assert.ErrorIs(t, err, payment.ErrInvalidMethod)
}

func TestCheckout_StaleCartBlocksThenSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.cartWith(t, 5)
	require.NoError(t, f.store.SetStock("p-1", 3))

	_, err := f.orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.ErrorIs(t, err, sale.ErrStaleCart)
	var stale *sale.StaleCartError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, 1, stale.Report.Adjusted)
	assert.Equal(t, 3, m.Totals().ItemCount, "cart clamped to live stock")
	assert.Equal(t, 3, f.stock(t), "nothing committed")

	s, err := f.orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	require.NoError(t, err)
	assert.Equal(t, "120", s.Total.String())
	assert.Equal(t, 0, f.stock(t))
}

// catálogo que ainda mostra estoque antigo: a reconciliação passa e o piso do banco segura
type staleAccessor struct{ product catalog.Product }

func (a staleAccessor) GetProduct(context.Context, string) (*catalog.Product, error) {
	p := a.product
	return &p, nil
}

func (a staleAccessor) ListProducts(context.Context, catalog.Filter) ([]catalog.Product, error) {
	return []catalog.Product{a.product}, nil
}

func TestCheckout_StockFloorFailsAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orch := sale.NewOrchestrator(f.store, staleAccessor{product: f.product}, f.ledger)
	m := f.cartWith(t, 4)
	require.NoError(t, f.store.SetStock("p-1", 3))

	_, err := orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.ErrorIs(t, err, sale.ErrCheckoutFailed)
	assert.ErrorIs(t, err, sale.ErrStockFloor)
	var ce *sale.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, sale.StepCommit, ce.Step)
	assert.NotEmpty(t, ce.SaleNumber)

	assert.Equal(t, 3, f.stock(t))
	assert.Equal(t, 4, m.Totals().ItemCount, "cart untouched after failed commit")
	sales, err := f.orch.ListSales(ctx, sale.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

type failingAccessor struct{}

func (failingAccessor) GetProduct(context.Context, string) (*catalog.Product, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (failingAccessor) ListProducts(context.Context, catalog.Filter) ([]catalog.Product, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestCheckout_CatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	orch := sale.NewOrchestrator(f.store, failingAccessor{}, f.ledger)
	m := f.cartWith(t, 1)

	_, err := orch.Checkout(context.Background(), m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.ErrorIs(t, err, sale.ErrCheckoutFailed)
	assert.ErrorIs(t, err, sale.ErrCatalogUnavailable)
	assert.NotErrorIs(t, err, sale.ErrStaleCart)
	assert.Equal(t, 1, m.Totals().ItemCount)
}

func TestCheckout_UpdatesOpenShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open, err := f.ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)

	s1, err := f.orch.Checkout(ctx, f.cartWith(t, 2), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodCash, CashReceived: cash("100")})
	require.NoError(t, err)
	s2, err := f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	require.NoError(t, err)

	assert.Equal(t, open.ID, s1.ShiftID)
	assert.NotEqual(t, s1.Number, s2.Number)

	current, err := f.ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "120", current.TotalSales.String())
	assert.Equal(t, "80", current.CashSales.String())
	assert.Equal(t, "40", current.TransferSales.String())
	assert.Equal(t, 2, current.OrderCount)
}

func TestCheckout_WithoutShiftStillCommits(t *testing.T) {
	f := newFixture(t)

	s, err := f.orch.Checkout(context.Background(), f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.NoError(t, err)
	assert.Empty(t, s.ShiftID)
}

func TestCheckout_AutoStartsShift(t *testing.T) {
	f := newFixture(t, sale.WithAutoStart(shift.DefaultAutoStartPolicy))

	s, err := f.orch.Checkout(context.Background(), f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.NoError(t, err)
	require.NotEmpty(t, s.ShiftID)
	sh, err := f.store.GetShift(context.Background(), s.ShiftID)
	require.NoError(t, err)
	assert.Equal(t, 1, sh.OrderCount)
}

func TestCheckout_AutoStartShiftRollsBackWithFailedCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orch := sale.NewOrchestrator(f.store, staleAccessor{product: f.product}, f.ledger, sale.WithAutoStart(shift.DefaultAutoStartPolicy))
	m := f.cartWith(t, 4)
	require.NoError(t, f.store.SetStock("p-1", 3))

	_, err := orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.ErrorIs(t, err, sale.ErrStockFloor)
	current, err := f.ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, current, "a failed checkout must not leave an auto-started shift")

	// a próxima venda bem-sucedida abre o turno
	require.NoError(t, f.store.SetStock("p-1", 10))
	s, err := orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	require.NoError(t, err)
	current, err = f.ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, s.ShiftID, current.ID)
	assert.Equal(t, 1, current.OrderCount)
}

func TestCheckout_ShiftTypeFromCommitInstant(t *testing.T) {
	tests := []struct {
		clock time.Time
		want  shift.Type
	}{
		{time.Date(2026, 3, 14, 13, 59, 59, 0, time.UTC), shift.TypeMorning},
		{time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC), shift.TypeAfternoon},
		{time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC), shift.TypeNight},
	}

	for _, tt := range tests {
		t.Run(tt.clock.Format("15:04:05"), func(t *testing.T) {
			f := newFixture(t)
			f.clock = tt.clock

			s, err := f.orch.Checkout(context.Background(), f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

			require.NoError(t, err)
			assert.Equal(t, tt.want, s.ShiftType)
		})
	}
}

func TestCheckout_PublishFailureDoesNotFailSale(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	m := f.cartWith(t, 1)

	s, err := f.orch.Checkout(context.Background(), m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, m.IsEmpty())
}

func TestCancelSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open, err := f.ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)

	s, err := f.orch.Checkout(ctx, f.cartWith(t, 3), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodCash, CashReceived: cash("200")})
	require.NoError(t, err)
	assert.Equal(t, 7, f.stock(t))

	f.clock = f.clock.Add(2 * time.Hour)
	c, err := f.orch.CancelSale(ctx, s.ID, "customer returned goods", "mgr-1")

	require.NoError(t, err)
	assert.Equal(t, s.Number, c.Sale.Number)
	assert.Equal(t, 10, f.stock(t))

	_, err = f.orch.GetSale(ctx, s.ID)
	assert.ErrorIs(t, err, sale.ErrSaleNotFound)

	sh, err := f.store.GetShift(ctx, open.ID)
	require.NoError(t, err)
	assert.True(t, sh.TotalSales.IsZero())
	assert.True(t, sh.CashSales.IsZero())
	assert.Equal(t, 0, sh.OrderCount)

	history := f.store.Cancellations()
	require.Len(t, history, 1)
	assert.Equal(t, "mgr-1", history[0].CancelledBy)
	assert.Equal(t, "120", history[0].Sale.Total.String())

	movements, err := f.orch.StockHistory(ctx, "p-1", 0)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, sale.ChangeTypeCancellation, movements[0].ChangeType)
	assert.Equal(t, 3, movements[0].QuantityChange)

	assert.Equal(t, []string{sale.EventSaleCommitted, sale.EventSaleCancelled}, f.publisher.types())
}

func TestCancelSale_WindowExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	require.NoError(t, err)

	f.clock = f.clock.Add(24*time.Hour + time.Minute)
	_, err = f.orch.CancelSale(ctx, s.ID, "late", "mgr-1")

	assert.ErrorIs(t, err, sale.ErrCancellationWindowExpired)
	assert.Equal(t, 9, f.stock(t))

	_, err = f.orch.CancelSale(ctx, "missing", "", "mgr-1")
	assert.ErrorIs(t, err, sale.ErrSaleNotFound)
}

func TestListSales_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})
	require.NoError(t, err)
	f.clock = f.clock.Add(5 * time.Hour)
	_, err = f.orch.Checkout(ctx, f.cartWith(t, 1), sale.Request{EmployeeID: "emp-2", PaymentMethod: payment.MethodCash, CashReceived: cash("40")})
	require.NoError(t, err)

	all, err := f.orch.ListSales(ctx, sale.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "emp-2", all[0].EmployeeID, "newest first")

	byEmployee, err := f.orch.ListSales(ctx, sale.Filter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, byEmployee, 1)

	afternoon, err := f.orch.ListSales(ctx, sale.Filter{ShiftType: shift.TypeAfternoon})
	require.NoError(t, err)
	require.Len(t, afternoon, 1)
	assert.Equal(t, payment.MethodCash, afternoon[0].PaymentMethod)

	paged, err := f.orch.ListSales(ctx, sale.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "emp-1", paged[0].EmployeeID)
}

// MockStore simula a persistência de vendas
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CommitSale(ctx context.Context, c sale.Commit) (*sale.Sale, error) {
	args := m.Called(ctx, c)
	s, _ := args.Get(0).(*sale.Sale)
	return s, args.Error(1)
}

func (m *MockStore) GetSale(ctx context.Context, saleID string) (*sale.Sale, error) {
	args := m.Called(ctx, saleID)
	s, _ := args.Get(0).(*sale.Sale)
	return s, args.Error(1)
}

func (m *MockStore) ListSales(ctx context.Context, f sale.Filter) ([]sale.Sale, error) {
	args := m.Called(ctx, f)
	s, _ := args.Get(0).([]sale.Sale)
	return s, args.Error(1)
}

func (m *MockStore) CancelSale(ctx context.Context, c sale.Cancellation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockStore) StockHistory(ctx context.Context, productID string, limit int) ([]sale.StockMovement, error) {
	args := m.Called(ctx, productID, limit)
	s, _ := args.Get(0).([]sale.StockMovement)
	return s, args.Error(1)
}

// MockShiftRepository simula o repositório de turnos
type MockShiftRepository struct {
	mock.Mock
}

func (m *MockShiftRepository) FindShift(ctx context.Context, employeeID, date string, t shift.Type) (*shift.Shift, error) {
	args := m.Called(ctx, employeeID, date, t)
	s, _ := args.Get(0).(*shift.Shift)
	return s, args.Error(1)
}

func (m *MockShiftRepository) CreateShift(ctx context.Context, s *shift.Shift) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockShiftRepository) GetShift(ctx context.Context, id string) (*shift.Shift, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*shift.Shift)
	return s, args.Error(1)
}

func (m *MockShiftRepository) UpdateShiftTotals(ctx context.Context, id string, delta shift.Totals) (*shift.Shift, error) {
	args := m.Called(ctx, id, delta)
	s, _ := args.Get(0).(*shift.Shift)
	return s, args.Error(1)
}

func (m *MockShiftRepository) CloseShift(ctx context.Context, id string, end time.Time, notes string) (*shift.Shift, error) {
	args := m.Called(ctx, id, end, notes)
	s, _ := args.Get(0).(*shift.Shift)
	return s, args.Error(1)
}

type oneProduct struct{ p catalog.Product }

func (o oneProduct) GetProduct(context.Context, string) (*catalog.Product, error) {
	p := o.p
	return &p, nil
}

func (o oneProduct) ListProducts(context.Context, catalog.Filter) ([]catalog.Product, error) {
	return []catalog.Product{o.p}, nil
}

func TestCheckout_CommitFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	product := catalog.Product{
		ID: "p-1", Name: "Widget", Stock: 10, IsActive: true,
		Prices: []catalog.PriceVariant{{ID: "v-1", ProductID: "p-1", Label: "ซองละ", Price: decimal.RequireFromString("40")}},
	}
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Arrange
	store := new(MockStore)
	shifts := new(MockShiftRepository)
	ledger := shift.NewLedger(shifts, shift.WithClock(func() time.Time { return clock }), shift.WithLocation(time.UTC))
	orch := sale.NewOrchestrator(store, oneProduct{p: product}, ledger)

	m := cart.NewManager("s-1")
	_, err := m.AddLine(ctx, &product, product.Prices[0], 2)
	require.NoError(t, err)

	shifts.On("FindShift", mock.Anything, "emp-1", "2026-03-14", shift.TypeMorning).Return(nil, errors.New("timeout"))
	store.On("CommitSale", mock.Anything, mock.MatchedBy(func(c sale.Commit) bool {
		return c.ShiftID == "" && c.Sale.Total.Equal(decimal.RequireFromString("80")) && len(c.Sale.Lines) == 1
	})).Return(nil, errors.New("connection reset by peer"))

	// Act
	_, err = orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	// Assert
	require.ErrorIs(t, err, sale.ErrCheckoutFailed)
	var ce *sale.CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, sale.StepCommit, ce.Step)
	assert.Contains(t, err.Error(), ce.SaleNumber)
	assert.Equal(t, 2, m.Totals().ItemCount)
	store.AssertNumberOfCalls(t, "CommitSale", 1)
	store.AssertExpectations(t)
	shifts.AssertExpectations(t)
}

func TestCheckout_AutoStartShiftTravelsWithCommit(t *testing.T) {
	ctx := context.Background()
	product := catalog.Product{
		ID: "p-1", Name: "Widget", Stock: 10, IsActive: true,
		Prices: []catalog.PriceVariant{{ID: "v-1", ProductID: "p-1", Label: "ซองละ", Price: decimal.RequireFromString("40")}},
	}
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Arrange
	store := new(MockStore)
	shifts := new(MockShiftRepository)
	ledger := shift.NewLedger(shifts, shift.WithClock(func() time.Time { return clock }), shift.WithLocation(time.UTC))
	orch := sale.NewOrchestrator(store, oneProduct{p: product}, ledger, sale.WithAutoStart(shift.DefaultAutoStartPolicy))

	m := cart.NewManager("s-1")
	_, err := m.AddLine(ctx, &product, product.Prices[0], 1)
	require.NoError(t, err)

	shifts.On("FindShift", mock.Anything, "emp-1", "2026-03-14", shift.TypeMorning).Return(nil, shift.ErrShiftNotFound)
	store.On("CommitSale", mock.Anything, mock.MatchedBy(func(c sale.Commit) bool {
		return c.OpenShift != nil &&
			c.ShiftID == c.OpenShift.ID &&
			c.OpenShift.EmployeeID == "emp-1" &&
			c.OpenShift.Type == shift.TypeMorning &&
			c.OpenShift.Date == "2026-03-14"
	})).Return(nil, sale.ErrStockFloor)

	// Act
	_, err = orch.Checkout(ctx, m, sale.Request{EmployeeID: "emp-1", PaymentMethod: payment.MethodTransfer})

	// Assert
	require.ErrorIs(t, err, sale.ErrStockFloor)
	shifts.AssertNotCalled(t, "CreateShift", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
	shifts.AssertExpectations(t)
}
