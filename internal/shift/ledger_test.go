package shift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
)

// MockRepository simula o repositório de turnos
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindShift(ctx context.Context, employeeID, date string, t Type) (*Shift, error) {
	args := m.Called(ctx, employeeID, date, t)
	s, _ := args.Get(0).(*Shift)
	return s, args.Error(1)
}

func (m *MockRepository) CreateShift(ctx context.Context, s *Shift) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) GetShift(ctx context.Context, shiftID string) (*Shift, error) {
	args := m.Called(ctx, shiftID)
	s, _ := args.Get(0).(*Shift)
	return s, args.Error(1)
}

func (m *MockRepository) UpdateShiftTotals(ctx context.Context, shiftID string, delta Totals) (*Shift, error) {
	args := m.Called(ctx, shiftID, delta)
	s, _ := args.Get(0).(*Shift)
	return s, args.Error(1)
}

func (m *MockRepository) CloseShift(ctx context.Context, shiftID string, endTime time.Time, notes string) (*Shift, error) {
	args := m.Called(ctx, shiftID, endTime, notes)
	s, _ := args.Get(0).(*Shift)
	return s, args.Error(1)
}

// fakeRepository keeps shifts in a map so sequences of calls can be tested end to end
type fakeRepository struct {
	shifts map[string]*Shift
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{shifts: map[string]*Shift{}}
}

func (f *fakeRepository) FindShift(_ context.Context, employeeID, date string, t Type) (*Shift, error) {
	for _, s := range f.shifts {
		if s.EmployeeID == employeeID && s.Date == date && s.Type == t {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrShiftNotFound
}

func (f *fakeRepository) CreateShift(_ context.Context, s *Shift) error {
	for _, existing := range f.shifts {
		if existing.EmployeeID == s.EmployeeID && existing.Date == s.Date && existing.Type == s.Type {
			return ErrShiftAlreadyStarted
		}
	}
	cp := *s
	f.shifts[s.ID] = &cp
	return nil
}

func (f *fakeRepository) GetShift(_ context.Context, id string) (*Shift, error) {
	s, ok := f.shifts[id]
	if !ok {
		return nil, ErrShiftNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepository) UpdateShiftTotals(_ context.Context, id string, delta Totals) (*Shift, error) {
	s, ok := f.shifts[id]
	if !ok {
		return nil, ErrShiftNotFound
	}
	s.Totals = s.Totals.Add(delta)
	cp := *s
	return &cp, nil
}

func (f *fakeRepository) CloseShift(_ context.Context, id string, end time.Time, notes string) (*Shift, error) {
	s, ok := f.shifts[id]
	if !ok {
		return nil, ErrShiftNotFound
	}
	s.EndTime = &end
	s.Notes = notes
	cp := *s
	return &cp, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStartShift_DefaultsToCurrentType(t *testing.T) {
	repo := newFakeRepository()
	ledger := NewLedger(repo, WithClock(fixedClock(at(9, 15, 0))), WithLocation(time.UTC))

	s, err := ledger.StartShift(context.Background(), "emp-1", "")

	require.NoError(t, err)
	assert.Equal(t, TypeMorning, s.Type)
	assert.Equal(t, "2026-03-14", s.Date)
	assert.True(t, s.TotalSales.IsZero())
	assert.Equal(t, 0, s.OrderCount)
	assert.True(t, s.IsOpen())
}

func TestStartShift_TwiceFails(t *testing.T) {
	repo := newFakeRepository()
	ledger := NewLedger(repo, WithClock(fixedClock(at(15, 0, 0))), WithLocation(time.UTC))
	ctx := context.Background()

	_, err := ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)

	_, err = ledger.StartShift(ctx, "emp-1", "")
	assert.ErrorIs(t, err, ErrShiftAlreadyStarted)

	// outro funcionário no mesmo turno não conflita
	_, err = ledger.StartShift(ctx, "emp-2", "")
	assert.NoError(t, err)

	// tipo explícito diferente também não conflita
	_, err = ledger.StartShift(ctx, "emp-1", TypeNight)
	assert.NoError(t, err)
}

func TestStartShift_Validation(t *testing.T) {
	ledger := NewLedger(newFakeRepository())

	_, err := ledger.StartShift(context.Background(), " ", "")
	assert.ErrorIs(t, err, ErrInvalidEmployee)

	_, err = ledger.StartShift(context.Background(), "emp-1", Type("brunch"))
	assert.ErrorIs(t, err, ErrInvalidShiftType)
}

func TestStartShift_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	ledger := NewLedger(mockRepo, WithClock(fixedClock(at(9, 0, 0))), WithLocation(time.UTC))
	ctx := context.Background()

	mockRepo.On("FindShift", ctx, "emp-1", "2026-03-14", TypeMorning).Return(nil, errors.New("connection refused"))

	_, err := ledger.StartShift(ctx, "emp-1", "")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrShiftAlreadyStarted)
	mockRepo.AssertNotCalled(t, "CreateShift", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestStartShift_UniqueViolationOnCreate(t *testing.T) {
	mockRepo := new(MockRepository)
	ledger := NewLedger(mockRepo, WithClock(fixedClock(at(9, 0, 0))), WithLocation(time.UTC))
	ctx := context.Background()

	mockRepo.On("FindShift", ctx, "emp-1", "2026-03-14", TypeMorning).Return(nil, ErrShiftNotFound)
	mockRepo.On("CreateShift", ctx, mock.AnythingOfType("*shift.Shift")).Return(ErrShiftAlreadyStarted)

	_, err := ledger.StartShift(ctx, "emp-1", "")

	assert.ErrorIs(t, err, ErrShiftAlreadyStarted)
	mockRepo.AssertExpectations(t)
}

func TestEndShift(t *testing.T) {
	repo := newFakeRepository()
	clock := at(9, 0, 0)
	ledger := NewLedger(repo, WithClock(func() time.Time { return clock }), WithLocation(time.UTC))
	ctx := context.Background()

	s, err := ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)

	clock = at(13, 30, 0)
	closed, err := ledger.EndShift(ctx, s.ID, "drawer counted")
	require.NoError(t, err)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, at(13, 30, 0), *closed.EndTime)
	assert.Equal(t, "drawer counted", closed.Notes)

	_, err = ledger.EndShift(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrShiftAlreadyEnded)

	_, err = ledger.EndShift(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrShiftNotFound)
}

func TestCurrentShift(t *testing.T) {
	repo := newFakeRepository()
	clock := at(9, 0, 0)
	ledger := NewLedger(repo, WithClock(func() time.Time { return clock }), WithLocation(time.UTC))
	ctx := context.Background()

	current, err := ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, current)

	started, err := ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)

	current, err = ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, started.ID, current.ID)

	// passou para o turno da tarde: o turno da manhã não é mais o atual
	clock = at(14, 0, 0)
	current, err = ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, current)

	// turno fechado não é retornado
	clock = at(10, 0, 0)
	_, err = ledger.EndShift(ctx, started.ID, "")
	require.NoError(t, err)
	current, err = ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestRecordSale_IsPure(t *testing.T) {
	ledger := NewLedger(newFakeRepository(), WithClock(fixedClock(at(9, 0, 0))))
	s := NewShift("s-1", "emp-1", "2026-03-14", TypeMorning, at(8, 0, 0))

	updated := ledger.RecordSale(*s, SaleDelta(payment.MethodCash, decimal.RequireFromString("80")))
	updated = ledger.RecordSale(updated, SaleDelta(payment.MethodTransfer, decimal.RequireFromString("45.50")))

	assert.Equal(t, "125.5", updated.TotalSales.String())
	assert.Equal(t, "80", updated.CashSales.String())
	assert.Equal(t, "45.5", updated.TransferSales.String())
	assert.Equal(t, 2, updated.OrderCount)
	assert.True(t, s.TotalSales.IsZero(), "original shift must not change")
}

func TestEnsureShift(t *testing.T) {
	repo := newFakeRepository()
	clock := at(5, 0, 0)
	ledger := NewLedger(repo, WithClock(func() time.Time { return clock }), WithLocation(time.UTC))
	ctx := context.Background()

	s, started, err := ledger.EnsureShift(ctx, "emp-1", DefaultAutoStartPolicy)
	require.NoError(t, err)
	assert.False(t, started, "05:00 is outside working hours")
	assert.Nil(t, s)

	clock = at(7, 0, 0)
	s, started, err = ledger.EnsureShift(ctx, "emp-1", DefaultAutoStartPolicy)
	require.NoError(t, err)
	assert.True(t, started)
	require.NotNil(t, s)

	again, started, err := ledger.EnsureShift(ctx, "emp-1", DefaultAutoStartPolicy)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, s.ID, again.ID)

	_, started, err = ledger.EnsureShift(ctx, "emp-2", nil)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestPlanShift_DoesNotPersist(t *testing.T) {
	repo := newFakeRepository()
	clock := at(9, 0, 0)
	ledger := NewLedger(repo, WithClock(func() time.Time { return clock }), WithLocation(time.UTC))
	ctx := context.Background()

	// Act
	current, pending, err := ledger.PlanShift(ctx, "emp-1", clock, DefaultAutoStartPolicy)

	// Assert
	require.NoError(t, err)
	assert.Nil(t, current)
	require.NotNil(t, pending)
	assert.Equal(t, TypeMorning, pending.Type)
	assert.Equal(t, "2026-03-14", pending.Date)
	assert.True(t, pending.TotalSales.IsZero())

	stored, err := ledger.CurrentShift(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, stored, "planning must not write a shift")

	open, err := ledger.StartShift(ctx, "emp-1", "")
	require.NoError(t, err)
	current, pending, err = ledger.PlanShift(ctx, "emp-1", clock, DefaultAutoStartPolicy)
	require.NoError(t, err)
	assert.Nil(t, pending)
	require.NotNil(t, current)
	assert.Equal(t, open.ID, current.ID)

	_, _, err = ledger.PlanShift(ctx, " ", clock, DefaultAutoStartPolicy)
	assert.ErrorIs(t, err, ErrInvalidEmployee)
}

func TestWorkingHoursPolicy(t *testing.T) {
	policy := WorkingHoursPolicy(6, 23)

	assert.False(t, policy(at(5, 59, 0), nil))
	assert.True(t, policy(at(6, 0, 0), nil))
	assert.True(t, policy(at(22, 59, 0), nil))
	assert.False(t, policy(at(23, 0, 0), nil))

	open := NewShift("s-1", "emp-1", "2026-03-14", TypeMorning, at(6, 0, 0))
	assert.False(t, policy(at(9, 0, 0), open))
}

func TestComputeStats(t *testing.T) {
	s := NewShift("s-1", "emp-1", "2026-03-14", TypeMorning, at(6, 0, 0))
	s.Totals = Totals{
		TotalSales:    decimal.RequireFromString("400"),
		CashSales:     decimal.RequireFromString("300"),
		TransferSales: decimal.RequireFromString("100"),
		OrderCount:    4,
	}

	st := ComputeStats(s, at(10, 0, 0))

	assert.Equal(t, 4*time.Hour, st.Duration)
	assert.Equal(t, "100", st.AverageOrderValue.String())
	assert.Equal(t, "100", st.SalesPerHour.String())
	assert.InDelta(t, 1.0, st.OrdersPerHour, 0.0001)
	assert.Equal(t, StatusActive, Status(s))
	assert.Equal(t, StatusNoShift, Status(nil))

	end := at(12, 0, 0)
	s.EndTime = &end
	assert.Equal(t, 6*time.Hour, Duration(s, at(23, 0, 0)))
	assert.Equal(t, StatusCompleted, Status(s))
}

func TestDuration_Overnight(t *testing.T) {
	start := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	s := NewShift("s-1", "emp-1", "2026-03-14", TypeNight, start)
	s.EndTime = &end

	assert.Equal(t, 8*time.Hour, Duration(s, end))
}
