package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger controla o turno aberto de cada funcionário e seus totais
type Ledger struct {
	repository Repository
	now        func() time.Time
	location   *time.Location
	logger     *zap.Logger
}

// Option configura o Ledger
type Option func(*Ledger)

// WithClock substitui o relógio (útil em testes)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation define o fuso horário usado para data e classificação do turno
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.location = loc }
}

// WithLogger define o logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger cria uma nova instância de Ledger
func NewLedger(repository Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repository: repository,
		now:        time.Now,
		location:   time.Local,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock in the configured location.
func (l *Ledger) Now() time.Time {
	return l.now().In(l.location)
}

// Location retorna o fuso horário do ledger
func (l *Ledger) Location() *time.Location {
	return l.location
}

// StartShift abre um turno para o funcionário. Com shiftType vazio, usa o turno de "agora".
func (l *Ledger) StartShift(ctx context.Context, employeeID string, shiftType Type) (*Shift, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, ErrInvalidEmployee
	}

	now := l.Now()
	if shiftType == "" {
		shiftType = Classify(now)
	}
	if !shiftType.Valid() {
		return nil, ErrInvalidShiftType
	}
	date := now.Format(DateLayout)

	existing, err := l.repository.FindShift(ctx, employeeID, date, shiftType)
	if err != nil && !errors.Is(err, ErrShiftNotFound) {
		return nil, fmt.Errorf("failed to look up shift: %w", err)
	}
	if existing != nil {
		l.logger.Info("⚠️ Shift already started",
			zap.String("employee_id", employeeID),
			zap.String("shift_date", date),
			zap.String("shift_type", string(shiftType)),
		)
		return nil, ErrShiftAlreadyStarted
	}

	s := NewShift(uuid.New().String(), employeeID, date, shiftType, now)
	if err := l.repository.CreateShift(ctx, s); err != nil {
		if errors.Is(err, ErrShiftAlreadyStarted) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create shift: %w", err)
	}

	l.logger.Info("✅ Shift started",
		zap.String("shift_id", s.ID),
		zap.String("employee_id", employeeID),
		zap.String("shift_type", string(shiftType)),
	)
	return s, nil
}

// EndShift fecha o turno registrando horário de término e observações
func (l *Ledger) EndShift(ctx context.Context, shiftID, notes string) (*Shift, error) {
	current, err := l.repository.GetShift(ctx, shiftID)
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	if !current.IsOpen() {
		return nil, ErrShiftAlreadyEnded
	}

	closed, err := l.repository.CloseShift(ctx, shiftID, l.Now(), notes)
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) || errors.Is(err, ErrShiftAlreadyEnded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to close shift: %w", err)
	}

	l.logger.Info("✅ Shift ended",
		zap.String("shift_id", closed.ID),
		zap.String("employee_id", closed.EmployeeID),
		zap.String("total_sales", closed.TotalSales.String()),
		zap.Int("total_orders", closed.OrderCount),
	)
	return closed, nil
}

// CurrentShift retorna o turno aberto do funcionário para (hoje, turno de agora), ou nil.
func (l *Ledger) CurrentShift(ctx context.Context, employeeID string) (*Shift, error) {
	return l.ShiftAt(ctx, employeeID, l.Now())
}

// ShiftAt returns the open shift the given instant is attributed to, or nil.
func (l *Ledger) ShiftAt(ctx context.Context, employeeID string, at time.Time) (*Shift, error) {
	at = at.In(l.location)
	s, err := l.repository.FindShift(ctx, employeeID, at.Format(DateLayout), Classify(at))
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find current shift: %w", err)
	}
	if !s.IsOpen() {
		return nil, nil
	}
	return s, nil
}

// RecordSale aplica o delta de uma venda ao turno. Não persiste nada.
func (l *Ledger) RecordSale(s Shift, delta Totals) Shift {
	s.Totals = s.Totals.Add(delta)
	s.UpdatedAt = l.Now()
	return s
}

// ApplyDelta persists a totals delta for a shift outside of a checkout.
func (l *Ledger) ApplyDelta(ctx context.Context, shiftID string, delta Totals) (*Shift, error) {
	s, err := l.repository.UpdateShiftTotals(ctx, shiftID, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to update shift totals: %w", err)
	}
	return s, nil
}

// EnsureShift abre automaticamente um turno quando não há turno aberto e a política permite.
// Retorna o turno atual (ou o recém-criado) e se ele foi aberto nesta chamada.
func (l *Ledger) EnsureShift(ctx context.Context, employeeID string, policy AutoStartPolicy) (*Shift, bool, error) {
	current, pending, err := l.PlanShift(ctx, employeeID, l.Now(), policy)
	if err != nil || pending == nil {
		return current, false, err
	}

	if err := l.repository.CreateShift(ctx, pending); err != nil {
		// Um turno fechado para a mesma tripla bloqueia a reabertura
		if errors.Is(err, ErrShiftAlreadyStarted) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to create shift: %w", err)
	}
	l.logger.Info("🚀 Shift auto-started",
		zap.String("shift_id", pending.ID),
		zap.String("employee_id", employeeID),
		zap.String("shift_type", string(pending.Type)),
	)
	return pending, true, nil
}

// PlanShift devolve o turno aberto no instante at ou, quando não há e a política permite,
// um turno novo ainda não gravado. Quem chama decide onde gravá-lo.
func (l *Ledger) PlanShift(ctx context.Context, employeeID string, at time.Time, policy AutoStartPolicy) (current, pending *Shift, err error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, nil, ErrInvalidEmployee
	}
	at = at.In(l.location)

	current, err = l.ShiftAt(ctx, employeeID, at)
	if err != nil {
		return nil, nil, err
	}
	if policy == nil || !policy(at, current) {
		return current, nil, nil
	}
	return nil, NewShift(uuid.New().String(), employeeID, at.Format(DateLayout), Classify(at), at), nil
}
