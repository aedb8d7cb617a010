package shift

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
)

// DateLayout é o formato da data civil de um turno
const DateLayout = "2006-01-02"

var (
	ErrShiftAlreadyStarted = errors.New("shift already started for this employee, date and type")
	ErrShiftNotFound       = errors.New("shift not found")
	ErrShiftAlreadyEnded   = errors.New("shift already ended")
	ErrInvalidShiftType    = errors.New("invalid shift type")
	ErrInvalidEmployee     = errors.New("employee id is required")
)

// Totals agrega os valores vendidos em um turno
type Totals struct {
	TotalSales    decimal.Decimal `json:"total_sales"`
	CashSales     decimal.Decimal `json:"cash_sales"`
	TransferSales decimal.Decimal `json:"transfer_sales"`
	OrderCount    int             `json:"total_orders"`
}

// SaleDelta builds the aggregate change caused by one sale.
func SaleDelta(method payment.Method, amount decimal.Decimal) Totals {
	d := Totals{TotalSales: amount, OrderCount: 1}
	switch method {
	case payment.MethodCash:
		d.CashSales = amount
	case payment.MethodTransfer:
		d.TransferSales = amount
	}
	return d
}

// Add soma dois agregados
func (t Totals) Add(o Totals) Totals {
	return Totals{
		TotalSales:    t.TotalSales.Add(o.TotalSales),
		CashSales:     t.CashSales.Add(o.CashSales),
		TransferSales: t.TransferSales.Add(o.TransferSales),
		OrderCount:    t.OrderCount + o.OrderCount,
	}
}

// Negate inverte o sinal do agregado (usado no cancelamento de vendas)
func (t Totals) Negate() Totals {
	return Totals{
		TotalSales:    t.TotalSales.Neg(),
		CashSales:     t.CashSales.Neg(),
		TransferSales: t.TransferSales.Neg(),
		OrderCount:    -t.OrderCount,
	}
}

// Shift representa um turno de trabalho de um funcionário
type Shift struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	Date       string     `json:"shift_date"`
	Type       Type       `json:"shift_type"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Totals
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewShift cria uma nova instância de Shift com os totais zerados
func NewShift(id, employeeID, date string, t Type, start time.Time) *Shift {
	return &Shift{
		ID:         id,
		EmployeeID: employeeID,
		Date:       date,
		Type:       t,
		StartTime:  start,
		Totals: Totals{
			TotalSales:    decimal.Zero,
			CashSales:     decimal.Zero,
			TransferSales: decimal.Zero,
		},
		CreatedAt: start,
		UpdatedAt: start,
	}
}

// IsOpen reports whether the shift has not been closed yet.
func (s *Shift) IsOpen() bool {
	return s != nil && s.EndTime == nil
}

// Repository define a interface de persistência de turnos
type Repository interface {
	// FindShift busca o turno pela tripla (funcionário, data, tipo); ErrShiftNotFound se ausente
	FindShift(ctx context.Context, employeeID, date string, t Type) (*Shift, error)

	// CreateShift persiste um turno novo; ErrShiftAlreadyStarted se a tripla já existir
	CreateShift(ctx context.Context, s *Shift) error

	// GetShift busca um turno pelo ID
	GetShift(ctx context.Context, shiftID string) (*Shift, error)

	// UpdateShiftTotals soma o delta aos totais do turno
	UpdateShiftTotals(ctx context.Context, shiftID string, delta Totals) (*Shift, error)

	// CloseShift define o horário de término e as observações
	CloseShift(ctx context.Context, shiftID string, endTime time.Time, notes string) (*Shift, error)
}
