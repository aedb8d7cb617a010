package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

const shiftColumns = `
	id::text, employee_id, shift_date::text, shift_type, start_time, end_time, notes,
	total_sales::text, cash_sales::text, transfer_sales::text, total_orders,
	created_at, updated_at`

// IDs chegam da URL; comparar como texto evita erro de sintaxe de UUID e devolve "não encontrado".
const (
	getShiftQuery = `SELECT ` + shiftColumns + ` FROM shifts WHERE id::text = $1`

	updateShiftTotalsQuery = `
		UPDATE shifts
		SET total_sales    = total_sales + $2,
		    cash_sales     = cash_sales + $3,
		    transfer_sales = transfer_sales + $4,
		    total_orders   = total_orders + $5,
		    updated_at     = NOW()
		WHERE id::text = $1
		RETURNING ` + shiftColumns

	closeShiftQuery = `
		UPDATE shifts
		SET end_time = $2, notes = $3, updated_at = NOW()
		WHERE id::text = $1 AND end_time IS NULL
		RETURNING ` + shiftColumns
)

// ShiftRepository implementa shift.Repository usando PostgreSQL
type ShiftRepository struct {
	db *pgxpool.Pool
}

// NewShiftRepository cria uma nova instância de ShiftRepository
func NewShiftRepository(db *pgxpool.Pool) *ShiftRepository {
	return &ShiftRepository{db: db}
}

func scanShift(row scanner) (*shift.Shift, error) {
	var (
		s                         shift.Shift
		shiftType                 string
		total, cashSum, transfers string
	)
	err := row.Scan(
		&s.ID, &s.EmployeeID, &s.Date, &shiftType, &s.StartTime, &s.EndTime, &s.Notes,
		&total, &cashSum, &transfers, &s.OrderCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shift.ErrShiftNotFound
		}
		return nil, err
	}
	s.Type = shift.Type(shiftType)
	if err := parseDecimals(
		[]*decimal.Decimal{&s.TotalSales, &s.CashSales, &s.TransferSales},
		total, cashSum, transfers,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindShift busca o turno pela tripla (funcionário, data, tipo)
func (r *ShiftRepository) FindShift(ctx context.Context, employeeID, date string, t shift.Type) (*shift.Shift, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE employee_id = $1 AND shift_date = $2 AND shift_type = $3
	`, employeeID, date, string(t))
	return scanShift(row)
}

// CreateShift insere um turno; a restrição UNIQUE garante um turno por tripla
func (r *ShiftRepository) CreateShift(ctx context.Context, s *shift.Shift) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO shifts (id, employee_id, shift_date, shift_type, start_time, notes,
		                    total_sales, cash_sales, transfer_sales, total_orders, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.EmployeeID, s.Date, string(s.Type), s.StartTime, s.Notes,
		s.TotalSales, s.CashSales, s.TransferSales, s.OrderCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shift.ErrShiftAlreadyStarted
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

// GetShift busca um turno pelo ID
func (r *ShiftRepository) GetShift(ctx context.Context, shiftID string) (*shift.Shift, error) {
	row := r.db.QueryRow(ctx, getShiftQuery, shiftID)
	return scanShift(row)
}

// UpdateShiftTotals soma o delta aos totais
func (r *ShiftRepository) UpdateShiftTotals(ctx context.Context, shiftID string, delta shift.Totals) (*shift.Shift, error) {
	return updateShiftTotals(ctx, r.db, shiftID, delta)
}

func updateShiftTotals(ctx context.Context, q querier, shiftID string, delta shift.Totals) (*shift.Shift, error) {
	row := q.QueryRow(ctx, updateShiftTotalsQuery,
		shiftID, delta.TotalSales, delta.CashSales, delta.TransferSales, delta.OrderCount)
	return scanShift(row)
}

// CloseShift fecha um turno aberto
func (r *ShiftRepository) CloseShift(ctx context.Context, shiftID string, endTime time.Time, notes string) (*shift.Shift, error) {
	row := r.db.QueryRow(ctx, closeShiftQuery,
		shiftID, endTime, notes)
	s, err := scanShift(row)
	if !errors.Is(err, shift.ErrShiftNotFound) {
		return s, err
	}

	// nenhuma linha: o turno não existe ou já foi fechado
	if _, getErr := r.GetShift(ctx, shiftID); getErr != nil {
		return nil, getErr
	}
	return nil, shift.ErrShiftAlreadyEnded
}
