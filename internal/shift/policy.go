package shift

import (
	"time"

	"github.com/shopspring/decimal"
)

// AutoStartPolicy decide se um turno deve ser aberto automaticamente
type AutoStartPolicy func(now time.Time, current *Shift) bool

// WorkingHoursPolicy abre um turno quando não há turno aberto e a hora está em [startHour, endHour).
func WorkingHoursPolicy(startHour, endHour int) AutoStartPolicy {
	return func(now time.Time, current *Shift) bool {
		if current.IsOpen() {
			return false
		}
		hour := now.Hour()
		return hour >= startHour && hour < endHour
	}
}

// DefaultAutoStartPolicy: 06:00 às 23:00
var DefaultAutoStartPolicy = WorkingHoursPolicy(6, 23)

// Status do turno
const (
	StatusNoShift   = "no_shift"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Status retorna no_shift, active ou completed
func Status(s *Shift) string {
	switch {
	case s == nil:
		return StatusNoShift
	case s.EndTime == nil:
		return StatusActive
	default:
		return StatusCompleted
	}
}

// Duration is the elapsed time of the shift, up to now while it is still open.
func Duration(s *Shift, now time.Time) time.Duration {
	if s == nil || s.StartTime.IsZero() {
		return 0
	}
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Stats resume o desempenho de um turno
type Stats struct {
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalOrders       int             `json:"total_orders"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	Duration          time.Duration   `json:"duration"`
	SalesPerHour      decimal.Decimal `json:"sales_per_hour"`
	OrdersPerHour     float64         `json:"orders_per_hour"`
}

// ComputeStats calcula as estatísticas do turno
func ComputeStats(s *Shift, now time.Time) Stats {
	if s == nil {
		return Stats{TotalSales: decimal.Zero, AverageOrderValue: decimal.Zero, SalesPerHour: decimal.Zero}
	}

	st := Stats{
		TotalSales:        s.TotalSales,
		TotalOrders:       s.OrderCount,
		AverageOrderValue: decimal.Zero,
		Duration:          Duration(s, now),
		SalesPerHour:      decimal.Zero,
	}
	if s.OrderCount > 0 {
		st.AverageOrderValue = s.TotalSales.Div(decimal.NewFromInt(int64(s.OrderCount)))
	}
	hours := st.Duration.Hours()
	if hours > 0 {
		st.SalesPerHour = s.TotalSales.Div(decimal.NewFromFloat(hours))
		st.OrdersPerHour = float64(s.OrderCount) / hours
	}
	return st
}
