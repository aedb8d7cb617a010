package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

const saleColumns = `
	id::text, sale_number, employee_id, total_amount::text, payment_method,
	cash_received::text, change_amount::text, shift_type, COALESCE(shift_id::text, ''),
	sale_date::text, notes, created_at`

// SaleRepository implementa sale.Store usando PostgreSQL
type SaleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSaleRepository cria uma nova instância de SaleRepository
func NewSaleRepository(db *pgxpool.Pool, logger *zap.Logger) *SaleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaleRepository{db: db, logger: logger}
}

// CommitSale grava cabeçalho, itens, baixas de estoque e totais do turno em uma transação.
// A baixa é condicional (stock >= quantidade); se alguma falhar, nada é gravado.
func (r *SaleRepository) CommitSale(ctx context.Context, c sale.Commit) (*sale.Sale, error) {
	if c.Sale == nil {
		return nil, fmt.Errorf("commit without sale")
	}
	saved := *c.Sale
	saved.Lines = append([]sale.Line(nil), c.Sale.Lines...)

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		// 1. Abre o turno do auto-início ou trava o turno existente; sem turno a venda segue sem atribuição
		saved.ShiftID = ""
		if c.OpenShift != nil {
			id, err := openShift(ctx, tx, c.OpenShift)
			if err != nil {
				return err
			}
			saved.ShiftID = id
		} else if c.ShiftID != "" {
			var id string
			err := tx.QueryRow(ctx, `SELECT id::text FROM shifts WHERE id::text = $1 FOR UPDATE`, c.ShiftID).Scan(&id)
			switch {
			case err == nil:
				saved.ShiftID = id
			case errors.Is(err, pgx.ErrNoRows):
				r.logger.Warn("⚠️ Shift vanished before commit, sale not attributed", zap.String("shift_id", c.ShiftID))
			default:
				return fmt.Errorf("failed to lock shift: %w", err)
			}
		}

		// 2. Cabeçalho
		var shiftID any
		if saved.ShiftID != "" {
			shiftID = saved.ShiftID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO sales (id, sale_number, employee_id, total_amount, payment_method, cash_received,
			                   change_amount, shift_type, shift_id, sale_date, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, saved.ID, saved.Number, saved.EmployeeID, saved.Total, string(saved.PaymentMethod), saved.CashReceived,
			saved.Change, string(saved.ShiftType), shiftID, saved.SaleDate, saved.Notes, saved.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return sale.ErrDuplicateSaleNumber
			}
			return fmt.Errorf("failed to insert sale: %w", err)
		}

		// 3. Itens
		for i, l := range saved.Lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO sale_items (id, sale_id, line_no, product_id, price_id, product_name, price_label,
				                        unit_price, quantity, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, uuid.New().String(), saved.ID, i+1, l.ProductID, l.PriceID, l.Name, l.PriceLabel,
				l.UnitPrice, l.Quantity, l.Subtotal)
			if err != nil {
				return fmt.Errorf("failed to insert sale item %d: %w", i+1, err)
			}
		}

		// 4. Baixa de estoque em ordem de produto para evitar deadlock entre checkouts
		for _, l := range linesByProduct(saved.Lines) {
			if err := moveStock(ctx, tx, l.ProductID, -l.Quantity, sale.ChangeTypeSale, saved.EmployeeID, saved.ID); err != nil {
				return err
			}
		}

		// 5. Turno
		if saved.ShiftID != "" {
			if _, err := updateShiftTotals(ctx, tx, saved.ShiftID, saved.Delta()); err != nil {
				return fmt.Errorf("failed to update shift totals: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// openShift insere o turno dentro da transação da venda. Se a tripla já existe, trava e usa o
// turno existente quando ele está aberto; um turno fechado deixa a venda sem atribuição.
func openShift(ctx context.Context, q querier, s *shift.Shift) (string, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO shifts (id, employee_id, shift_date, shift_type, start_time, notes,
		                    total_sales, cash_sales, transfer_sales, total_orders, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (employee_id, shift_date, shift_type) DO NOTHING
	`, s.ID, s.EmployeeID, s.Date, string(s.Type), s.StartTime, s.Notes,
		s.TotalSales, s.CashSales, s.TransferSales, s.OrderCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to open shift: %w", err)
	}

	var id string
	err = q.QueryRow(ctx, `
		SELECT id::text FROM shifts
		WHERE employee_id = $1 AND shift_date = $2 AND shift_type = $3 AND end_time IS NULL
		FOR UPDATE
	`, s.EmployeeID, s.Date, string(s.Type)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock shift: %w", err)
	}
	return id, nil
}

func linesByProduct(lines []sale.Line) []sale.Line {
	sorted := append([]sale.Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

// moveStock aplica change ao estoque com piso zero e registra o histórico
func moveStock(ctx context.Context, q querier, productID string, change int, changeType, employeeID, referenceID string) error {
	var after int
	err := q.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock
	`, productID, change).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isCheckViolation(err) {
			return fmt.Errorf("%w: product %s, change %d", sale.ErrStockFloor, productID, change)
		}
		return fmt.Errorf("failed to update stock: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO stock_history (id, product_id, change_type, quantity_change, quantity_before,
		                           quantity_after, employee_id, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New().String(), productID, changeType, change, after-change, after, employeeID, referenceID)
	if err != nil {
		return fmt.Errorf("failed to insert stock history: %w", err)
	}
	return nil
}

func scanSale(row scanner) (*sale.Sale, error) {
	var (
		s                     sale.Sale
		total, change, method string
		shiftType             string
		cashReceived          *string
	)
	err := row.Scan(&s.ID, &s.Number, &s.EmployeeID, &total, &method,
		&cashReceived, &change, &shiftType, &s.ShiftID,
		&s.SaleDate, &s.Notes, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrSaleNotFound
		}
		return nil, err
	}
	s.PaymentMethod = payment.Method(method)
	s.ShiftType = shift.Type(shiftType)
	if err := parseDecimals([]*decimal.Decimal{&s.Total, &s.Change}, total, change); err != nil {
		return nil, err
	}
	if cashReceived != nil {
		d, err := parseDecimal(*cashReceived)
		if err != nil {
			return nil, err
		}
		s.CashReceived = &d
	}
	return &s, nil
}

func loadItems(ctx context.Context, q querier, saleIDs []string) (map[string][]sale.Line, error) {
	rows, err := q.Query(ctx, `
		SELECT sale_id::text, product_id, price_id, product_name, price_label,
		       unit_price::text, quantity, subtotal::text
		FROM sale_items
		WHERE sale_id::text = ANY($1)
		ORDER BY sale_id, line_no
	`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]sale.Line, len(saleIDs))
	for rows.Next() {
		var (
			saleID         string
			l              sale.Line
			unit, subtotal string
		)
		if err := rows.Scan(&saleID, &l.ProductID, &l.PriceID, &l.Name, &l.PriceLabel, &unit, &l.Quantity, &subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		if err := parseDecimals([]*decimal.Decimal{&l.UnitPrice, &l.Subtotal}, unit, subtotal); err != nil {
			return nil, err
		}
		out[saleID] = append(out[saleID], l)
	}
	return out, rows.Err()
}

func getSale(ctx context.Context, q querier, saleID string, forUpdate bool) (*sale.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id::text = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSale(q.QueryRow(ctx, query, saleID))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, q, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Lines = items[s.ID]
	return s, nil
}

// GetSale busca uma venda com seus itens
func (r *SaleRepository) GetSale(ctx context.Context, saleID string) (*sale.Sale, error) {
	return getSale(ctx, r.db, saleID, false)
}

// buildSalesQuery monta a listagem de vendas a partir do filtro
func buildSalesQuery(f sale.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployeeID != "" {
		add("employee_id = $%d", f.EmployeeID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.ShiftType != "" {
		add("shift_type = $%d", string(f.ShiftType))
	}
	if f.PaymentMethod != "" {
		add("payment_method = $%d", string(f.PaymentMethod))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, sale_number DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// ListSales lista vendas mais recentes primeiro
func (r *SaleRepository) ListSales(ctx context.Context, f sale.Filter) ([]sale.Sale, error) {
	query, args := buildSalesQuery(f)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var (
		sales []sale.Sale
		ids   []string
	)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, *s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return []sale.Sale{}, nil
	}

	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = items[sales[i].ID]
	}
	return sales, nil
}

// CancelSale grava o registro original, devolve o estoque, desconta do turno e apaga a venda
func (r *SaleRepository) CancelSale(ctx context.Context, c sale.Cancellation) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := getSale(ctx, tx, c.Sale.ID, true)
		if err != nil {
			return err
		}

		record, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to encode sale record: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sale_cancellations (id, sale_id, sale_number, reason, cancelled_by, cancelled_at, sale_record)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, current.ID, current.Number, c.Reason, c.CancelledBy, c.CancelledAt, record)
		if err != nil {
			return fmt.Errorf("failed to insert cancellation history: %w", err)
		}

		for _, l := range linesByProduct(current.Lines) {
			err := moveStock(ctx, tx, l.ProductID, l.Quantity, sale.ChangeTypeCancellation, c.CancelledBy, current.ID)
			if errors.Is(err, sale.ErrStockFloor) {
				// produto removido do catálogo: não há estoque para devolver
				r.logger.Warn("⚠️ Product missing while restoring stock", zap.String("product_id", l.ProductID))
				continue
			}
			if err != nil {
				return err
			}
		}

		if current.ShiftID != "" {
			_, err := updateShiftTotals(ctx, tx, current.ShiftID, current.Delta().Negate())
			if err != nil && !errors.Is(err, shift.ErrShiftNotFound) {
				return fmt.Errorf("failed to update shift totals: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM sales WHERE id::text = $1`, current.ID); err != nil {
			return fmt.Errorf("failed to delete sale: %w", err)
		}
		return nil
	})
}

// StockHistory lista as movimentações de um produto, mais recentes primeiro
func (r *SaleRepository) StockHistory(ctx context.Context, productID string, limit int) ([]sale.StockMovement, error) {
	query := `
		SELECT id::text, product_id, change_type, quantity_change, quantity_before, quantity_after,
		       employee_id, reference_id, created_at
		FROM stock_history
		WHERE product_id = $1
		ORDER BY created_at DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock history: %w", err)
	}
	defer rows.Close()

	out := make([]sale.StockMovement, 0)
	for rows.Next() {
		var m sale.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ChangeType, &m.QuantityChange, &m.QuantityBefore,
			&m.QuantityAfter, &m.EmployeeID, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
