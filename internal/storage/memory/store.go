package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

// Store guarda catálogo, vendas e turnos em memória. Um único mutex torna cada
// commit de venda atômico, como uma transação do banco.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	products      map[string]*catalog.Product
	productOrder  []string
	sales         map[string]*sale.Sale
	saleNumbers   map[string]string
	movements     []sale.StockMovement
	cancellations []sale.Cancellation
	shifts        map[string]*shift.Shift
}

// NewStore cria uma nova instância de Store
func NewStore() *Store {
	return &Store{
		now:         time.Now,
		products:    make(map[string]*catalog.Product),
		sales:       make(map[string]*sale.Sale),
		saleNumbers: make(map[string]string),
		shifts:      make(map[string]*shift.Shift),
	}
}

// SetClock substitui o relógio usado nas datas de histórico
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutProduct insere ou substitui um produto
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		s.productOrder = append(s.productOrder, p.ID)
	}
	cp := cloneProduct(&p)
	s.products[p.ID] = cp
}

// SetStock altera o estoque diretamente (ajuste administrativo)
func (s *Store) SetStock(productID string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.Stock = stock
	return nil
}

// ---- catalog.Accessor ----

func (s *Store) GetProduct(_ context.Context, productID string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) ListProducts(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.products[id]
		if filter.Matches(p) {
			out = append(out, *cloneProduct(p))
		}
	}
	return out, nil
}

// ---- shift.Repository ----

func (s *Store) FindShift(_ context.Context, employeeID, date string, t shift.Type) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sh := range s.shifts {
		if sh.EmployeeID == employeeID && sh.Date == date && sh.Type == t {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, shift.ErrShiftNotFound
}

func (s *Store) CreateShift(_ context.Context, sh *shift.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shifts {
		if existing.EmployeeID == sh.EmployeeID && existing.Date == sh.Date && existing.Type == sh.Type {
			return shift.ErrShiftAlreadyStarted
		}
	}
	cp := *sh
	s.shifts[sh.ID] = &cp
	return nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, shift.ErrShiftNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *Store) UpdateShiftTotals(_ context.Context, shiftID string, delta shift.Totals) (*shift.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, shift.ErrShiftNotFound
	}
	s.applyShiftDeltaLocked(sh, delta)
	cp := *sh
	return &cp, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, endTime time.Time, notes string) (*shift.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, shift.ErrShiftNotFound
	}
	if sh.EndTime != nil {
		return nil, shift.ErrShiftAlreadyEnded
	}
	end := endTime
	sh.EndTime = &end
	sh.Notes = notes
	sh.UpdatedAt = endTime
	cp := *sh
	return &cp, nil
}

// openShiftLocked grava o turno aberto junto com uma venda. Se a tripla já existe, usa o turno
// existente quando ele ainda está aberto.
func (s *Store) openShiftLocked(sh *shift.Shift) string {
	for _, existing := range s.shifts {
		if existing.EmployeeID == sh.EmployeeID && existing.Date == sh.Date && existing.Type == sh.Type {
			if existing.IsOpen() {
				return existing.ID
			}
			return ""
		}
	}
	cp := *sh
	s.shifts[sh.ID] = &cp
	return sh.ID
}

func (s *Store) applyShiftDeltaLocked(sh *shift.Shift, delta shift.Totals) {
	sh.Totals = sh.Totals.Add(delta)
	sh.UpdatedAt = s.now()
}

// ---- sale.Store ----

// CommitSale valida tudo antes de escrever; se qualquer baixa de estoque falhar nada é alterado.
func (s *Store) CommitSale(_ context.Context, c sale.Commit) (*sale.Sale, error) {
	if c.Sale == nil {
		return nil, fmt.Errorf("commit without sale")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.saleNumbers[c.Sale.Number]; dup {
		return nil, sale.ErrDuplicateSaleNumber
	}

	// 1. Verifica o piso de estoque para cada item, em ordem
	remaining := make(map[string]int)
	for _, l := range c.Sale.Lines {
		p, ok := s.products[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", catalog.ErrProductNotFound, l.ProductID)
		}
		if _, seen := remaining[l.ProductID]; !seen {
			remaining[l.ProductID] = p.Stock
		}
		if remaining[l.ProductID] < l.Quantity {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d", sale.ErrStockFloor, l.ProductID, remaining[l.ProductID], l.Quantity)
		}
		remaining[l.ProductID] -= l.Quantity
	}

	// 2. Escreve: venda, baixas com histórico e turno
	saved := cloneSale(c.Sale)
	now := s.now()
	for _, l := range saved.Lines {
		p := s.products[l.ProductID]
		before := p.Stock
		p.Stock -= l.Quantity
		s.movements = append(s.movements, sale.StockMovement{
			ID:             uuid.New().String(),
			ProductID:      l.ProductID,
			ChangeType:     sale.ChangeTypeSale,
			QuantityChange: -l.Quantity,
			QuantityBefore: before,
			QuantityAfter:  p.Stock,
			EmployeeID:     saved.EmployeeID,
			ReferenceID:    saved.ID,
			CreatedAt:      now,
		})
	}

	saved.ShiftID = ""
	shiftID := c.ShiftID
	if c.OpenShift != nil {
		shiftID = s.openShiftLocked(c.OpenShift)
	}
	if sh, ok := s.shifts[shiftID]; ok && shiftID != "" {
		s.applyShiftDeltaLocked(sh, saved.Delta())
		saved.ShiftID = sh.ID
	}

	s.sales[saved.ID] = saved
	s.saleNumbers[saved.Number] = saved.ID
	return cloneSale(saved), nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.sales[saleID]
	if !ok {
		return nil, sale.ErrSaleNotFound
	}
	return cloneSale(sl), nil
}

func (s *Store) ListSales(_ context.Context, f sale.Filter) ([]sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*sale.Sale, 0)
	for _, sl := range s.sales {
		if f.Matches(sl) {
			matched = append(matched, sl)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Number > matched[j].Number
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []sale.Sale{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]sale.Sale, 0, len(matched))
	for _, sl := range matched {
		out = append(out, *cloneSale(sl))
	}
	return out, nil
}

func (s *Store) CancelSale(_ context.Context, c sale.Cancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.sales[c.Sale.ID]
	if !ok {
		return sale.ErrSaleNotFound
	}

	now := s.now()
	for _, l := range sl.Lines {
		p, ok := s.products[l.ProductID]
		if !ok {
			// produto removido do catálogo: não há estoque para devolver
			continue
		}
		before := p.Stock
		p.Stock += l.Quantity
		s.movements = append(s.movements, sale.StockMovement{
			ID:             uuid.New().String(),
			ProductID:      l.ProductID,
			ChangeType:     sale.ChangeTypeCancellation,
			QuantityChange: l.Quantity,
			QuantityBefore: before,
			QuantityAfter:  p.Stock,
			EmployeeID:     c.CancelledBy,
			ReferenceID:    sl.ID,
			CreatedAt:      now,
		})
	}

	if sh, ok := s.shifts[sl.ShiftID]; ok && sl.ShiftID != "" {
		s.applyShiftDeltaLocked(sh, sl.Delta().Negate())
	}

	c.Sale = *cloneSale(sl)
	s.cancellations = append(s.cancellations, c)
	delete(s.saleNumbers, sl.Number)
	delete(s.sales, sl.ID)
	return nil
}

func (s *Store) StockHistory(_ context.Context, productID string, limit int) ([]sale.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sale.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].ProductID != productID {
			continue
		}
		out = append(out, s.movements[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Cancellations retorna o histórico de cancelamentos (somente leitura)
func (s *Store) Cancellations() []sale.Cancellation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sale.Cancellation, len(s.cancellations))
	copy(out, s.cancellations)
	return out
}

func cloneProduct(p *catalog.Product) *catalog.Product {
	cp := *p
	cp.Prices = append([]catalog.PriceVariant(nil), p.Prices...)
	return &cp
}

func cloneSale(s *sale.Sale) *sale.Sale {
	cp := *s
	cp.Lines = append([]sale.Line(nil), s.Lines...)
	if s.CashReceived != nil {
		v := *s.CashReceived
		cp.CashReceived = &v
	}
	return &cp
}
