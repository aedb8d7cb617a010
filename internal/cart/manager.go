package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
)

// Manager é o dono das linhas do carrinho de uma sessão.
// Toda mutação passa por ele para manter notificações e snapshot consistentes.
type Manager struct {
	mu        sync.Mutex
	sessionID string
	origin    string
	order     []LineKey
	lines     map[LineKey]*Line
	version   int64

	store  SnapshotStore
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	listeners listeners
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// Option configura o Manager
type Option func(*Manager)

// WithStore define o armazenamento durável do carrinho
func WithStore(store SnapshotStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithTTL define a idade máxima de um snapshot restaurável
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock substitui o relógio
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger define o logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithOrigin fixa o identificador desta instância (por padrão um UUID)
func WithOrigin(origin string) Option {
	return func(m *Manager) { m.origin = origin }
}

// NewManager cria uma nova instância de Manager para a sessão
func NewManager(sessionID string, opts ...Option) *Manager {
	m := &Manager{
		sessionID: sessionID,
		origin:    uuid.New().String(),
		lines:     make(map[LineKey]*Line),
		ttl:       DefaultSnapshotTTL,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("session_id", sessionID))
	return m
}

// SessionID retorna a sessão dona do carrinho
func (m *Manager) SessionID() string {
	return m.sessionID
}

// On registra um listener e retorna a função que o remove
func (m *Manager) On(event Event, fn Listener) func() {
	return m.listeners.add(event, fn)
}

// AddLine adiciona quantity unidades da variante. Se a linha já existe, as quantidades são somadas
// e o total é validado contra o estoque; em caso de falha a linha existente não muda.
func (m *Manager) AddLine(ctx context.Context, product *catalog.Product, variant catalog.PriceVariant, quantity int) (Line, error) {
	if product == nil || strings.TrimSpace(product.ID) == "" {
		return Line{}, ErrInvalidProduct
	}
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	if variant.ID == "" || !variant.Price.IsPositive() {
		return Line{}, ErrInvalidPrice
	}
	if err := catalog.ValidatePriceID(variant.ID); err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrInvalidLineKey, err)
	}

	var added Line
	err := m.mutate(ctx, func() ([]Notification, error) {
		key := LineKey{ProductID: product.ID, PriceID: variant.ID}

		if existing, ok := m.lines[key]; ok {
			combined := existing.Quantity + quantity
			if combined > product.Stock {
				return nil, ErrInsufficientStock
			}
			existing.Stock = product.Stock
			existing.setQuantity(combined)
			added = *existing
		} else {
			if quantity > product.Stock {
				return nil, ErrInsufficientStock
			}
			line := &Line{
				ProductID:    product.ID,
				PriceID:      variant.ID,
				Name:         product.Name,
				CategoryID:   product.CategoryID,
				CategoryName: product.CategoryName,
				PriceLabel:   variant.Label,
				UnitPrice:    variant.Price,
				Stock:        product.Stock,
				AddedAt:      m.now(),
			}
			line.setQuantity(quantity)
			m.lines[key] = line
			m.order = append(m.order, key)
			added = *line
		}

		cp := added
		return []Notification{{Event: EventItemAdded, Key: key, Line: &cp}}, nil
	})
	if err != nil {
		return Line{}, err
	}
	return added, nil
}

// RemoveLine remove a linha; ErrLineNotFound se ela não existe
func (m *Manager) RemoveLine(ctx context.Context, key LineKey) error {
	return m.mutate(ctx, func() ([]Notification, error) {
		return m.removeLocked(key)
	})
}

// SetQuantity altera a quantidade da linha. quantity <= 0 equivale a RemoveLine.
func (m *Manager) SetQuantity(ctx context.Context, key LineKey, quantity int) error {
	return m.mutate(ctx, func() ([]Notification, error) {
		line, ok := m.lines[key]
		if !ok {
			return nil, ErrLineNotFound
		}
		if quantity <= 0 {
			return m.removeLocked(key)
		}
		if quantity > line.Stock {
			return nil, ErrInsufficientStock
		}
		line.setQuantity(quantity)
		cp := *line
		return []Notification{{Event: EventQuantityUpdated, Key: key, Line: &cp}}, nil
	})
}

// RefreshStock atualiza o estoque capturado da linha sem mexer na quantidade
func (m *Manager) RefreshStock(ctx context.Context, key LineKey, stock int) error {
	if stock < 0 {
		stock = 0
	}

	m.mu.Lock()
	line, ok := m.lines[key]
	if !ok {
		m.mu.Unlock()
		return ErrLineNotFound
	}
	if line.Stock == stock {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return m.mutate(ctx, func() ([]Notification, error) {
		line, ok := m.lines[key]
		if !ok {
			return nil, ErrLineNotFound
		}
		line.Stock = stock
		return nil, nil
	})
}

// Clear esvazia o carrinho
func (m *Manager) Clear(ctx context.Context) error {
	return m.mutate(ctx, func() ([]Notification, error) {
		m.resetLocked()
		return []Notification{{Event: EventCartCleared}}, nil
	})
}

// Discard esvazia o carrinho e apaga o snapshot durável (logout)
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	m.resetLocked()
	if m.store != nil {
		v, err := m.store.Delete(ctx, m.sessionID, m.origin)
		if err != nil {
			m.logger.Warn("❌ Failed to delete cart snapshot", zap.Error(err))
		} else {
			m.version = v
		}
	}
	notes := m.stampLocked([]Notification{{Event: EventCartCleared}, {Event: EventCartChanged}})
	m.mu.Unlock()

	m.listeners.dispatch(notes)
	return nil
}

// Totals recalcula os agregados a partir das linhas
func (m *Manager) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalsLocked()
}

// Lines retorna cópias das linhas na ordem de inclusão
func (m *Manager) Lines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Line, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, *m.lines[k])
	}
	return out
}

// Line retorna uma cópia da linha
func (m *Manager) Line(key LineKey) (Line, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lines[key]
	if !ok {
		return Line{}, false
	}
	return *l, true
}

// IsEmpty reports whether the cart has no lines.
func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order) == 0
}

// HasProduct verifica se o produto está no carrinho; priceID vazio aceita qualquer variante
func (m *Manager) HasProduct(productID, priceID string) bool {
	return m.ProductQuantity(productID, priceID) > 0
}

// ProductQuantity soma as quantidades do produto; priceID vazio soma todas as variantes
func (m *Manager) ProductQuantity(productID, priceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, l := range m.lines {
		if l.ProductID == productID && (priceID == "" || l.PriceID == priceID) {
			total += l.Quantity
		}
	}
	return total
}

// Summary retorna os totais com categorias distintas e preço médio por item
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Totals: m.totalsLocked(), Categories: []string{}, AverageItemPrice: decimal.Zero}
	seen := make(map[string]bool)
	for _, k := range m.order {
		name := m.lines[k].CategoryName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		s.Categories = append(s.Categories, name)
	}
	if s.ItemCount > 0 {
		s.AverageItemPrice = s.Amount.Div(decimal.NewFromInt(int64(s.ItemCount)))
	}
	return s
}

// Restore carrega o snapshot durável e passa a acompanhar mudanças de outras abas.
// Snapshots corrompidos ou mais velhos que o TTL são apagados e o carrinho começa vazio.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	snap, err := m.store.Load(ctx, m.sessionID)
	switch {
	case errors.Is(err, ErrCorruptSnapshot):
		m.logger.Warn("⚠️ Discarding corrupted cart snapshot", zap.Error(err))
		m.discardStored(ctx)
	case err != nil:
		return err
	case snap != nil && m.now().Sub(snap.Timestamp) > m.ttl:
		m.logger.Info("ℹ️ Discarding stale cart snapshot", zap.Time("snapshot_time", snap.Timestamp))
		m.discardStored(ctx)
	case snap != nil:
		m.mu.Lock()
		m.applyLocked(snap)
		notes := m.stampLocked([]Notification{{Event: EventCartLoaded}, {Event: EventCartChanged}})
		m.mu.Unlock()
		m.listeners.dispatch(notes)
		m.logger.Info("✅ Cart restored", zap.Int("lines", len(snap.Items)), zap.Int64("version", snap.Version))
	}

	return m.watch(ctx)
}

// Close encerra a assinatura de mudanças
func (m *Manager) Close() {
	m.mu.Lock()
	stop, done := m.stopWatch, m.watchDone
	m.stopWatch, m.watchDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

func (m *Manager) watch(ctx context.Context) error {
	m.mu.Lock()
	if m.stopWatch != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	changes, err := m.store.Watch(watchCtx, m.sessionID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.stopWatch, m.watchDone = cancel, done
	m.mu.Unlock()

	go func() {
		defer close(done)
		for c := range changes {
			m.applyRemote(watchCtx, c)
		}
	}()
	return nil
}

// applyRemote recarrega o snapshot quando outra instância gravou uma versão mais nova
func (m *Manager) applyRemote(ctx context.Context, c Change) {
	m.mu.Lock()
	stale := c.Origin == m.origin || c.Version <= m.version
	m.mu.Unlock()
	if stale {
		return
	}

	var snap *Snapshot
	if !c.Deleted {
		var err error
		snap, err = m.store.Load(ctx, m.sessionID)
		if err != nil {
			m.logger.Warn("❌ Failed to load remote cart snapshot", zap.Error(err))
			return
		}
	}

	m.mu.Lock()
	switch {
	case snap == nil:
		m.resetLocked()
		m.version = c.Version
	case snap.Version > m.version:
		m.applyLocked(snap)
	default:
		m.mu.Unlock()
		return
	}
	notes := m.stampLocked([]Notification{{Event: EventCartSynced}, {Event: EventCartChanged}})
	m.mu.Unlock()

	m.listeners.dispatch(notes)
}

func (m *Manager) discardStored(ctx context.Context) {
	v, err := m.store.Delete(ctx, m.sessionID, m.origin)
	if err != nil {
		m.logger.Warn("❌ Failed to delete cart snapshot", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.version = v
	m.mu.Unlock()
}

// mutate aplica fn sob o lock, persiste o snapshot e só então entrega as notificações
func (m *Manager) mutate(ctx context.Context, fn func() ([]Notification, error)) error {
	m.mu.Lock()
	notes, err := fn()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.persistLocked(ctx)
	notes = m.stampLocked(append(notes, Notification{Event: EventCartChanged}))
	m.mu.Unlock()

	m.listeners.dispatch(notes)
	return nil
}

func (m *Manager) removeLocked(key LineKey) ([]Notification, error) {
	line, ok := m.lines[key]
	if !ok {
		return nil, ErrLineNotFound
	}
	delete(m.lines, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return []Notification{{Event: EventItemRemoved, Key: key, Line: line}}, nil
}

func (m *Manager) resetLocked() {
	m.order = nil
	m.lines = make(map[LineKey]*Line)
}

func (m *Manager) applyLocked(snap *Snapshot) {
	m.resetLocked()
	for _, item := range snap.Items {
		line := item.Line
		if line.ProductID == "" || line.PriceID == "" || line.Quantity <= 0 {
			continue
		}
		key := line.Key()
		if _, dup := m.lines[key]; dup {
			continue
		}
		line.setQuantity(line.Quantity)
		m.lines[key] = &line
		m.order = append(m.order, key)
	}
	m.version = snap.Version
}

// persistLocked grava o snapshot completo. Falhas são registradas e a mutação em memória permanece.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil {
		return
	}

	snap := Snapshot{Origin: m.origin, Items: make([]SnapshotItem, 0, len(m.order)), Timestamp: m.now().UTC()}
	for _, k := range m.order {
		snap.Items = append(snap.Items, SnapshotItem{Key: k.String(), Line: *m.lines[k]})
	}

	v, err := m.store.Save(ctx, m.sessionID, snap)
	if err != nil {
		m.logger.Warn("❌ Failed to persist cart snapshot", zap.Error(err))
		return
	}
	m.version = v
}

func (m *Manager) stampLocked(notes []Notification) []Notification {
	totals := m.totalsLocked()
	for i := range notes {
		notes[i].SessionID = m.sessionID
		notes[i].Totals = totals
	}
	return notes
}

func (m *Manager) totalsLocked() Totals {
	t := Totals{UniqueLines: len(m.order), Amount: decimal.Zero}
	for _, k := range m.order {
		l := m.lines[k]
		t.ItemCount += l.Quantity
		t.Amount = t.Amount.Add(l.Subtotal)
	}
	return t
}
