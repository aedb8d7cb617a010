package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/logger"
	"github.com/matheusmosca/pos-transaction-engine/internal/payment"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
)

const (
	defaultPageSize    = 50
	defaultHistorySize = 100
)

// AddItemRequest representa a requisição para adicionar um item ao carrinho.
// Sem quantity adiciona uma unidade.
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	PriceID   string `json:"price_id"`
	Quantity  *int   `json:"quantity"`
}

func (r AddItemRequest) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// UpdateItemRequest altera a quantidade de uma linha; zero ou negativo remove
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// CheckoutRequest representa a requisição de checkout
type CheckoutRequest struct {
	EmployeeID    string           `json:"employee_id" binding:"required"`
	PaymentMethod string           `json:"payment_method" binding:"required"`
	CashReceived  *decimal.Decimal `json:"cash_received"`
	Notes         string           `json:"notes"`
}

// StartShiftRequest representa a requisição para abrir um turno
type StartShiftRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	ShiftType  string `json:"shift_type"`
}

// EndShiftRequest representa a requisição para fechar um turno
type EndShiftRequest struct {
	Notes string `json:"notes"`
}

// CancelSaleRequest representa a requisição de cancelamento de venda
type CancelSaleRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

type productView struct {
	catalog.Product
	LowStock bool `json:"low_stock"`
}

type lineView struct {
	Key string `json:"key"`
	cart.Line
}

type cartView struct {
	SessionID string       `json:"session_id"`
	Items     []lineView   `json:"items"`
	Summary   cart.Summary `json:"summary"`
}

type shiftView struct {
	Status string       `json:"status"`
	Shift  *shift.Shift `json:"shift"`
	Info   shift.Info   `json:"info"`
	Stats  shift.Stats  `json:"stats"`
}

// Handler contém os handlers HTTP
type Handler struct {
	sessions     *Sessions
	catalog      catalog.Accessor
	orchestrator *sale.Orchestrator
	ledger       *shift.Ledger
	lowStock     int
}

// NewHandler cria uma nova instância de Handler
func NewHandler(sessions *Sessions, accessor catalog.Accessor, orchestrator *sale.Orchestrator, ledger *shift.Ledger, lowStockThreshold int) *Handler {
	if lowStockThreshold <= 0 {
		lowStockThreshold = catalog.DefaultLowStockThreshold
	}
	return &Handler{
		sessions:     sessions,
		catalog:      accessor,
		orchestrator: orchestrator,
		ledger:       ledger,
		lowStock:     lowStockThreshold,
	}
}

// HealthCheck verifica se o serviço está saudável
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pos-service"})
}

// ListProducts lista os produtos do catálogo
func (h *Handler) ListProducts(c *gin.Context) {
	filter := catalog.Filter{
		CategoryID: c.Query("category_id"),
		ActiveOnly: c.DefaultQuery("active", "true") == "true",
	}
	if ids := c.Query("ids"); ids != "" {
		filter.IDs = strings.Split(ids, ",")
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]productView, 0, len(products))
	for i := range products {
		views = append(views, h.productView(&products[i]))
	}
	c.JSON(http.StatusOK, gin.H{"products": views})
}

// GetProduct retorna um produto com estoque e preços atuais
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.productView(p))
}

// StockHistory lista as movimentações de estoque do produto, mais recentes primeiro
func (h *Handler) StockHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHistorySize)
	if err != nil {
		badRequest(c, err)
		return
	}

	movements, err := h.orchestrator.StockHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

// GetCart retorna o carrinho da sessão
func (h *Handler) GetCart(c *gin.Context) {
	m, ok := h.cart(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(m))
}

// AddItem busca o produto no catálogo e adiciona a variante ao carrinho
func (h *Handler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, ok := h.cart(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !product.IsActive {
		writeError(c, fmt.Errorf("%w: product %s is inactive", cart.ErrInvalidProduct, product.ID))
		return
	}

	variant, err := pickVariant(product, req.PriceID)
	if err != nil {
		writeError(c, err)
		return
	}

	line, err := m.AddLine(ctx, product, variant, req.quantity())
	if err != nil {
		writeError(c, err)
		return
	}

	logger.FromContext(ctx).Info("🛒 Item added to cart",
		zap.String("session_id", m.SessionID()),
		zap.String("line", line.Key().String()),
		zap.Int("quantity", line.Quantity),
	)
	c.JSON(http.StatusOK, viewOf(m))
}

// UpdateItem altera a quantidade de uma linha
func (h *Handler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key, err := cart.ParseLineKey(c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	m, ok := h.cart(c)
	if !ok {
		return
	}

	if err := m.SetQuantity(c.Request.Context(), key, *req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(m))
}

// RemoveItem remove uma linha do carrinho
func (h *Handler) RemoveItem(c *gin.Context) {
	key, err := cart.ParseLineKey(c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	m, ok := h.cart(c)
	if !ok {
		return
	}

	if err := m.RemoveLine(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(m))
}

// ClearCart esvazia o carrinho
func (h *Handler) ClearCart(c *gin.Context) {
	m, ok := h.cart(c)
	if !ok {
		return
	}
	if err := m.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(m))
}

// DiscardSession limpa o carrinho e apaga o snapshot da sessão (logout)
func (h *Handler) DiscardSession(c *gin.Context) {
	if err := h.sessions.Discard(c.Request.Context(), c.Param("session")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReconcileCart confere o carrinho com o estoque atual
func (h *Handler) ReconcileCart(c *gin.Context) {
	m, ok := h.cart(c)
	if !ok {
		return
	}

	report, err := cart.Reconcile(c.Request.Context(), m, h.catalog)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "cart": viewOf(m)})
}

// Checkout finaliza a venda do carrinho da sessão
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	method, err := payment.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeError(c, err)
		return
	}
	m, ok := h.cart(c)
	if !ok {
		return
	}

	s, err := h.orchestrator.Checkout(c.Request.Context(), m, sale.Request{
		EmployeeID:    req.EmployeeID,
		PaymentMethod: method,
		CashReceived:  req.CashReceived,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// StartShift abre um turno para o funcionário
func (h *Handler) StartShift(c *gin.Context) {
	var req StartShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var shiftType shift.Type
	if req.ShiftType != "" {
		t, err := shift.ParseType(req.ShiftType)
		if err != nil {
			writeError(c, err)
			return
		}
		shiftType = t
	}

	s, err := h.ledger.StartShift(c.Request.Context(), req.EmployeeID, shiftType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// EndShift fecha um turno aberto
func (h *Handler) EndShift(c *gin.Context) {
	var req EndShiftRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	s, err := h.ledger.EndShift(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CurrentShift retorna o turno atual do funcionário com status e estatísticas
func (h *Handler) CurrentShift(c *gin.Context) {
	employeeID := c.Query("employee_id")
	if employeeID == "" {
		writeError(c, shift.ErrInvalidEmployee)
		return
	}

	s, err := h.ledger.CurrentShift(c.Request.Context(), employeeID)
	if err != nil {
		writeError(c, err)
		return
	}

	now := h.ledger.Now()
	info, _ := shift.ShiftInfo(shift.Classify(now))
	if s != nil {
		info, _ = shift.ShiftInfo(s.Type)
	}
	c.JSON(http.StatusOK, shiftView{
		Status: shift.Status(s),
		Shift:  s,
		Info:   info,
		Stats:  shift.ComputeStats(s, now),
	})
}

// ShiftTypes lista os turnos com nome e horários
func (h *Handler) ShiftTypes(c *gin.Context) {
	infos := make([]shift.Info, 0, 3)
	for _, t := range []shift.Type{shift.TypeMorning, shift.TypeAfternoon, shift.TypeNight} {
		info, _ := shift.ShiftInfo(t)
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, gin.H{"shifts": infos, "current": shift.Classify(h.ledger.Now())})
}

// ListSales lista vendas com filtros e paginação
func (h *Handler) ListSales(c *gin.Context) {
	filter, err := h.salesFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	sales, err := h.orchestrator.ListSales(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "limit": filter.Limit, "offset": filter.Offset})
}

// GetSale retorna uma venda pelo ID
func (h *Handler) GetSale(c *gin.Context) {
	s, err := h.orchestrator.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CancelSale cancela uma venda dentro da janela permitida
func (h *Handler) CancelSale(c *gin.Context) {
	var req CancelSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cancellation, err := h.orchestrator.CancelSale(c.Request.Context(), c.Param("id"), req.Reason, req.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancellation)
}

func (h *Handler) cart(c *gin.Context) (*cart.Manager, bool) {
	m, err := h.sessions.Get(c.Request.Context(), c.Param("session"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return m, true
}

func (h *Handler) productView(p *catalog.Product) productView {
	return productView{Product: *p, LowStock: p.IsLowStockAt(h.lowStock)}
}

func (h *Handler) salesFilter(c *gin.Context) (sale.Filter, error) {
	f := sale.Filter{EmployeeID: c.Query("employee_id")}

	var err error
	if f.Limit, err = queryInt(c, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		return f, err
	}
	if v := c.Query("shift_type"); v != "" {
		if f.ShiftType, err = shift.ParseType(v); err != nil {
			return f, err
		}
	}
	if v := c.Query("payment_method"); v != "" {
		if f.PaymentMethod, err = payment.ParseMethod(v); err != nil {
			return f, err
		}
	}
	if f.From, err = h.queryTime(c, "from", false); err != nil {
		return f, err
	}
	if f.To, err = h.queryTime(c, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

// queryTime aceita RFC3339 ou uma data civil (no fuso da loja); endOfDay leva a data ao dia seguinte
func (h *Handler) queryTime(c *gin.Context, key string, endOfDay bool) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(shift.DateLayout, v, h.ledger.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, v)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func pickVariant(p *catalog.Product, priceID string) (catalog.PriceVariant, error) {
	if priceID != "" {
		return p.Variant(priceID)
	}
	v, ok := p.DefaultPrice()
	if !ok {
		return catalog.PriceVariant{}, catalog.ErrVariantNotFound
	}
	return v, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func viewOf(m *cart.Manager) cartView {
	lines := m.Lines()
	items := make([]lineView, 0, len(lines))
	for _, l := range lines {
		items = append(items, lineView{Key: l.Key().String(), Line: l})
	}
	return cartView{SessionID: m.SessionID(), Items: items, Summary: m.Summary()}
}
