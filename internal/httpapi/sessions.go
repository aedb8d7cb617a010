package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
)

var ErrSessionRequired = errors.New("session id is required")

// Sessions mantém um cart.Manager por sessão, restaurado do snapshot durável no primeiro acesso
type Sessions struct {
	mu       sync.Mutex
	managers map[string]*cart.Manager
	store    cart.SnapshotStore
	ttl      time.Duration
	logger   *zap.Logger
}

// NewSessions cria uma nova instância de Sessions
func NewSessions(store cart.SnapshotStore, ttl time.Duration, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		managers: make(map[string]*cart.Manager),
		store:    store,
		ttl:      ttl,
		logger:   logger,
	}
}

// Get retorna o carrinho da sessão, criando e restaurando quando ainda não existe
func (s *Sessions) Get(ctx context.Context, sessionID string) (*cart.Manager, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[sessionID]; ok {
		return m, nil
	}

	m := cart.NewManager(sessionID,
		cart.WithStore(s.store),
		cart.WithTTL(s.ttl),
		cart.WithLogger(s.logger),
	)
	if err := m.Restore(ctx); err != nil {
		m.Close()
		return nil, err
	}
	s.managers[sessionID] = m
	return m, nil
}

// Discard limpa o carrinho, apaga o snapshot e esquece a sessão (logout)
func (s *Sessions) Discard(ctx context.Context, sessionID string) error {
	m, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.Discard(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.managers, m.SessionID())
	s.mu.Unlock()

	m.Close()
	return nil
}

// Close encerra as assinaturas de todos os carrinhos
func (s *Sessions) Close() {
	s.mu.Lock()
	managers := s.managers
	s.managers = make(map[string]*cart.Manager)
	s.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
