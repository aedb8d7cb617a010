package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultSnapshotTTL: snapshots mais antigos que isso são descartados na restauração
const DefaultSnapshotTTL = 24 * time.Hour

var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")

// SnapshotItem é serializado como o par [chave, linha]
type SnapshotItem struct {
	Key  string
	Line Line
}

func (i SnapshotItem) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{i.Key, i.Line})
}

func (i *SnapshotItem) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("snapshot item must be a [key, line] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &i.Key); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &i.Line)
}

// Snapshot é a representação durável do carrinho de uma sessão
type Snapshot struct {
	Version   int64          `json:"version"`
	Origin    string         `json:"origin"`
	Items     []SnapshotItem `json:"items"`
	Timestamp time.Time      `json:"timestamp"`
}

// DecodeSnapshot parses a stored snapshot, wrapping failures in ErrCorruptSnapshot.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrCorruptSnapshot)
	}
	return &snap, nil
}

// Change notifica que o snapshot de uma sessão foi regravado ou apagado
type Change struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	Origin    string `json:"origin"`
	Deleted   bool   `json:"deleted"`
}

// SnapshotStore é o armazenamento durável do carrinho, compartilhado entre abas da mesma sessão
type SnapshotStore interface {
	// Load retorna o snapshot atual ou nil quando não existe; ErrCorruptSnapshot se ilegível
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// Save grava o snapshot e retorna a versão atribuída a ele
	Save(ctx context.Context, sessionID string, snap Snapshot) (int64, error)

	// Delete apaga o snapshot e retorna a versão da remoção
	Delete(ctx context.Context, sessionID, origin string) (int64, error)

	// Watch entrega as mudanças da sessão até ctx ser cancelado
	Watch(ctx context.Context, sessionID string) (<-chan Change, error)
}

// MemorySnapshotStore mantém snapshots em memória e avisa os watchers do mesmo processo
type MemorySnapshotStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	versions map[string]int64
	watchers map[string]map[int]chan Change
	nextID   int
}

// NewMemorySnapshotStore cria uma nova instância de MemorySnapshotStore
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
		watchers: make(map[string]map[int]chan Change),
	}
}

func (s *MemorySnapshotStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	raw, ok := s.data[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return DecodeSnapshot(raw)
}

func (s *MemorySnapshotStore) Save(_ context.Context, sessionID string, snap Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions[sessionID]++
	snap.Version = s.versions[sessionID]
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cart snapshot: %w", err)
	}
	s.data[sessionID] = raw
	s.notifyLocked(Change{SessionID: sessionID, Version: snap.Version, Origin: snap.Origin})
	return snap.Version, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, sessionID, origin string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions[sessionID]++
	delete(s.data, sessionID)
	v := s.versions[sessionID]
	s.notifyLocked(Change{SessionID: sessionID, Version: v, Origin: origin, Deleted: true})
	return v, nil
}

func (s *MemorySnapshotStore) Watch(ctx context.Context, sessionID string) (<-chan Change, error) {
	ch := make(chan Change, 16)

	s.mu.Lock()
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[int]chan Change)
	}
	id := s.nextID
	s.nextID++
	s.watchers[sessionID][id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[sessionID], id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// notifyLocked never blocks; a slow watcher misses changes and catches up on the next one.
func (s *MemorySnapshotStore) notifyLocked(c Change) {
	for _, ch := range s.watchers[c.SessionID] {
		select {
		case ch <- c:
		default:
		}
	}
}
