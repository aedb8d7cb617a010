package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
)

const defaultKeyPrefix = "pos:cart"

// Connect cria o cliente a partir de uma URL redis:// ou de host:porta
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// SnapshotStore guarda o snapshot do carrinho no Redis e anuncia cada escrita por pub/sub,
// para que outras instâncias da mesma sessão recarreguem.
type SnapshotStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSnapshotStore cria uma nova instância de SnapshotStore. ttl > 0 expira o snapshot no Redis.
func NewSnapshotStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{client: client, keyPrefix: defaultKeyPrefix, ttl: ttl, logger: logger}
}

func (s *SnapshotStore) snapshotKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, sessionID)
}

func (s *SnapshotStore) versionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:version", s.keyPrefix, sessionID)
}

func (s *SnapshotStore) channel(sessionID string) string {
	return fmt.Sprintf("%s:%s:changes", s.keyPrefix, sessionID)
}

// Load retorna o snapshot ou nil quando a chave não existe
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*cart.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	return cart.DecodeSnapshot(raw)
}

// Save atribui a próxima versão, grava o snapshot e publica a mudança na mesma transação
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, snap cart.Snapshot) (int64, error) {
	version, err := s.client.Incr(ctx, s.versionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next cart version: %w", err)
	}
	snap.Version = version

	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode cart snapshot: %w", err)
	}
	change, err := json.Marshal(cart.Change{SessionID: sessionID, Version: version, Origin: snap.Origin})
	if err != nil {
		return 0, fmt.Errorf("encode cart change: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.snapshotKey(sessionID), raw, s.ttl)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.versionKey(sessionID), s.ttl)
		}
		pipe.Publish(ctx, s.channel(sessionID), change)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save cart snapshot: %w", err)
	}
	return version, nil
}

// Delete apaga o snapshot e publica a remoção
func (s *SnapshotStore) Delete(ctx context.Context, sessionID, origin string) (int64, error) {
	version, err := s.client.Incr(ctx, s.versionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next cart version: %w", err)
	}
	change, err := json.Marshal(cart.Change{SessionID: sessionID, Version: version, Origin: origin, Deleted: true})
	if err != nil {
		return 0, fmt.Errorf("encode cart change: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.snapshotKey(sessionID))
		pipe.Publish(ctx, s.channel(sessionID), change)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete cart snapshot: %w", err)
	}
	return version, nil
}

// Watch assina o canal de mudanças da sessão até ctx ser cancelado
func (s *SnapshotStore) Watch(ctx context.Context, sessionID string) (<-chan cart.Change, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(sessionID))

	// espera a confirmação da assinatura
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to cart changes: %w", err)
	}

	out := make(chan cart.Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c cart.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					s.logger.Warn("⚠️ Ignoring malformed cart change", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
