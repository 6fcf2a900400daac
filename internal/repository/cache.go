package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tarifly/backend/internal/domain"
)

// MemorySessionStore keeps payment sessions in process memory. Expired
// entries read as absent and are removed by Sweep. Only suitable for a
// single instance; use RedisSessionStore behind a load balancer.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.PaymentSession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.PaymentSession),
		now:      time.Now,
	}
}

// Save stores s under its user's key, replacing any previous session.
func (m *MemorySessionStore) Save(_ context.Context, s *domain.PaymentSession) error {
	cp := *s
	m.mu.Lock()
	m.sessions[domain.SessionKey(s.UserID)] = &cp
	m.mu.Unlock()
	return nil
}

// Get returns nil when there is no session or it has expired.
func (m *MemorySessionStore) Get(_ context.Context, userID string) (*domain.PaymentSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[domain.SessionKey(userID)]
	m.mu.RUnlock()
	if !ok || s.Expired(m.now()) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, domain.SessionKey(userID))
	m.mu.Unlock()
	return nil
}

// Sweep removes every session expired at now and returns how many went.
func (m *MemorySessionStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, k)
			removed++
		}
	}
	return removed
}

// Len is the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RedisSessionStore keeps payment sessions in Redis with native expiry, so
// sessions survive restarts and are shared between instances.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (r *RedisSessionStore) Save(ctx context.Context, s *domain.PaymentSession) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("payment session already expired")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode payment session: %w", err)
	}
	if err := r.client.Set(ctx, domain.SessionKey(s.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store payment session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, userID string) (*domain.PaymentSession, error) {
	raw, err := r.client.Get(ctx, domain.SessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}
	var s domain.PaymentSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode payment session: %w", err)
	}
	if s.Expired(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, domain.SessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete payment session: %w", err)
	}
	return nil
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
