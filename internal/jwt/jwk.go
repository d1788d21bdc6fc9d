package jwt

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

const secretBytes = 64

// KeyManager ensures the service always has one active signing key. The key is
// persisted so every instance signs and verifies with the same secret.
type KeyManager struct {
	repo repository.KeyRepository
	node *snowflake.Node

	mu     sync.RWMutex
	cached *domain.SigningKey
}

// NewKeyManager creates a KeyManager.
func NewKeyManager(repo repository.KeyRepository, node *snowflake.Node) *KeyManager {
	return &KeyManager{repo: repo, node: node}
}

// EnsureSigningKey returns the active key or creates one if missing.
func (m *KeyManager) EnsureSigningKey(ctx context.Context) (domain.SigningKey, error) {
	m.mu.RLock()
	if m.cached != nil {
		key := *m.cached
		m.mu.RUnlock()
		return key, nil
	}
	m.mu.RUnlock()

	key, err := m.repo.GetActiveKey(ctx)
	if err == nil {
		return m.remember(key), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.SigningKey{}, fmt.Errorf("ensure signing key: %w", err)
	}

	secret := make([]byte, secretBytes)
	if _, randErr := rand.Read(secret); randErr != nil {
		return domain.SigningKey{}, fmt.Errorf("generate secret: %w", randErr)
	}

	key = domain.SigningKey{
		ID:        m.node.Generate().Int64(),
		KID:       uuid.NewString(),
		Secret:    secret,
		Algorithm: string(jose.HS256),
		IsActive:  true,
	}

	created, err := m.repo.CreateKey(ctx, key)
	if errors.Is(err, repository.ErrConflict) {
		// Another instance created the key first.
		created, err = m.repo.GetActiveKey(ctx)
	}
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("persist signing key: %w", err)
	}

	return m.remember(created), nil
}

func (m *KeyManager) remember(key domain.SigningKey) domain.SigningKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		m.cached = &key
	}
	return *m.cached
}
