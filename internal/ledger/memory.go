package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"companion/internal/domain"
)

// MemoryStore is an in-process domain.WalletRepository. Each user's
// read-modify-write runs under that user's own mutex.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*memoryWallet
	now     func() time.Time
}

type memoryWallet struct {
	mu sync.Mutex
	w  domain.Wallet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*memoryWallet), now: time.Now}
}

func (m *MemoryStore) lookup(userID string) (*memoryWallet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	return w, ok
}

func (m *MemoryStore) CreateOrGet(_ context.Context, userID, email string, startingCoins int) (*domain.Wallet, error) {
	if startingCoins < 0 {
		return nil, domain.ErrInvalidAmount
	}
	m.mu.Lock()
	mw, ok := m.wallets[userID]
	if !ok {
		now := m.now().UTC()
		mw = &memoryWallet{w: domain.Wallet{
			UserID: userID, Email: strings.TrimSpace(email), Coins: startingCoins,
			CreatedAt: now, UpdatedAt: now,
		}}
		m.wallets[userID] = mw
	}
	m.mu.Unlock()

	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.w.Email == "" {
		mw.w.Email = strings.TrimSpace(email)
	}
	w := mw.w
	return &w, nil
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*domain.Wallet, error) {
	mw, ok := m.lookup(userID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	w := mw.w
	return &w, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*domain.Wallet, error) {
	email = strings.TrimSpace(email)
	m.mu.Lock()
	var (
		found  string
		oldest time.Time
	)
	for id, mw := range m.wallets {
		mw.mu.Lock()
		if strings.EqualFold(mw.w.Email, email) && (found == "" || mw.w.CreatedAt.Before(oldest)) {
			found, oldest = id, mw.w.CreatedAt
		}
		mw.mu.Unlock()
	}
	m.mu.Unlock()
	if found == "" {
		return nil, domain.ErrNotFound
	}
	return m.Get(ctx, found)
}

func (m *MemoryStore) Debit(_ context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	mw, ok := m.lookup(userID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.w.Coins < amount {
		return 0, domain.ErrInsufficientBalance
	}
	mw.w.Coins -= amount
	mw.w.UpdatedAt = m.now().UTC()
	return mw.w.Coins, nil
}

func (m *MemoryStore) Credit(_ context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	mw, ok := m.lookup(userID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.w.Coins += amount
	mw.w.UpdatedAt = m.now().UTC()
	return mw.w.Coins, nil
}
