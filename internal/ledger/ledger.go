package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"companion/internal/domain"
	"companion/internal/infra"
)

// DefaultStartingCoins is granted once when a wallet is provisioned.
const DefaultStartingCoins = 20

// Service is the coin ledger client. It keeps the last balance it saw for
// each user so HasEnough can answer without a round trip.
type Service struct {
	repo          domain.WalletRepository
	startingCoins int
	logger        infra.Logger

	mu    sync.RWMutex
	known map[string]int
}

// New builds a ledger over repo. startingCoins <= 0 selects the default.
func New(repo domain.WalletRepository, startingCoins int, logger infra.Logger) *Service {
	if startingCoins <= 0 {
		startingCoins = DefaultStartingCoins
	}
	return &Service{
		repo:          repo,
		startingCoins: startingCoins,
		logger:        infra.Component(logger, "ledger"),
		known:         make(map[string]int),
	}
}

// Provision creates the user's wallet with the starting balance, or returns
// the existing wallet. Calling it repeatedly never grants coins twice.
func (s *Service) Provision(ctx context.Context, userID, email string) (*domain.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("ledger.Provision: user id is required")
	}
	w, err := s.repo.CreateOrGet(ctx, userID, email, s.startingCoins)
	if err != nil {
		return nil, fmt.Errorf("ledger.Provision: %w", err)
	}
	s.remember(userID, w.Coins)
	return w, nil
}

// Wallet reads the user's wallet and refreshes the cached balance.
func (s *Service) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.forget(userID)
		}
		return nil, err
	}
	s.remember(userID, w.Coins)
	return w, nil
}

// Balance returns the current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	w, err := s.Wallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Coins, nil
}

// HasEnough checks amount against the last known balance. Users whose
// balance was never read have nothing to spend.
func (s *Service) HasEnough(userID string, amount int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coins, ok := s.known[userID]
	return ok && coins >= amount
}

// Debit subtracts amount and returns the new balance. The store rejects a
// debit the balance cannot cover with domain.ErrInsufficientBalance.
func (s *Service) Debit(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	coins, err := s.repo.Debit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			// The cache is stale; pick up the real balance on the next read.
			s.forget(userID)
		}
		return 0, err
	}
	s.remember(userID, coins)
	s.logger.Info().Str("user_id", userID).Int("amount", amount).Int("balance", coins).Msg("coins debited")
	return coins, nil
}

// Credit adds amount and returns the new balance.
func (s *Service) Credit(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	coins, err := s.repo.Credit(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	s.remember(userID, coins)
	s.logger.Info().Str("user_id", userID).Int("amount", amount).Int("balance", coins).Msg("coins credited")
	return coins, nil
}

func (s *Service) remember(userID string, coins int) {
	s.mu.Lock()
	s.known[userID] = coins
	s.mu.Unlock()
}

func (s *Service) forget(userID string) {
	s.mu.Lock()
	delete(s.known, userID)
	s.mu.Unlock()
}
