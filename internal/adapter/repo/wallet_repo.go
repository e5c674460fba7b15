package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"companion/internal/domain"
	"companion/internal/infra"
	"companion/internal/sqlinline"
)

// WalletRepositoryPG implements domain.WalletRepository backed by PostgreSQL.
type WalletRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewWalletRepository creates a new WalletRepositoryPG.
func NewWalletRepository(sql infra.SQLExecutor) *WalletRepositoryPG {
	return &WalletRepositoryPG{sql: sql}
}

// CreateOrGet inserts a wallet with startingCoins, or returns the existing
// one untouched.
func (r *WalletRepositoryPG) CreateOrGet(ctx context.Context, userID, email string, startingCoins int) (*domain.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("repo.CreateOrGet: user id is required")
	}
	if startingCoins < 0 {
		return nil, domain.ErrInvalidAmount
	}
	row := r.sql.QueryRow(ctx, sqlinline.QCreateOrGetWallet, userID, strings.TrimSpace(email), startingCoins)
	return scanWallet(row)
}

// Get fetches a wallet by user id.
func (r *WalletRepositoryPG) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	return scanWallet(r.sql.QueryRow(ctx, sqlinline.QSelectWalletByUserID, userID))
}

// GetByEmail fetches the oldest wallet registered with email.
func (r *WalletRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.Wallet, error) {
	return scanWallet(r.sql.QueryRow(ctx, sqlinline.QSelectWalletByEmail, strings.TrimSpace(email)))
}

// Debit subtracts amount and returns the new balance.
func (r *WalletRepositoryPG) Debit(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var coins int
	err := r.sql.QueryRow(ctx, sqlinline.QDebitWallet, userID, amount).Scan(&coins)
	if err == nil {
		return coins, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("repo.Debit: %w", err)
	}
	// No row matched: either the wallet is missing or the balance is short.
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QWalletExists, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("repo.Debit: %w", err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrInsufficientBalance
}

// Credit adds amount and returns the new balance.
func (r *WalletRepositoryPG) Credit(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var coins int
	if err := r.sql.QueryRow(ctx, sqlinline.QCreditWallet, userID, amount).Scan(&coins); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("repo.Credit: %w", err)
	}
	return coins, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.UserID, &w.Email, &w.Coins, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}
