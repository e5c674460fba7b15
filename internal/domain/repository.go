package domain

import (
	"context"
	"io"
)

//go:generate mockgen -source=repository.go -destination=../../mocks/repository.go -package=mocks

// WalletRepository persists coin balances. Debit must be atomic: it either
// subtracts the full amount or fails with ErrInsufficientBalance.
type WalletRepository interface {
	CreateOrGet(ctx context.Context, userID, email string, startingCoins int) (*Wallet, error)
	Get(ctx context.Context, userID string) (*Wallet, error)
	GetByEmail(ctx context.Context, email string) (*Wallet, error)
	Debit(ctx context.Context, userID string, amount int) (int, error)
	Credit(ctx context.Context, userID string, amount int) (int, error)
}

// CompanionRepository stores finished companions.
type CompanionRepository interface {
	Insert(ctx context.Context, c *Companion) error
	Get(ctx context.Context, id string) (*Companion, error)
	ListByUser(ctx context.Context, userID string) ([]Companion, error)
}

// ObjectStore holds binary objects under slash separated keys and returns a
// durable URL for each stored object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
