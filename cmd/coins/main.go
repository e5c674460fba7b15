package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"companion/internal/adapter/repo"
	"companion/internal/domain"
	"companion/internal/infra"
)

const usage = `usage: coins [-id USER_ID | -email EMAIL] <show|credit|debit> [-amount N]`

func main() {
	_ = godotenv.Load()

	var (
		idFlag     string
		emailFlag  string
		amountFlag int
	)
	fs := flag.NewFlagSet("coins", flag.ExitOnError)
	fs.StringVar(&idFlag, "id", "", "wallet user ID")
	fs.StringVar(&emailFlag, "email", "", "wallet email (oldest wallet wins)")
	fs.IntVar(&amountFlag, "amount", 0, "coins to credit or debit")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fs.PrintDefaults()
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}
	command := strings.ToLower(args[0])
	_ = fs.Parse(args[1:])

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	switch command {
	case "show":
	case "credit", "debit":
		if amountFlag <= 0 {
			exitWithError(errors.New("-amount must be positive"))
		}
	default:
		exitWithError(fmt.Errorf("unknown command %q\n%s", command, usage))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "coins").Logger()
	wallets := repo.NewWalletRepository(infra.NewSQLRunner(pool, logger))

	var wallet *domain.Wallet
	if userID != "" {
		wallet, err = wallets.Get(ctx, userID)
	} else {
		wallet, err = wallets.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load wallet: %w", err))
	}

	switch command {
	case "credit":
		wallet.Coins, err = wallets.Credit(ctx, wallet.UserID, amountFlag)
	case "debit":
		wallet.Coins, err = wallets.Debit(ctx, wallet.UserID, amountFlag)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to %s wallet: %w", command, err))
	}

	fmt.Printf("Wallet %s (%s)\n", wallet.UserID, wallet.Email)
	fmt.Printf("coins=%d\n", wallet.Coins)
	if command == "show" {
		fmt.Printf("created_at=%s\n", wallet.CreatedAt.Format(time.RFC3339))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
